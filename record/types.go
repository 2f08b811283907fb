package record

import (
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Limits enforced on every persisted record.
const (
	MaxHistory         = 50
	MaxPatterns        = 50
	MaxPatternContext  = 500
	MaxPreferenceItems = 20
	MaxPreviousIntents = 20

	// DefaultLifetime is the distance between creation and ExpiresAt.
	DefaultLifetime = 30 * 24 * time.Hour
)

// ContextType is the product surface a record belongs to.
type ContextType string

const (
	ContextChatbot           ContextType = "chatbot"
	ContextEmail             ContextType = "email"
	ContextEmailGeneration   ContextType = "email_generation"
	ContextWebsite           ContextType = "website"
	ContextWebsiteGeneration ContextType = "website_generation"
	ContextImageGen          ContextType = "image_gen"
	ContextImageGeneration   ContextType = "image_generation"
	ContextGeneral           ContextType = "general"
)

var contextTypes = []ContextType{
	ContextChatbot, ContextEmail, ContextEmailGeneration, ContextWebsite,
	ContextWebsiteGeneration, ContextImageGen, ContextImageGeneration, ContextGeneral,
}

// Valid reports whether t is one of the known context types.
func (t ContextType) Valid() bool { return slices.Contains(contextTypes, t) }

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is user, assistant or system.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// Mood is the detected emotional state of the conversation.
type Mood string

const (
	MoodPositive Mood = "positive"
	MoodNegative Mood = "negative"
	MoodNeutral  Mood = "neutral"
	MoodConfused Mood = "confused"
	MoodUrgent   Mood = "urgent"
)

// Valid reports whether m is a known mood. The empty mood is valid (unset).
func (m Mood) Valid() bool {
	switch m {
	case "", MoodPositive, MoodNegative, MoodNeutral, MoodConfused, MoodUrgent:
		return true
	}
	return false
}

// Complexity grades the conversation.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Valid reports whether c is a known complexity. The empty value is valid (unset).
func (c Complexity) Valid() bool {
	switch c {
	case "", ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return true
	}
	return false
}

// Key identifies the single active record of a session.
type Key struct {
	TenantID    string      `json:"tenant_id"`
	ContextType ContextType `json:"context_type"`
	SessionID   string      `json:"session_id"`
}

// String renders the key as tenant/type/session. It is for logs and errors
// only; use Encode where distinct keys must stay distinct.
func (k Key) String() string {
	return k.TenantID + "/" + string(k.ContextType) + "/" + k.SessionID
}

// Encode renders the key with every part length-prefixed, e.g.
// "4:acme:7:chatbot:2:s1". Distinct keys always encode differently,
// whatever bytes tenant and session ids contain.
func (k Key) Encode() string {
	parts := []string{k.TenantID, string(k.ContextType), k.SessionID}
	b := make([]byte, 0, len(k.TenantID)+len(k.ContextType)+len(k.SessionID)+12)
	for i, part := range parts {
		if i > 0 {
			b = append(b, ':')
		}
		b = strconv.AppendInt(b, int64(len(part)), 10)
		b = append(b, ':')
		b = append(b, part...)
	}
	return string(b)
}

// MessageMetadata carries generation details attached to a message.
type MessageMetadata struct {
	Model          string           `json:"model,omitempty"`
	TokenCount     int              `json:"token_count,omitempty"`
	ProcessingTime float64          `json:"processing_time,omitempty"` // milliseconds
	Confidence     float64          `json:"confidence,omitempty"`
	Context        map[string]Value `json:"context,omitempty"`
}

// Message represents a single conversation turn.
type Message struct {
	Role      Role            `json:"role"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Metadata  MessageMetadata `json:"metadata"`
}

// Pattern is a learned recurring behaviour of the customer.
type Pattern struct {
	Pattern   string    `json:"pattern"`
	Frequency int       `json:"frequency"`
	LastSeen  time.Time `json:"last_seen"`
	Context   string    `json:"context"`
}

// Question is a frequently asked customer question.
type Question struct {
	Question  string `json:"question"`
	Frequency int    `json:"frequency"`
	Category  string `json:"category"`
}

// SentimentAnalysis counts the sentiments reported by generation results.
type SentimentAnalysis struct {
	Positive    int       `json:"positive"`
	Negative    int       `json:"negative"`
	Neutral     int       `json:"neutral"`
	LastUpdated time.Time `json:"last_updated"`
}

// CustomerInsights aggregates what is known about the customer.
type CustomerInsights struct {
	CommonQuestions    []Question        `json:"common_questions"`
	PreferredTopics    []string          `json:"preferred_topics"`
	EngagementPatterns map[string]Value  `json:"engagement_patterns"`
	SentimentAnalysis  SentimentAnalysis `json:"sentiment_analysis"`
}

// IndustryContext is advisory market information.
type IndustryContext struct {
	Keywords           []string         `json:"keywords"`
	CompetitorMentions []string         `json:"competitor_mentions"`
	SeasonalTrends     map[string]Value `json:"seasonal_trends"`
}

// BusinessContext is the long-lived knowledge merged from generation results.
type BusinessContext struct {
	ExtractedPreferences map[string]Value `json:"extracted_preferences"`
	LearnedPatterns      []Pattern        `json:"learned_patterns"`
	CustomerInsights     CustomerInsights `json:"customer_insights"`
	IndustryContext      IndustryContext  `json:"industry_context"`
}

// ContextualState tracks the live state of the conversation.
type ContextualState struct {
	CurrentIntent   string           `json:"current_intent,omitempty"`
	PreviousIntents []string         `json:"previous_intents"`
	Entities        map[string]Value `json:"entities"`
	Mood            Mood             `json:"mood,omitempty"`
	Complexity      Complexity       `json:"complexity,omitempty"`
}

// Performance holds interaction counters.
type Performance struct {
	AverageResponseTime float64   `json:"average_response_time"`
	SuccessRate         float64   `json:"success_rate"`
	UserSatisfaction    float64   `json:"user_satisfaction"`
	TotalInteractions   int64     `json:"total_interactions"`
	LastInteraction     time.Time `json:"last_interaction"`
}

// ContextRecord represents all persisted state of one AI session.
//
// PERSISTED:
// - ID, Version: identity and optimistic locking
// - TenantID, ContextType, SessionID: the owning key
// - ConversationHistory: at most MaxHistory messages, oldest first
// - BusinessContext, ContextualState, Performance: merged knowledge and counters
// - VectorDocumentIDs: opaque references into an external vector index
// - IsActive, CreatedAt, UpdatedAt, ExpiresAt: lifecycle
type ContextRecord struct {
	ID                  string          `json:"id"`
	Version             int64           `json:"version"` // Monotonically increasing for optimistic locking
	TenantID            string          `json:"tenant_id"`
	ContextType         ContextType     `json:"context_type"`
	SessionID           string          `json:"session_id"`
	ConversationHistory []Message       `json:"conversation_history"`
	BusinessContext     BusinessContext `json:"business_context"`
	VectorDocumentIDs   []string        `json:"vector_document_ids"`
	ContextualState     ContextualState `json:"contextual_state"`
	Performance         Performance     `json:"performance"`
	IsActive            bool            `json:"is_active"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	ExpiresAt           time.Time       `json:"expires_at"`
}

// New returns an active record for key with every nested collection
// initialised empty and every counter zeroed.
func New(key Key) *ContextRecord {
	return &ContextRecord{
		TenantID:            key.TenantID,
		ContextType:         key.ContextType,
		SessionID:           key.SessionID,
		ConversationHistory: []Message{},
		BusinessContext: BusinessContext{
			ExtractedPreferences: map[string]Value{},
			LearnedPatterns:      []Pattern{},
			CustomerInsights: CustomerInsights{
				CommonQuestions:    []Question{},
				PreferredTopics:    []string{},
				EngagementPatterns: map[string]Value{},
			},
			IndustryContext: IndustryContext{
				Keywords:           []string{},
				CompetitorMentions: []string{},
				SeasonalTrends:     map[string]Value{},
			},
		},
		VectorDocumentIDs: []string{},
		ContextualState: ContextualState{
			PreviousIntents: []string{},
			Entities:        map[string]Value{},
		},
		IsActive: true,
	}
}

// Key returns the identity triple of the record.
func (r *ContextRecord) Key() Key {
	return Key{TenantID: r.TenantID, ContextType: r.ContextType, SessionID: r.SessionID}
}

// Summary is a quick view over the conversation.
type Summary struct {
	TotalMessages     int     `json:"total_messages"`
	UserMessages      int     `json:"user_messages"`
	AssistantMessages int     `json:"assistant_messages"`
	AvgResponseTime   float64 `json:"avg_response_time"`
}

// Summary counts the retained messages by role.
func (r *ContextRecord) Summary() Summary {
	s := Summary{
		TotalMessages:   len(r.ConversationHistory),
		AvgResponseTime: r.Performance.AverageResponseTime,
	}
	for _, msg := range r.ConversationHistory {
		switch msg.Role {
		case RoleUser:
			s.UserMessages++
		case RoleAssistant:
			s.AssistantMessages++
		}
	}
	return s
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (r *ContextRecord) Clone() *ContextRecord {
	if r == nil {
		return nil
	}
	c := *r

	if r.ConversationHistory != nil {
		c.ConversationHistory = make([]Message, len(r.ConversationHistory))
		for i, msg := range r.ConversationHistory {
			msg.Metadata.Context = CloneValues(msg.Metadata.Context)
			c.ConversationHistory[i] = msg
		}
	}

	bc := &c.BusinessContext
	bc.ExtractedPreferences = CloneValues(r.BusinessContext.ExtractedPreferences)
	bc.LearnedPatterns = slices.Clone(r.BusinessContext.LearnedPatterns)
	bc.CustomerInsights.CommonQuestions = slices.Clone(r.BusinessContext.CustomerInsights.CommonQuestions)
	bc.CustomerInsights.PreferredTopics = slices.Clone(r.BusinessContext.CustomerInsights.PreferredTopics)
	bc.CustomerInsights.EngagementPatterns = CloneValues(r.BusinessContext.CustomerInsights.EngagementPatterns)
	bc.IndustryContext.Keywords = slices.Clone(r.BusinessContext.IndustryContext.Keywords)
	bc.IndustryContext.CompetitorMentions = slices.Clone(r.BusinessContext.IndustryContext.CompetitorMentions)
	bc.IndustryContext.SeasonalTrends = CloneValues(r.BusinessContext.IndustryContext.SeasonalTrends)

	c.VectorDocumentIDs = slices.Clone(r.VectorDocumentIDs)
	c.ContextualState.PreviousIntents = slices.Clone(r.ContextualState.PreviousIntents)
	c.ContextualState.Entities = CloneValues(r.ContextualState.Entities)

	return &c
}

// PrepareCreate stamps the identity and lifecycle fields every store sets on
// creation: a fresh ID when empty, Version 1, CreatedAt/UpdatedAt and a
// default ExpiresAt.
func PrepareCreate(rec *ContextRecord, now time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.Version = 1
	if rec.ExpiresAt.IsZero() {
		rec.ExpiresAt = now.Add(DefaultLifetime)
	}
}
