package aicontext

import "github.com/creastat/aicontext/record"

// DefaultProjectedMessages is used when a projection asks for no positive count.
const DefaultProjectedMessages = 10

// ProjectedMessage is a conversation turn stripped of metadata.
type ProjectedMessage struct {
	Role    record.Role `json:"role"`
	Content string      `json:"content"`
}

// ContextPayload is the bounded, model-ready view of a record handed to a
// generation chain. Chains depend on this type only, never on the record.
type ContextPayload struct {
	Messages        []ProjectedMessage      `json:"messages"`
	BusinessContext map[string]record.Value `json:"business_context"`
	CurrentIntent   string                  `json:"current_intent,omitempty"`
	Entities        map[string]record.Value `json:"entities"`
	Mood            record.Mood             `json:"mood,omitempty"`
}

type projectionConfig struct {
	tokenLimit int
}

// ProjectionOption tunes a projection.
type ProjectionOption func(*projectionConfig)

// WithTokenLimit drops the oldest projected messages until the estimated
// token total fits within limit.
func WithTokenLimit(limit int) ProjectionOption {
	return func(c *projectionConfig) {
		c.tokenLimit = limit
	}
}

// Project builds the payload for a generation request from the last
// maxMessages messages of rec. It does not modify rec; maps in the payload
// are copies.
func Project(rec *record.ContextRecord, maxMessages int, opts ...ProjectionOption) ContextPayload {
	config := &projectionConfig{}
	for _, opt := range opts {
		opt(config)
	}
	if maxMessages <= 0 {
		maxMessages = DefaultProjectedMessages
	}

	window := TruncateHistory(rec.ConversationHistory, config.tokenLimit, maxMessages)
	messages := make([]ProjectedMessage, len(window))
	for i, msg := range window {
		messages[i] = ProjectedMessage{Role: msg.Role, Content: msg.Content}
	}

	return ContextPayload{
		Messages:        messages,
		BusinessContext: record.CloneValues(rec.BusinessContext.ExtractedPreferences),
		CurrentIntent:   rec.ContextualState.CurrentIntent,
		Entities:        record.CloneValues(rec.ContextualState.Entities),
		Mood:            rec.ContextualState.Mood,
	}
}
