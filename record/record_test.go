package record

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextType_Valid(t *testing.T) {
	assert.True(t, ContextChatbot.Valid())
	assert.True(t, ContextImageGeneration.Valid())
	assert.False(t, ContextType("sms").Valid())
	assert.False(t, ContextType("").Valid())
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleSystem.Valid())
	assert.False(t, Role("tool").Valid())
}

func TestKey_Encode(t *testing.T) {
	k := Key{TenantID: "acme", ContextType: ContextChatbot, SessionID: "s1"}
	assert.Equal(t, "4:acme:7:chatbot:2:s1", k.Encode())

	a := Key{TenantID: "acme:chatbot:x", ContextType: ContextChatbot, SessionID: "y"}
	b := Key{TenantID: "acme", ContextType: ContextChatbot, SessionID: "x:chatbot:y"}
	assert.NotEqual(t, a.Encode(), b.Encode())

	c := Key{TenantID: "t\x00", ContextType: ContextChatbot, SessionID: "s"}
	d := Key{TenantID: "t", ContextType: ContextChatbot, SessionID: "\x00s"}
	assert.NotEqual(t, c.Encode(), d.Encode())
}

func TestNew_EmptyStructures(t *testing.T) {
	rec := New(Key{TenantID: "T1", ContextType: ContextChatbot, SessionID: "S1"})

	assert.True(t, rec.IsActive)
	assert.Empty(t, rec.ConversationHistory)
	assert.NotNil(t, rec.BusinessContext.ExtractedPreferences)
	assert.Empty(t, rec.BusinessContext.LearnedPatterns)
	assert.Zero(t, rec.BusinessContext.CustomerInsights.SentimentAnalysis.Positive)
	assert.Zero(t, rec.Performance.TotalInteractions)
	assert.Equal(t, "T1/chatbot/S1", rec.Key().String())
}

func TestContextRecord_CloneIsDeep(t *testing.T) {
	rec := New(Key{TenantID: "T1", ContextType: ContextEmail, SessionID: "S1"})
	rec.ConversationHistory = append(rec.ConversationHistory, Message{Role: RoleUser, Content: "hi"})
	rec.BusinessContext.ExtractedPreferences["topics"] = Strings("pricing")
	rec.ContextualState.Entities["company"] = MapValue(map[string]Value{"name": StringValue("Acme")})

	c := rec.Clone()
	c.ConversationHistory[0].Content = "changed"
	c.BusinessContext.ExtractedPreferences["topics"] = Strings("other")
	inner, _ := c.ContextualState.Entities["company"].AsMap()
	inner["name"] = StringValue("Globex")

	assert.Equal(t, "hi", rec.ConversationHistory[0].Content)
	assert.True(t, rec.BusinessContext.ExtractedPreferences["topics"].Equal(Strings("pricing")))
	orig, _ := rec.ContextualState.Entities["company"].AsMap()
	name, _ := orig["name"].AsString()
	assert.Equal(t, "Acme", name)
}

func TestContextRecord_Summary(t *testing.T) {
	rec := New(Key{TenantID: "T1", ContextType: ContextChatbot, SessionID: "S1"})
	rec.ConversationHistory = []Message{
		{Role: RoleSystem, Content: "be nice"},
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
		{Role: RoleUser, Content: "price?"},
	}
	rec.Performance.AverageResponseTime = 120

	s := rec.Summary()
	assert.Equal(t, Summary{TotalMessages: 4, UserMessages: 2, AssistantMessages: 1, AvgResponseTime: 120}, s)
}

func TestValue_JSONRoundTripKeepsKinds(t *testing.T) {
	raw := `{"a":"x","b":2.5,"c":true,"d":[1,"two"],"e":{"f":null}}`
	var m map[string]Value
	require.NoError(t, json.Unmarshal([]byte(raw), &m))

	assert.Equal(t, KindString, m["a"].Kind())
	assert.Equal(t, KindNumber, m["b"].Kind())
	assert.Equal(t, KindBool, m["c"].Kind())
	assert.Equal(t, KindList, m["d"].Kind())
	inner, ok := m["e"].AsMap()
	require.True(t, ok)
	assert.True(t, inner["f"].IsNull())

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestValue_Equal(t *testing.T) {
	a := ListValue(StringValue("x"), MapValue(map[string]Value{"n": NumberValue(1)}))
	b := ListValue(StringValue("x"), MapValue(map[string]Value{"n": NumberValue(1)}))
	c := ListValue(StringValue("x"), MapValue(map[string]Value{"n": NumberValue(2)}))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, StringValue("1").Equal(NumberValue(1)))
}

func TestFromAny_RejectsUnsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.Error(t, err)

	v, err := FromAny(map[string]any{"tags": []string{"a", "b"}, "n": 3})
	require.NoError(t, err)
	m, _ := v.AsMap()
	assert.True(t, m["tags"].Equal(Strings("a", "b")))
	n, _ := m["n"].AsNumber()
	assert.Equal(t, 3.0, n)
}

func TestRetentionPolicy_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewRetentionPolicy(now, 0, 0)

	fresh := &ContextRecord{IsActive: true, UpdatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(time.Hour)}
	stale := &ContextRecord{IsActive: true, UpdatedAt: now.Add(-31 * 24 * time.Hour)}
	inactiveOld := &ContextRecord{IsActive: false, UpdatedAt: now.Add(-8 * 24 * time.Hour)}
	inactiveRecent := &ContextRecord{IsActive: false, UpdatedAt: now.Add(-6 * 24 * time.Hour)}
	activeWeekOld := &ContextRecord{IsActive: true, UpdatedAt: now.Add(-8 * 24 * time.Hour)}
	pastExpiry := &ContextRecord{IsActive: true, UpdatedAt: now.Add(-time.Hour), ExpiresAt: now.Add(-time.Minute)}

	assert.False(t, p.Expired(fresh))
	assert.True(t, p.Expired(stale))
	assert.True(t, p.Expired(inactiveOld))
	assert.False(t, p.Expired(inactiveRecent))
	assert.False(t, p.Expired(activeWeekOld))
	assert.True(t, p.Expired(pastExpiry))
	assert.Equal(t, now.Add(-7*24*time.Hour), p.Horizon())
}
