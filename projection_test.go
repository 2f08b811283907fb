package aicontext

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/creastat/aicontext/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("Hi"))
	assert.Equal(t, 3, EstimateTokens("hello world!"))
	assert.Equal(t, 2, EstimateTokens("你好"))
}

func TestTruncateHistory(t *testing.T) {
	history := make([]record.Message, 5)
	for i := range history {
		history[i] = record.Message{Content: fmt.Sprintf("m%d", i), Metadata: record.MessageMetadata{TokenCount: 10}}
	}

	assert.Len(t, TruncateHistory(history, 0, 0), 5)
	assert.Equal(t, "m2", TruncateHistory(history, 0, 3)[0].Content)

	got := TruncateHistory(history, 25, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "m3", got[0].Content)

	assert.Empty(t, TruncateHistory(history, 5, 0))
	assert.Empty(t, TruncateHistory(nil, 10, 10))
}

func TestProject(t *testing.T) {
	rec := record.New(record.Key{TenantID: "T1", ContextType: record.ContextChatbot, SessionID: "S1"})
	for i := range 10 {
		rec.ConversationHistory = AddMessageToHistory(rec.ConversationHistory, record.RoleUser, fmt.Sprintf("m%d", i),
			record.MessageMetadata{Model: "m", Context: map[string]record.Value{"i": record.NumberValue(float64(i))}}, base)
	}
	rec.BusinessContext.ExtractedPreferences["topics"] = record.Strings("pricing")
	rec.ContextualState.Entities["plan"] = record.StringValue("pro")

	payload := Project(rec, 3)
	require.Len(t, payload.Messages, 3)
	assert.Equal(t, ProjectedMessage{Role: record.RoleUser, Content: "m7"}, payload.Messages[0])
	assert.Equal(t, ProjectedMessage{Role: record.RoleUser, Content: "m9"}, payload.Messages[2])

	payload.BusinessContext["topics"] = record.Strings("changed")
	payload.Entities["plan"] = record.StringValue("free")
	assert.True(t, rec.BusinessContext.ExtractedPreferences["topics"].Equal(record.Strings("pricing")))
	assert.True(t, rec.ContextualState.Entities["plan"].Equal(record.StringValue("pro")))
	assert.Len(t, rec.ConversationHistory, 10)

	assert.Len(t, Project(rec, 0).Messages, DefaultProjectedMessages)
	assert.Len(t, Project(rec, 100).Messages, 10)
	assert.Len(t, Project(rec, 10, WithTokenLimit(2)).Messages, 2)
}

func TestKeyLock(t *testing.T) {
	locks := newKeyLock()

	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(record.Key{TenantID: "T1", ContextType: record.ContextChatbot, SessionID: "S1"})
			defer unlock()
			n := inside.Add(1)
			if n > maxInside.Load() {
				maxInside.Store(n)
			}
			inside.Add(-1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside.Load())
	assert.Zero(t, locks.size())

	// Parts that would join to the same string are still different keys.
	unlockA := locks.Lock(record.Key{TenantID: "a:b", ContextType: record.ContextChatbot, SessionID: "c"})
	unlockB := locks.Lock(record.Key{TenantID: "a", ContextType: record.ContextChatbot, SessionID: "b:c"})
	assert.Equal(t, 2, locks.size())
	unlockA()
	unlockB()
	assert.Zero(t, locks.size())
}
