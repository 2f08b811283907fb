package aicontext

import (
	"time"

	"github.com/creastat/aicontext/record"
)

// TruncateHistory truncates the conversation history based on token and message limits.
// It applies the message limit first, then the token limit, removing oldest messages as needed.
// A limit <= 0 disables that check.
func TruncateHistory(history []record.Message, tokenLimit, messageLimit int) []record.Message {
	if len(history) == 0 {
		return history
	}

	if messageLimit > 0 && len(history) > messageLimit {
		history = history[len(history)-messageLimit:]
	}
	if tokenLimit <= 0 {
		return history
	}

	totalTokens := 0
	for _, msg := range history {
		totalTokens += messageTokens(msg)
	}
	for totalTokens > tokenLimit && len(history) > 0 {
		totalTokens -= messageTokens(history[0])
		history = history[1:]
	}
	return history
}

// AddMessageToHistory appends a message stamped at now, fills in the token
// estimate when the caller did not supply one and evicts the oldest entries
// beyond record.MaxHistory.
func AddMessageToHistory(history []record.Message, role record.Role, content string, metadata record.MessageMetadata, now time.Time) []record.Message {
	if metadata.TokenCount <= 0 {
		metadata.TokenCount = EstimateTokens(content)
	}
	metadata.Context = record.CloneValues(metadata.Context)
	history = append(history, record.Message{
		Role:      role,
		Content:   content,
		Timestamp: now,
		Metadata:  metadata,
	})
	return TruncateHistory(history, 0, record.MaxHistory)
}
