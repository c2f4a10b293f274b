package llm

// DefaultMaxHistoryMessages bounds the prior conversation sent with a new turn.
const DefaultMaxHistoryMessages = 20

// TrimHistory keeps at most max of the most recent messages. The cut point is moved forward
// past tool results so an assistant tool-call message is never separated from its results.
func TrimHistory(messages []ChatMessage, max int) []ChatMessage {
	if max <= 0 {
		max = DefaultMaxHistoryMessages
	}
	if len(messages) <= max {
		return messages
	}

	start := len(messages) - max
	for start < len(messages) && messages[start].Role == RoleTool {
		start++
	}
	out := make([]ChatMessage, len(messages)-start)
	copy(out, messages[start:])
	return out
}
