package history

import "strings"

const turnSeparator = "\n\n"

// flattens a conversation into the plain-text prompt sent upstream.
// earlier turns carry a "Human:" or "Assistant:" prefix; a trailing user
// message (the one being answered) is appended bare.
func PromptText(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}

	parts := make([]string, 0, len(messages))
	last := len(messages) - 1

	for i, msg := range messages {
		if i == last && msg.Role == RoleUser {
			parts = append(parts, msg.Content)
			continue
		}

		parts = append(parts, prefixed(msg))
	}

	return strings.Join(parts, turnSeparator)
}

func prefixed(msg Message) string {
	switch msg.Role {
	case RoleUser:
		return "Human: " + msg.Content
	case RoleAssistant:
		return "Assistant: " + msg.Content
	default:
		return msg.Content
	}
}
