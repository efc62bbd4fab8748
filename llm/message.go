package llm

// Role is the author of a chat message.
type Role string

// Roles accepted by OpenAI-compatible chat endpoints. The generator sends a
// system message followed by the rendered prompt as the user message.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat message in wire form.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// validMessages reports the index of the first message with an unknown role
// or empty content, or -1.
func validMessages(msgs []Message) int {
	for i, m := range msgs {
		switch m.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return i
		}
		if m.Content == "" {
			return i
		}
	}
	return -1
}
