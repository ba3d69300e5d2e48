// Package prompt builds the text handed to the language model: it bounds the
// conversation history to a character budget and renders the chat-turn
// template the model was tuned on.
package prompt

// Role tags a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message of a conversation.
type Turn struct {
	Role Role
	Text string
}

// ParseRole maps wire role names onto Role. Unknown names are reported with ok=false.
func ParseRole(s string) (Role, bool) {
	switch s {
	case "user":
		return RoleUser, true
	case "assistant", "model":
		return RoleAssistant, true
	}
	return "", false
}
