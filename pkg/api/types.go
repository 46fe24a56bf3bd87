package api

import "fmt"

// Role identifies the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"

	// RoleAI is the role of model-generated messages.
	RoleAI = RoleAssistant
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// String returns the lowercase wire tag.
func (r Role) String() string {
	return string(r)
}

// Message pairs a role with text content. Messages are values: once built
// they are copied, never shared, so a stored message cannot change.
type Message struct {
	Role    Role
	Content string
}

// NewMessage builds a Message, rejecting unknown roles.
func NewMessage(role Role, content string) (Message, error) {
	if !role.Valid() {
		return Message{}, NewInvalidRequestError("role", fmt.Sprintf("unknown role %q", role))
	}
	return Message{Role: role, Content: content}, nil
}

// SystemMessage returns a system message with the given content.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage returns a user message with the given content.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns an assistant message with the given content.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// WireMessage is the JSON form of a message in a completion request.
type WireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Wire converts the message to its request form.
func (m Message) Wire() WireMessage {
	return WireMessage{Role: m.Role.String(), Content: m.Content}
}

// ToWire converts a message sequence to its request form, preserving order.
func ToWire(messages []Message) []WireMessage {
	out := make([]WireMessage, len(messages))
	for i, m := range messages {
		out[i] = m.Wire()
	}
	return out
}

// ValidateMessages checks that a completion request has at least one
// message and that every role is known.
func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return NewInvalidRequestError("messages", "at least one message is required")
	}
	for i, m := range messages {
		if !m.Role.Valid() {
			return NewInvalidRequestError(fmt.Sprintf("messages[%d].role", i), fmt.Sprintf("unknown role %q", m.Role))
		}
	}
	return nil
}
