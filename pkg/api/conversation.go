package api

// Conversation is the ordered history of a chat session. Messages can only
// be appended; the full history is resent on every request.
//
// A Conversation is not safe for concurrent mutation. A session runs one
// turn at a time, so no locking is needed.
type Conversation struct {
	messages []Message
}

// NewConversation returns a conversation seeded with the given messages.
func NewConversation(messages ...Message) *Conversation {
	c := &Conversation{}
	c.messages = append(c.messages, messages...)
	return c
}

// Add appends a message to the end of the history.
func (c *Conversation) Add(m Message) {
	c.messages = append(c.messages, m)
}

// Messages returns a copy of the history, oldest first.
func (c *Conversation) Messages() []Message {
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Last returns the most recent message. ok is false for an empty history.
func (c *Conversation) Last() (m Message, ok bool) {
	if len(c.messages) == 0 {
		return Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}
