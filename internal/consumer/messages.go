package consumer

// Message roles in the client transcript.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is one entry of the client-side transcript. Real message
// identifiers are backend-assigned; only transient system notices carry
// locally-generated ones.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string

	// Err holds a failure description attached to the message.
	Err string

	// RunID links the message to its producing run while that run is live.
	// Cleared when the run finalizes.
	RunID string

	// Transient marks informational system notices that are not part of the
	// analytical transcript.
	Transient bool
}

// MessageStore is the ordered transcript. The coordinator serializes all
// access; the store itself holds no lock.
type MessageStore struct {
	messages []Message
	index    map[string]int
}

// NewMessageStore creates an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{index: make(map[string]int)}
}

// Append adds a message to the end of the transcript.
func (s *MessageStore) Append(m Message) {
	s.index[m.ID] = len(s.messages)
	s.messages = append(s.messages, m)
}

// Get returns a message by identifier.
func (s *MessageStore) Get(id string) (Message, bool) {
	i, ok := s.index[id]
	if !ok {
		return Message{}, false
	}
	return s.messages[i], true
}

// SetContent replaces a message's content.
func (s *MessageStore) SetContent(id, content string) {
	if i, ok := s.index[id]; ok {
		s.messages[i].Content = content
	}
}

// Finalize pins the message's final content and clears its run linkage so no
// later event can mutate it.
func (s *MessageStore) Finalize(id, content string) {
	if i, ok := s.index[id]; ok {
		s.messages[i].Content = content
		s.messages[i].RunID = ""
	}
}

// FinalizeError attaches a failure to the message. Streamed text already
// present is preserved with the reason appended; an empty message becomes
// the error text itself.
func (s *MessageStore) FinalizeError(id, reason string) {
	i, ok := s.index[id]
	if !ok {
		return
	}
	m := &s.messages[i]
	if m.Content == "" {
		m.Content = "Something went wrong: " + reason
	} else {
		m.Content += "\n\n[interrupted: " + reason + "]"
	}
	m.Err = reason
	m.RunID = ""
}

// Messages returns a copy of the transcript.
func (s *MessageStore) Messages() []Message {
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the transcript length.
func (s *MessageStore) Len() int { return len(s.messages) }

// Reset discards the entire transcript.
func (s *MessageStore) Reset() {
	s.messages = nil
	s.index = make(map[string]int)
}
