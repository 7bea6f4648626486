// Package conversation holds backend conversation state: mode, message
// history and the single-active-run guard. State is process-local; durable
// conversation persistence lives outside this service.
package conversation

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"folio/internal/provider"
	"folio/internal/runner"
)

// ErrActiveRun is returned when a run is requested for a conversation that
// already has a non-terminal run.
var ErrActiveRun = errors.New("conversation already has an active run")

// Conversation is one user dialogue with the analyst.
type Conversation struct {
	ID string

	mu        sync.Mutex
	mode      Mode
	context   string
	messages  []provider.Message
	activeRun *runner.Run
}

// Mode returns the active response mode.
func (c *Conversation) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetMode switches the response mode. Takes effect on the next run.
func (c *Conversation) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// SystemPrompt builds the system prompt from the mode and any caller-attached
// context payload.
func (c *Conversation) SystemPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	prompt := c.mode.SystemPrompt()
	if c.context != "" {
		prompt += "\n\nContext provided by the application:\n" + c.context
	}
	return prompt
}

// History returns a copy of the message history.
func (c *Conversation) History() []provider.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]provider.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Append adds messages to the history.
func (c *Conversation) Append(msgs ...provider.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msgs...)
}

// BeginRun creates a new run for the conversation. At most one non-terminal
// run may exist per conversation; a second request fails with ErrActiveRun.
func (c *Conversation) BeginRun() (*runner.Run, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeRun != nil && !c.activeRun.Status().Terminal() {
		return nil, fmt.Errorf("%w: %s", ErrActiveRun, c.activeRun.ID)
	}
	run := runner.NewRun(c.ID)
	c.activeRun = run
	return run, nil
}

// ActiveRun returns the current non-terminal run, if any.
func (c *Conversation) ActiveRun() (*runner.Run, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.activeRun == nil || c.activeRun.Status().Terminal() {
		return nil, false
	}
	return c.activeRun, true
}

// Store is the in-memory conversation registry.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		conversations: make(map[string]*Conversation),
	}
}

// Create registers a new conversation.
func (s *Store) Create(mode Mode, contextPayload string) *Conversation {
	if mode == "" {
		mode = ModeAnalyst
	}
	c := &Conversation{
		ID:      uuid.New().String(),
		mode:    mode,
		context: contextPayload,
	}

	s.mu.Lock()
	s.conversations[c.ID] = c
	s.mu.Unlock()
	return c
}

// Get looks up a conversation by identifier.
func (s *Store) Get(id string) (*Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	return c, ok
}

// Count returns the number of conversations held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
