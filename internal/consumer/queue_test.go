package consumer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSendQueueFIFO(t *testing.T) {
	var q SendQueue

	_, ok := q.Pop()
	assert.False(t, ok)

	q.Push("a")
	q.Push("b")
	q.Push("c")
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.Pop()
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, q.Len())
}

func TestSendQueueReset(t *testing.T) {
	var q SendQueue
	q.Push("a")
	q.Reset()
	assert.Equal(t, 0, q.Len())
	_, ok := q.Pop()
	assert.False(t, ok)
}

func TestRunBufferAuthority(t *testing.T) {
	b := NewRunBuffer("run-1")
	assert.Equal(t, "run-1", b.RunID())

	// Empty buffer defers to the backend text.
	assert.Equal(t, "backend text", b.FinalText("backend text"))

	b.Append("stream")
	b.Append("ed text")
	assert.Equal(t, "streamed text", b.Text())

	// Any streamed text wins over the backend text.
	assert.Equal(t, "streamed text", b.FinalText("backend text"))
}

func TestMessageStoreFinalizeError(t *testing.T) {
	s := NewMessageStore()
	s.Append(Message{ID: "a", Role: RoleAssistant, RunID: "run-1", Content: "partial"})

	s.FinalizeError("a", "connection lost")
	m, ok := s.Get("a")
	assert.True(t, ok)
	assert.Contains(t, m.Content, "partial")
	assert.Contains(t, m.Content, "connection lost")
	assert.Empty(t, m.RunID)

	s.Append(Message{ID: "b", Role: RoleAssistant, RunID: "run-2"})
	s.FinalizeError("b", "boom")
	m, _ = s.Get("b")
	assert.Equal(t, "Something went wrong: boom", m.Content)
}
