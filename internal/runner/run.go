package runner

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStreaming Status = "streaming"
	StatusDone      Status = "done"
	StatusError     Status = "error"
	StatusAborted   Status = "aborted"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	switch s {
	case StatusDone, StatusError, StatusAborted:
		return true
	}
	return false
}

// validTransitions encodes the run lifecycle. A terminal status has no exits;
// aborted is reachable only from streaming, driven by consumer cancellation.
var validTransitions = map[Status][]Status{
	StatusPending:   {StatusStreaming, StatusError},
	StatusStreaming: {StatusDone, StatusError, StatusAborted},
}

// Run is one streamed execution of a conversational turn. It owns the
// per-run sequence counter; every emitted event takes its seq from NextSeq so
// numbering is gapless by construction.
type Run struct {
	ID             string
	ConversationID string

	mu     sync.Mutex
	status Status
	seq    int64
}

// NewRun creates a pending run for the conversation.
func NewRun(conversationID string) *Run {
	return &Run{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		status:         StatusPending,
	}
}

// Status returns the current lifecycle state.
func (r *Run) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Run) transition(to Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, allowed := range validTransitions[r.status] {
		if allowed == to {
			r.status = to
			return nil
		}
	}
	return fmt.Errorf("invalid run transition: %s -> %s", r.status, to)
}

// Begin moves the run from pending to streaming.
func (r *Run) Begin() error { return r.transition(StatusStreaming) }

// Finish marks the run successfully completed.
func (r *Run) Finish() error { return r.transition(StatusDone) }

// Fail marks the run terminally failed.
func (r *Run) Fail() error { return r.transition(StatusError) }

// Abort marks the run cancelled by the consumer.
func (r *Run) Abort() error { return r.transition(StatusAborted) }

// NextSeq returns the next sequence number, starting at 0.
func (r *Run) NextSeq() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq := r.seq
	r.seq++
	return seq
}
