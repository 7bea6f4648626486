package consumer

import "strings"

// RunBuffer accumulates token fragments for one run in arrival order. The
// coordinator serializes access; the buffer itself is not safe for
// concurrent use.
type RunBuffer struct {
	runID string
	text  strings.Builder
}

// NewRunBuffer creates a buffer for the run.
func NewRunBuffer(runID string) *RunBuffer {
	return &RunBuffer{runID: runID}
}

// RunID returns the owning run identifier.
func (b *RunBuffer) RunID() string { return b.runID }

// Append adds a token fragment.
func (b *RunBuffer) Append(delta string) {
	b.text.WriteString(delta)
}

// Text returns the accumulated text so far.
func (b *RunBuffer) Text() string {
	return b.text.String()
}

// FinalText decides the authoritative final content at done: streamed text
// wins when any was received, otherwise the backend-supplied final text
// covers the case where the answer was pure tool orchestration.
func (b *RunBuffer) FinalText(backendFinal string) string {
	if s := b.text.String(); s != "" {
		return s
	}
	return backendFinal
}
