package consumer

// SendQueue holds user input submitted while a run is in flight. Strict
// FIFO: nothing is dropped, and release order matches submission order.
type SendQueue struct {
	pending []string
}

// Push enqueues a message.
func (q *SendQueue) Push(text string) {
	q.pending = append(q.pending, text)
}

// Pop dequeues the oldest message.
func (q *SendQueue) Pop() (string, bool) {
	if len(q.pending) == 0 {
		return "", false
	}
	text := q.pending[0]
	q.pending = q.pending[1:]
	return text, true
}

// Len returns the number of held messages.
func (q *SendQueue) Len() int { return len(q.pending) }

// Reset discards all held messages.
func (q *SendQueue) Reset() { q.pending = nil }
