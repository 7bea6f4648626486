// Package consumer is the client side of the run protocol: it decodes the
// event stream, buffers partial text, reconciles it into a transcript, and
// serializes outbound sends while a run is in flight.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"folio/internal/logging"
	"folio/internal/stream"
)

// clientRun is the local state of one in-flight run.
type clientRun struct {
	id                 string
	assistantMessageID string
	userText           string
	buffer             *RunBuffer
	cancel             context.CancelFunc
	terminal           bool
}

// Coordinator owns all client-side run state: transcript, run buffer, send
// queue and watchdog. Events are applied one at a time under a single lock,
// so buffer updates and store mutation never interleave for the same run.
type Coordinator struct {
	transport *Transport
	onUpdate  func()

	mu             sync.Mutex
	store          *MessageStore
	queue          *SendQueue
	watchdog       *Watchdog
	conversationID string
	mode           string
	run            *clientRun
}

// NewCoordinator creates a coordinator. onUpdate is invoked, outside the
// lock, after every observable state change; it may be nil.
func NewCoordinator(transport *Transport, watchdogCeiling time.Duration, onUpdate func()) *Coordinator {
	c := &Coordinator{
		transport: transport,
		onUpdate:  onUpdate,
		store:     NewMessageStore(),
		queue:     &SendQueue{},
	}
	c.watchdog = NewWatchdog(watchdogCeiling, c.watchdogExpired)
	return c
}

func (c *Coordinator) notify() {
	if c.onUpdate != nil {
		c.onUpdate()
	}
}

// Messages returns a copy of the transcript.
func (c *Coordinator) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Messages()
}

// Busy reports whether a run is in flight.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.run != nil
}

// QueuedCount returns the number of messages waiting behind the active run.
func (c *Coordinator) QueuedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queue.Len()
}

// ConversationID returns the backend conversation identifier, empty until
// the first run's start event arrives.
func (c *Coordinator) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversationID
}

// Send submits user input. If a run is active the input is queued and
// dispatched automatically, in order, when the run terminates; otherwise a
// new run starts immediately.
func (c *Coordinator) Send(text string) {
	c.mu.Lock()
	if c.run != nil {
		c.queue.Push(text)
		c.mu.Unlock()
		c.notify()
		return
	}
	c.startRunLocked(text)
	c.mu.Unlock()
	c.notify()
}

// SetMode switches the conversation's response mode. Before the first run
// exists the mode is held locally and sent with the run request.
func (c *Coordinator) SetMode(ctx context.Context, mode string) error {
	c.mu.Lock()
	c.mode = mode
	conversationID := c.conversationID
	c.mu.Unlock()

	if conversationID == "" {
		return nil
	}
	return c.transport.SetMode(ctx, conversationID, mode)
}

// Abort cancels the active run. Streamed text is kept as-is, not rolled
// back, and any queued input is dispatched.
func (c *Coordinator) Abort() {
	c.mu.Lock()
	cr := c.run
	if cr == nil {
		c.mu.Unlock()
		return
	}
	cr.cancel()
	if cr.assistantMessageID != "" {
		c.store.Finalize(cr.assistantMessageID, cr.buffer.Text())
	}
	c.terminateLocked(cr)
	c.mu.Unlock()
	c.notify()
}

// Reset discards the whole local state: transcript, queue and conversation
// linkage. Used when the backend reports the conversation stale.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	if c.run != nil {
		c.run.cancel()
		c.run.terminal = true
		c.run = nil
	}
	c.watchdog.Disarm()
	c.store.Reset()
	c.queue.Reset()
	c.conversationID = ""
	c.mu.Unlock()
	c.notify()
}

// startRunLocked launches a run for the given input. Caller holds the lock.
func (c *Coordinator) startRunLocked(text string) {
	ctx, cancel := context.WithCancel(context.Background())
	cr := &clientRun{
		userText: text,
		cancel:   cancel,
	}
	c.run = cr
	c.watchdog.Arm()

	req := RunRequest{
		ConversationID: c.conversationID,
		Message:        text,
		Mode:           c.mode,
	}
	go c.runStream(ctx, cr, req)
}

// runStream performs the network half of a run: issue the request, decode
// frames, apply each one. It never touches coordinator state directly
// without the lock.
func (c *Coordinator) runStream(ctx context.Context, cr *clientRun, req RunRequest) {
	body, err := c.transport.BeginRun(ctx, req)
	if err != nil {
		c.runSetupFailed(cr, err)
		return
	}
	defer body.Close()

	dec := stream.NewDecoder(body)
	for {
		ev, err := dec.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				c.transportFailed(cr, err)
			}
			c.streamClosed(cr)
			return
		}
		c.apply(cr, ev)
	}
}

func (c *Coordinator) runSetupFailed(cr *clientRun, err error) {
	if errors.Is(err, ErrUnknownConversation) {
		logging.Warn("conversation is stale, resetting local state")
		c.Reset()
		c.mu.Lock()
		c.appendSystemLocked("This conversation is no longer available. Your history has been cleared; please resend your message.", true)
		c.mu.Unlock()
		c.notify()
		return
	}

	c.mu.Lock()
	if c.run == cr && !cr.terminal {
		c.appendSystemLocked(fmt.Sprintf("Could not reach the server: %v", err), false)
		c.terminateLocked(cr)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Coordinator) transportFailed(cr *clientRun, err error) {
	logging.Warn("event stream transport failed", "error", err)
	c.mu.Lock()
	if c.run == cr && !cr.terminal {
		if cr.assistantMessageID != "" {
			c.store.FinalizeError(cr.assistantMessageID, "connection lost")
		} else {
			c.appendSystemLocked("Connection lost before the response started.", false)
		}
		c.terminateLocked(cr)
	}
	c.mu.Unlock()
	c.notify()
}

// streamClosed handles a stream that ended without a terminal event.
func (c *Coordinator) streamClosed(cr *clientRun) {
	c.mu.Lock()
	if c.run == cr && !cr.terminal {
		if cr.assistantMessageID != "" {
			c.store.FinalizeError(cr.assistantMessageID, "stream ended unexpectedly")
		} else {
			c.appendSystemLocked("The server closed the stream before responding.", false)
		}
		c.terminateLocked(cr)
	}
	c.mu.Unlock()
	c.notify()
}

// apply processes one decoded event. Events for a run that is no longer
// active are stragglers from an aborted transport and are discarded.
func (c *Coordinator) apply(cr *clientRun, ev stream.Event) {
	c.mu.Lock()
	if c.run != cr || cr.terminal {
		c.mu.Unlock()
		return
	}
	c.watchdog.Arm()

	switch ev.Type {
	case stream.EventStart:
		if p, err := ev.Start(); err == nil {
			cr.id = p.RunID
			cr.buffer = NewRunBuffer(p.RunID)
			c.conversationID = p.ConversationID
		}

	case stream.EventMessageCreated:
		if p, err := ev.MessageCreated(); err == nil {
			cr.assistantMessageID = p.AssistantMessageID
			c.store.Append(Message{
				ID:             p.UserMessageID,
				ConversationID: p.ConversationID,
				Role:           RoleUser,
				Content:        cr.userText,
			})
			c.store.Append(Message{
				ID:             p.AssistantMessageID,
				ConversationID: p.ConversationID,
				Role:           RoleAssistant,
				RunID:          p.RunID,
			})
		}

	case stream.EventToken:
		if p, err := ev.Token(); err == nil && cr.buffer != nil {
			cr.buffer.Append(p.Delta)
			c.store.SetContent(cr.assistantMessageID, cr.buffer.Text())
		}

	case stream.EventToolCall:
		if p, err := ev.ToolCall(); err == nil {
			logging.Debug("tool call streamed", "tool", p.ToolName, "call_id", p.ToolCallID)
		}

	case stream.EventToolResult:
		if p, err := ev.ToolResult(); err == nil {
			logging.Debug("tool result streamed", "call_id", p.ToolCallID, "is_error", p.IsError)
		}

	case stream.EventInfo:
		if p, err := ev.Info(); err == nil {
			c.appendSystemLocked(formatInfo(p), true)
		}

	case stream.EventDone:
		if p, err := ev.Done(); err == nil {
			final := p.FinalText
			if cr.buffer != nil {
				final = cr.buffer.FinalText(p.FinalText)
			}
			c.store.Finalize(cr.assistantMessageID, final)
			c.terminateLocked(cr)
		}

	case stream.EventError:
		if p, err := ev.Error(); err == nil {
			if cr.assistantMessageID != "" {
				c.store.FinalizeError(cr.assistantMessageID, p.Message)
			} else {
				c.appendSystemLocked("Request failed: "+p.Message, false)
			}
			c.terminateLocked(cr)
		}
	}
	c.mu.Unlock()
	c.notify()
}

// terminateLocked finishes the run locally and releases the queue. Caller
// holds the lock.
func (c *Coordinator) terminateLocked(cr *clientRun) {
	cr.terminal = true
	cr.cancel()
	c.run = nil
	c.watchdog.Disarm()

	if next, ok := c.queue.Pop(); ok {
		c.startRunLocked(next)
	}
}

func (c *Coordinator) appendSystemLocked(text string, transient bool) {
	c.store.Append(Message{
		ID:             uuid.New().String(),
		ConversationID: c.conversationID,
		Role:           RoleSystem,
		Content:        text,
		Transient:      transient,
	})
}

// watchdogExpired force-aborts a run whose stream has gone silent past the
// ceiling without a terminal event.
func (c *Coordinator) watchdogExpired() {
	c.mu.Lock()
	cr := c.run
	if cr == nil || cr.terminal {
		c.mu.Unlock()
		return
	}
	logging.Warn("watchdog fired, aborting silent run", "run_id", cr.id)
	cr.cancel()
	if cr.assistantMessageID != "" && cr.buffer != nil {
		c.store.FinalizeError(cr.assistantMessageID, "response timed out")
	}
	c.appendSystemLocked("The response stalled and was cancelled. You can try again.", false)
	c.terminateLocked(cr)
	c.mu.Unlock()
	c.notify()
}

func formatInfo(p stream.InfoPayload) string {
	switch p.InfoType {
	case stream.InfoRetryScheduled:
		return fmt.Sprintf("Temporary issue reaching the model. Retrying (attempt %d of %d) in %.2fs.",
			p.Attempt, p.MaxAttempts, float64(p.RetryInMs)/1000)
	case stream.InfoModelSwitch:
		return fmt.Sprintf("Switched from %s to %s after attempt %d.", p.From, p.To, p.Attempt)
	}
	return "Note: " + p.InfoType
}
