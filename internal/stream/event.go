package stream

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies a wire event.
type EventType string

const (
	EventStart          EventType = "start"
	EventMessageCreated EventType = "message_created"
	EventToken          EventType = "token"
	EventToolCall       EventType = "tool_call"
	EventToolResult     EventType = "tool_result"
	EventInfo           EventType = "info"
	EventDone           EventType = "done"
	EventError          EventType = "error"
)

// Terminal reports whether the event type ends a run.
func (t EventType) Terminal() bool {
	return t == EventDone || t == EventError
}

// Event is one frame of the run event stream. Sequence numbers are strictly
// increasing per run with no gaps; Data holds the type-specific payload.
//
// Event names and payload field names are a compatibility contract: adding a
// field is safe, renaming or removing one breaks every consumer.
type Event struct {
	RunID string          `json:"run_id"`
	Seq   int64           `json:"seq"`
	Type  EventType       `json:"type"`
	Ts    time.Time       `json:"ts"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// StartPayload opens a run.
type StartPayload struct {
	ConversationID string `json:"conversation_id"`
	RunID          string `json:"run_id"`
}

// MessageCreatedPayload announces the backend-assigned message identifiers.
// It always precedes token, tool_call and tool_result events.
type MessageCreatedPayload struct {
	UserMessageID      string `json:"user_message_id"`
	AssistantMessageID string `json:"assistant_message_id"`
	ConversationID     string `json:"conversation_id"`
	RunID              string `json:"run_id"`
}

// TokenPayload carries one incremental text fragment.
type TokenPayload struct {
	Delta string `json:"delta"`
}

// ToolCallPayload announces a model-requested tool invocation.
type ToolCallPayload struct {
	ToolCallID string         `json:"tool_call_id"`
	ToolName   string         `json:"tool_name"`
	ToolArgs   map[string]any `json:"tool_args"`
}

// ToolResultPayload carries a resolved tool call.
type ToolResultPayload struct {
	ToolCallID string `json:"tool_call_id"`
	Result     string `json:"result"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Info event subtypes.
const (
	InfoRetryScheduled = "retry_scheduled"
	InfoModelSwitch    = "model_switch"
)

// InfoPayload describes non-fatal internal activity such as retries and
// model fallback.
type InfoPayload struct {
	InfoType string `json:"info_type"`

	// retry_scheduled
	Attempt     int   `json:"attempt,omitempty"`
	MaxAttempts int   `json:"max_attempts,omitempty"`
	RetryInMs   int64 `json:"retry_in_ms,omitempty"`

	// model_switch
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`
}

// TokenCounts splits streamed token events between the first model turn and
// any continuation turns after tool calls. Both zero means nothing was
// narrated and FinalText is authoritative.
type TokenCounts struct {
	Initial      int `json:"initial"`
	Continuation int `json:"continuation"`
}

// DonePayload terminates a run successfully.
type DonePayload struct {
	FinalText      string      `json:"final_text"`
	ToolCallsCount int         `json:"tool_calls_count"`
	TokenCounts    TokenCounts `json:"token_counts"`
}

// ErrorPayload terminates a run with a failure.
type ErrorPayload struct {
	Message string `json:"message"`
}

// New builds an event for the given run, sequence and payload. The payload
// must marshal cleanly; a marshal failure is a programming error and panics.
func New(runID string, seq int64, typ EventType, payload any) Event {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			panic(fmt.Sprintf("stream: marshal %s payload: %v", typ, err))
		}
		data = b
	}
	return Event{
		RunID: runID,
		Seq:   seq,
		Type:  typ,
		Ts:    time.Now().UTC(),
		Data:  data,
	}
}

func (e Event) decode(typ EventType, out any) error {
	if e.Type != typ {
		return fmt.Errorf("stream: event is %s, not %s", e.Type, typ)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("stream: decode %s payload: %w", typ, err)
	}
	return nil
}

// Start decodes the start payload.
func (e Event) Start() (StartPayload, error) {
	var p StartPayload
	err := e.decode(EventStart, &p)
	return p, err
}

// MessageCreated decodes the message_created payload.
func (e Event) MessageCreated() (MessageCreatedPayload, error) {
	var p MessageCreatedPayload
	err := e.decode(EventMessageCreated, &p)
	return p, err
}

// Token decodes the token payload.
func (e Event) Token() (TokenPayload, error) {
	var p TokenPayload
	err := e.decode(EventToken, &p)
	return p, err
}

// ToolCall decodes the tool_call payload.
func (e Event) ToolCall() (ToolCallPayload, error) {
	var p ToolCallPayload
	err := e.decode(EventToolCall, &p)
	return p, err
}

// ToolResult decodes the tool_result payload.
func (e Event) ToolResult() (ToolResultPayload, error) {
	var p ToolResultPayload
	err := e.decode(EventToolResult, &p)
	return p, err
}

// Info decodes the info payload.
func (e Event) Info() (InfoPayload, error) {
	var p InfoPayload
	err := e.decode(EventInfo, &p)
	return p, err
}

// Done decodes the done payload.
func (e Event) Done() (DonePayload, error) {
	var p DonePayload
	err := e.decode(EventDone, &p)
	return p, err
}

// Error decodes the error payload.
func (e Event) Error() (ErrorPayload, error) {
	var p ErrorPayload
	err := e.decode(EventError, &p)
	return p, err
}
