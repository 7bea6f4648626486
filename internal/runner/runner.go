// Package runner drives one conversational turn against a model provider:
// it alternates model calls and tool dispatch until the model produces a
// final answer, emitting an ordered event stream along the way.
package runner

import (
	"context"
	"errors"
	"time"

	"folio/internal/logging"
	"folio/internal/provider"
	"folio/internal/ratelimit"
	"folio/internal/stream"
	"folio/internal/tools"
)

// DefaultMaxToolIterations caps model<->tool round trips per run.
const DefaultMaxToolIterations = 8

// Turn is the input to one run: the conversation context plus the
// backend-assigned identifiers for the pair of messages this run creates.
type Turn struct {
	ConversationID     string
	UserMessageID      string
	AssistantMessageID string

	System   string
	Messages []provider.Message
	Tools    []provider.ToolDefinition
}

// Runner executes runs. It is shared across runs and holds no per-run state.
type Runner struct {
	primary       provider.Client
	fallback      provider.Client
	retry         provider.RetryConfig
	limiter       *ratelimit.Limiter
	dispatcher    *tools.Dispatcher
	maxIterations int
}

// Options configures a Runner.
type Options struct {
	Primary           provider.Client
	Fallback          provider.Client
	Retry             provider.RetryConfig
	Limiter           *ratelimit.Limiter
	Dispatcher        *tools.Dispatcher
	MaxToolIterations int
}

// New creates a runner.
func New(opts Options) *Runner {
	maxIterations := opts.MaxToolIterations
	if maxIterations < 1 {
		maxIterations = DefaultMaxToolIterations
	}
	return &Runner{
		primary:       opts.Primary,
		fallback:      opts.Fallback,
		retry:         opts.Retry,
		limiter:       opts.Limiter,
		dispatcher:    opts.Dispatcher,
		maxIterations: maxIterations,
	}
}

// Start launches the run loop and returns its event channel. The channel is
// closed after the terminal event. Cancelling ctx aborts the run; an aborted
// run emits no terminal event because its transport is gone.
func (r *Runner) Start(ctx context.Context, run *Run, turn Turn) <-chan stream.Event {
	events := make(chan stream.Event, 64)
	go func() {
		defer close(events)
		r.loop(ctx, run, turn, events)
	}()
	return events
}

func (r *Runner) loop(ctx context.Context, run *Run, turn Turn, events chan<- stream.Event) {
	emit := func(typ stream.EventType, payload any) {
		select {
		case events <- stream.New(run.ID, run.NextSeq(), typ, payload):
		case <-ctx.Done():
		}
	}

	fail := func(err error) {
		if errors.Is(err, context.Canceled) {
			if terr := run.Abort(); terr != nil {
				logging.Warn("abort transition failed", "run_id", run.ID, "error", terr)
			}
			logging.Info("run aborted", "run_id", run.ID)
			return
		}
		logging.Error("run failed", "run_id", run.ID, "error", err)
		emit(stream.EventError, stream.ErrorPayload{Message: err.Error()})
		if terr := run.Fail(); terr != nil {
			logging.Warn("fail transition failed", "run_id", run.ID, "error", terr)
		}
	}

	start := time.Now()
	if err := run.Begin(); err != nil {
		fail(err)
		return
	}
	logging.Info("run started",
		"run_id", run.ID,
		"conversation_id", turn.ConversationID,
		"model", r.primary.Model())

	emit(stream.EventStart, stream.StartPayload{
		ConversationID: turn.ConversationID,
		RunID:          run.ID,
	})
	emit(stream.EventMessageCreated, stream.MessageCreatedPayload{
		UserMessageID:      turn.UserMessageID,
		AssistantMessageID: turn.AssistantMessageID,
		ConversationID:     turn.ConversationID,
		RunID:              run.ID,
	})

	pol := newPolicy(r.primary, r.fallback, r.retry, r.limiter)
	messages := turn.Messages

	var (
		finalText      string
		counts         stream.TokenCounts
		toolCallsCount int
	)

	for iteration := 0; ; iteration++ {
		if iteration >= r.maxIterations {
			fail(errors.New("exceeded maximum tool iterations"))
			return
		}

		initial := iteration == 0
		onText := func(delta string) {
			finalText += delta
			if initial {
				counts.Initial++
			} else {
				counts.Continuation++
			}
			emit(stream.EventToken, stream.TokenPayload{Delta: delta})
		}

		resp, err := pol.Call(ctx, provider.Request{
			System:   turn.System,
			Messages: messages,
			Tools:    turn.Tools,
		}, emit, onText)
		if err != nil {
			fail(err)
			return
		}

		if len(resp.ToolCalls) == 0 {
			emit(stream.EventDone, stream.DonePayload{
				FinalText:      finalText,
				ToolCallsCount: toolCallsCount,
				TokenCounts:    counts,
			})
			if terr := run.Finish(); terr != nil {
				logging.Warn("finish transition failed", "run_id", run.ID, "error", terr)
			}
			logging.Info("run completed",
				"run_id", run.ID,
				"iterations", iteration+1,
				"tool_calls", toolCallsCount,
				"duration", time.Since(start))
			return
		}

		toolCallsCount += len(resp.ToolCalls)
		for _, call := range resp.ToolCalls {
			emit(stream.EventToolCall, stream.ToolCallPayload{
				ToolCallID: call.ID,
				ToolName:   call.Name,
				ToolArgs:   call.Args,
			})
		}

		results := r.dispatcher.Dispatch(ctx, resp.ToolCalls)
		if ctx.Err() != nil {
			fail(ctx.Err())
			return
		}
		for _, result := range results {
			emit(stream.EventToolResult, stream.ToolResultPayload{
				ToolCallID: result.CallID,
				Result:     result.Content,
				IsError:    result.IsError,
			})
		}

		messages = append(messages, provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})
		messages = append(messages, provider.Message{
			Role:        provider.RoleTool,
			ToolResults: results,
		})
	}
}
