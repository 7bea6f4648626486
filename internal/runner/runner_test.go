package runner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"folio/internal/provider"
	"folio/internal/stream"
	"folio/internal/tools"
)

// fakeTurn scripts one model call of a fake client.
type fakeTurn struct {
	err    error
	chunks []provider.Chunk
}

type fakeClient struct {
	model  string
	script []fakeTurn
	reqs   []provider.Request
}

func (f *fakeClient) Stream(ctx context.Context, req provider.Request) (*provider.Stream, error) {
	f.reqs = append(f.reqs, req)
	if len(f.script) == 0 {
		return nil, errors.New("fake client: script exhausted")
	}
	turn := f.script[0]
	f.script = f.script[1:]

	if turn.err != nil {
		return nil, turn.err
	}
	ch := make(chan provider.Chunk, len(turn.chunks))
	for _, c := range turn.chunks {
		ch <- c
	}
	close(ch)
	return &provider.Stream{Chunks: ch}, nil
}

func (f *fakeClient) Model() string { return f.model }
func (f *fakeClient) Close() error  { return nil }

func textChunks(parts ...string) []provider.Chunk {
	chunks := make([]provider.Chunk, 0, len(parts)+1)
	for _, p := range parts {
		chunks = append(chunks, provider.Chunk{Text: p})
	}
	return append(chunks, provider.Chunk{Done: true})
}

func fastRetry(maxAttempts int) provider.RetryConfig {
	return provider.RetryConfig{
		MaxAttempts: maxAttempts,
		RetryDelay:  time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	}
}

func testRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	registry := tools.NewRegistry()
	require.NoError(t, tools.RegisterPortfolioTools(registry, tools.NewDemoBook()))
	return registry
}

func newTestRunner(t *testing.T, primary, fallback provider.Client, maxAttempts int) *Runner {
	t.Helper()
	return New(Options{
		Primary:    primary,
		Fallback:   fallback,
		Retry:      fastRetry(maxAttempts),
		Dispatcher: tools.NewDispatcher(testRegistry(t), 2),
	})
}

func startRun(t *testing.T, r *Runner, registry *tools.Registry) (*Run, []stream.Event) {
	t.Helper()
	run := NewRun("conv-1")
	events := r.Start(context.Background(), run, Turn{
		ConversationID:     "conv-1",
		UserMessageID:      "msg-u",
		AssistantMessageID: "msg-a",
		System:             "you are a test analyst",
		Messages:           []provider.Message{{Role: provider.RoleUser, Content: "What's my largest position?"}},
		Tools:              registry.Definitions(),
	})

	var collected []stream.Event
	for ev := range events {
		collected = append(collected, ev)
	}
	return run, collected
}

func requireGapless(t *testing.T, events []stream.Event) {
	t.Helper()
	for i, ev := range events {
		assert.Equal(t, int64(i), ev.Seq, "seq gap at event %d (%s)", i, ev.Type)
	}
}

func eventTypes(events []stream.Event) []stream.EventType {
	out := make([]stream.EventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func TestRunStreamsTextToDone(t *testing.T) {
	primary := &fakeClient{
		model:  "primary-model",
		script: []fakeTurn{{chunks: textChunks("Your", " largest position is AAPL")}},
	}
	run, events := startRun(t, newTestRunner(t, primary, nil, 3), testRegistry(t))

	assert.Equal(t, []stream.EventType{
		stream.EventStart,
		stream.EventMessageCreated,
		stream.EventToken,
		stream.EventToken,
		stream.EventDone,
	}, eventTypes(events))
	requireGapless(t, events)
	assert.Equal(t, StatusDone, run.Status())

	created, err := events[1].MessageCreated()
	require.NoError(t, err)
	assert.Equal(t, "msg-u", created.UserMessageID)
	assert.Equal(t, "msg-a", created.AssistantMessageID)
	assert.Equal(t, run.ID, created.RunID)

	done, err := events[len(events)-1].Done()
	require.NoError(t, err)
	assert.Equal(t, "Your largest position is AAPL", done.FinalText)
	assert.Equal(t, 0, done.ToolCallsCount)
	assert.Equal(t, stream.TokenCounts{Initial: 2, Continuation: 0}, done.TokenCounts)
}

func TestRunToolRoundTrip(t *testing.T) {
	primary := &fakeClient{
		model: "primary-model",
		script: []fakeTurn{
			{chunks: []provider.Chunk{{
				ToolCalls: []provider.ToolCall{{ID: "call-1", Name: "get_portfolio_complete", Args: map[string]any{}}},
				Done:      true,
			}}},
			{chunks: textChunks("You hold AAPL, MSFT, VTI and BND.")},
		},
	}
	registry := testRegistry(t)
	run, events := startRun(t, newTestRunner(t, primary, nil, 3), registry)

	assert.Equal(t, []stream.EventType{
		stream.EventStart,
		stream.EventMessageCreated,
		stream.EventToolCall,
		stream.EventToolResult,
		stream.EventToken,
		stream.EventDone,
	}, eventTypes(events))
	requireGapless(t, events)
	assert.Equal(t, StatusDone, run.Status())

	call, err := events[2].ToolCall()
	require.NoError(t, err)
	assert.Equal(t, "call-1", call.ToolCallID)
	assert.Equal(t, "get_portfolio_complete", call.ToolName)

	result, err := events[3].ToolResult()
	require.NoError(t, err)
	assert.Equal(t, "call-1", result.ToolCallID)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Result, "AAPL")

	done, err := events[len(events)-1].Done()
	require.NoError(t, err)
	assert.Equal(t, 1, done.ToolCallsCount)
	assert.Equal(t, stream.TokenCounts{Initial: 0, Continuation: 1}, done.TokenCounts)

	// The second model call must carry the tool results back.
	require.Len(t, primary.reqs, 2)
	last := primary.reqs[1].Messages
	require.GreaterOrEqual(t, len(last), 2)
	assert.Equal(t, provider.RoleTool, last[len(last)-1].Role)
	require.Len(t, last[len(last)-1].ToolResults, 1)
	assert.Equal(t, "call-1", last[len(last)-1].ToolResults[0].CallID)
}

func TestRunFailedToolIsNotFatal(t *testing.T) {
	primary := &fakeClient{
		model: "primary-model",
		script: []fakeTurn{
			{chunks: []provider.Chunk{{
				ToolCalls: []provider.ToolCall{{ID: "call-1", Name: "no_such_tool", Args: map[string]any{}}},
				Done:      true,
			}}},
			{chunks: textChunks("I could not look that up.")},
		},
	}
	run, events := startRun(t, newTestRunner(t, primary, nil, 3), testRegistry(t))

	assert.Equal(t, StatusDone, run.Status())

	var result stream.ToolResultPayload
	for _, ev := range events {
		if ev.Type == stream.EventToolResult {
			var err error
			result, err = ev.ToolResult()
			require.NoError(t, err)
		}
	}
	assert.True(t, result.IsError)
	assert.Contains(t, result.Result, "unknown tool")
}

func TestRunMaxToolIterations(t *testing.T) {
	loopTurn := fakeTurn{chunks: []provider.Chunk{{
		ToolCalls: []provider.ToolCall{{ID: "call-x", Name: "get_risk_summary", Args: map[string]any{}}},
		Done:      true,
	}}}
	primary := &fakeClient{
		model:  "primary-model",
		script: []fakeTurn{loopTurn, loopTurn, loopTurn},
	}
	registry := testRegistry(t)
	r := New(Options{
		Primary:           primary,
		Retry:             fastRetry(3),
		Dispatcher:        tools.NewDispatcher(registry, 2),
		MaxToolIterations: 2,
	})
	run, events := startRun(t, r, registry)

	assert.Equal(t, StatusError, run.Status())
	requireGapless(t, events)

	last := events[len(events)-1]
	require.Equal(t, stream.EventError, last.Type)
	p, err := last.Error()
	require.NoError(t, err)
	assert.Contains(t, p.Message, "exceeded maximum tool iterations")
}

func TestRunRetriesTransientFailure(t *testing.T) {
	primary := &fakeClient{
		model: "primary-model",
		script: []fakeTurn{
			{err: &provider.APIError{StatusCode: 429, Message: "rate limited"}},
			{chunks: textChunks("Recovered answer.")},
		},
	}
	run, events := startRun(t, newTestRunner(t, primary, nil, 3), testRegistry(t))

	assert.Equal(t, StatusDone, run.Status())
	requireGapless(t, events)

	var infos []stream.InfoPayload
	for _, ev := range events {
		if ev.Type == stream.EventInfo {
			p, err := ev.Info()
			require.NoError(t, err)
			infos = append(infos, p)
		}
	}
	require.Len(t, infos, 1)
	assert.Equal(t, stream.InfoRetryScheduled, infos[0].InfoType)
	assert.Equal(t, 1, infos[0].Attempt)
	assert.Equal(t, 3, infos[0].MaxAttempts)
	assert.Greater(t, infos[0].RetryInMs, int64(0))
}

func TestRunFallsBackAfterExhaustedRetries(t *testing.T) {
	primary := &fakeClient{
		model: "primary-model",
		script: []fakeTurn{
			{err: &provider.APIError{StatusCode: 429, Message: "rate limited"}},
			{err: &provider.APIError{StatusCode: 429, Message: "rate limited"}},
		},
	}
	fallback := &fakeClient{
		model:  "fallback-model",
		script: []fakeTurn{{chunks: textChunks("Fallback answer.")}},
	}
	run, events := startRun(t, newTestRunner(t, primary, fallback, 2), testRegistry(t))

	assert.Equal(t, StatusDone, run.Status())

	var switches []stream.InfoPayload
	for _, ev := range events {
		if ev.Type == stream.EventInfo {
			p, err := ev.Info()
			require.NoError(t, err)
			if p.InfoType == stream.InfoModelSwitch {
				switches = append(switches, p)
			}
		}
	}
	require.Len(t, switches, 1)
	assert.Equal(t, "primary-model", switches[0].From)
	assert.Equal(t, "fallback-model", switches[0].To)

	done, err := events[len(events)-1].Done()
	require.NoError(t, err)
	assert.Equal(t, "Fallback answer.", done.FinalText)
}

func TestRunDegradedPrimarySwitchesImmediately(t *testing.T) {
	primary := &fakeClient{
		model:  "primary-model",
		script: []fakeTurn{{err: &provider.APIError{StatusCode: 529, Message: "overloaded"}}},
	}
	fallback := &fakeClient{
		model:  "fallback-model",
		script: []fakeTurn{{chunks: textChunks("Fallback answer.")}},
	}
	run, events := startRun(t, newTestRunner(t, primary, fallback, 3), testRegistry(t))

	assert.Equal(t, StatusDone, run.Status())
	// Degraded means no retry against the primary first.
	assert.Empty(t, primary.script)
	require.Len(t, primary.reqs, 1)

	var sawSwitch bool
	for _, ev := range events {
		if ev.Type == stream.EventInfo {
			p, err := ev.Info()
			require.NoError(t, err)
			if p.InfoType == stream.InfoModelSwitch {
				sawSwitch = true
				assert.Equal(t, 1, p.Attempt)
			}
			assert.NotEqual(t, stream.InfoRetryScheduled, p.InfoType)
		}
	}
	assert.True(t, sawSwitch)
}

func TestRunNonRetryableFailsImmediately(t *testing.T) {
	primary := &fakeClient{
		model:  "primary-model",
		script: []fakeTurn{{err: &provider.APIError{StatusCode: 401, Message: "bad key"}}},
	}
	fallback := &fakeClient{model: "fallback-model"}
	run, events := startRun(t, newTestRunner(t, primary, fallback, 3), testRegistry(t))

	assert.Equal(t, StatusError, run.Status())
	require.Len(t, primary.reqs, 1)
	assert.Empty(t, fallback.reqs)

	last := events[len(events)-1]
	require.Equal(t, stream.EventError, last.Type)
	p, err := last.Error()
	require.NoError(t, err)
	assert.Contains(t, p.Message, "bad key")
}

func TestRunBothModelsExhaustedIsTerminalError(t *testing.T) {
	flaky := fakeTurn{err: &provider.APIError{StatusCode: 429, Message: "rate limited"}}
	primary := &fakeClient{model: "primary-model", script: []fakeTurn{flaky, flaky}}
	fallback := &fakeClient{model: "fallback-model", script: []fakeTurn{flaky, flaky}}

	run, events := startRun(t, newTestRunner(t, primary, fallback, 2), testRegistry(t))

	assert.Equal(t, StatusError, run.Status())

	var switches int
	for _, ev := range events {
		if ev.Type == stream.EventInfo {
			p, err := ev.Info()
			require.NoError(t, err)
			if p.InfoType == stream.InfoModelSwitch {
				switches++
			}
		}
	}
	assert.Equal(t, 1, switches, "fallback must happen at most once per run")
	assert.Equal(t, stream.EventError, events[len(events)-1].Type)
}

func TestRunCancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := &fakeClient{
		model:  "primary-model",
		script: []fakeTurn{{chunks: textChunks("never seen")}},
	}
	r := newTestRunner(t, primary, nil, 3)
	run := NewRun("conv-1")
	events := r.Start(ctx, run, Turn{ConversationID: "conv-1"})

	for range events {
	}
	assert.Equal(t, StatusAborted, run.Status())
}
