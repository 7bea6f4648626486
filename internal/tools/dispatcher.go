package tools

import (
	"context"
	"sync"
	"time"

	"folio/internal/logging"
	"folio/internal/provider"
)

// DefaultConcurrency bounds concurrent tool calls within one model turn.
const DefaultConcurrency = 4

// Dispatcher executes model-requested tool calls against the registry.
// Independent calls from the same model turn run concurrently up to a fixed
// limit; Dispatch returns only when every call has resolved, preserving the
// request order in its results.
type Dispatcher struct {
	registry    *Registry
	concurrency int
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, concurrency int) *Dispatcher {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Dispatcher{
		registry:    registry,
		concurrency: concurrency,
	}
}

// Dispatch resolves every call and returns results in the same order. A tool
// failure never fails the batch: it becomes an error-flagged result for the
// model to react to. Unknown tool names fail immediately as non-retryable.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []provider.ToolCall) []provider.ToolResult {
	results := make([]provider.ToolResult, len(calls))

	semaphore := make(chan struct{}, d.concurrency)
	var wg sync.WaitGroup

	for i, call := range calls {
		wg.Add(1)
		semaphore <- struct{}{} // acquire
		go func(i int, call provider.ToolCall) {
			defer wg.Done()
			defer func() { <-semaphore }() // release
			results[i] = d.dispatchOne(ctx, call)
		}(i, call)
	}
	wg.Wait()

	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call provider.ToolCall) provider.ToolResult {
	tool, ok := d.registry.Get(call.Name)
	if !ok {
		logging.Warn("unknown tool requested", "tool", call.Name, "call_id", call.ID)
		return provider.ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Content: "unknown tool: " + call.Name,
			IsError: true,
		}
	}

	start := time.Now()
	result, err := tool.Execute(ctx, call.Args)
	if err != nil {
		// Executor errors are treated like failed results.
		result = NewErrorResult(false, "%v", err)
	}

	if result.Failed() {
		logging.Warn("tool execution failed",
			"tool", call.Name,
			"call_id", call.ID,
			"retryable", result.Retryable,
			"error", result.Error)
		return provider.ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Content: result.Error,
			IsError: true,
		}
	}

	logging.Debug("tool executed",
		"tool", call.Name,
		"call_id", call.ID,
		"duration", time.Since(start))
	return provider.ToolResult{
		CallID:  call.ID,
		Name:    call.Name,
		Content: result.Content,
	}
}
