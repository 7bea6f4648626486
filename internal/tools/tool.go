package tools

import (
	"context"
	"fmt"
)

// Tool defines the interface for a named analytical capability.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description returns a human-readable description for the model.
	Description() string

	// Parameters returns the JSON-schema object describing the arguments.
	Parameters() map[string]any

	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

// Result represents the outcome of a tool execution. A failed execution is
// not fatal to the run: it travels back to the model as an error-flagged
// result and the model decides how to proceed.
type Result struct {
	// Content is the result payload (usually text or JSON).
	Content string

	// Error holds the failure message if the tool failed.
	Error string

	// Retryable marks a failure as transient. Unknown tools and validation
	// failures are never retryable.
	Retryable bool
}

// Failed reports whether the result carries an error.
func (r Result) Failed() bool {
	return r.Error != ""
}

// NewResult creates a successful result.
func NewResult(content string) Result {
	return Result{Content: content}
}

// NewErrorResult creates a failed result.
func NewErrorResult(retryable bool, format string, args ...any) Result {
	return Result{
		Error:     fmt.Sprintf(format, args...),
		Retryable: retryable,
	}
}

// GetString extracts a string argument from the args map.
func GetString(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetNumber extracts a numeric argument from the args map. JSON decoding
// produces float64 for all numbers.
func GetNumber(args map[string]any, key string) (float64, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
