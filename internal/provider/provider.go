// Package provider abstracts the language-model providers behind a common
// streaming client interface. Providers translate the neutral message and
// tool types to their own wire formats; the run loop never sees
// provider-specific shapes.
package provider

import "context"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
	RoleTool      = "tool"
)

// Message is one entry of the conversation context sent to a provider.
type Message struct {
	Role    string
	Content string

	// ToolCalls is set on assistant messages that requested tool invocations.
	ToolCalls []ToolCall

	// ToolResults is set on tool-role messages feeding results back.
	ToolResults []ToolResult
}

// ToolCall is a model-initiated request to invoke a named capability.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// ToolResult is the resolved outcome of a tool call.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
	IsError bool
}

// ToolDefinition describes a capability offered to the model.
type ToolDefinition struct {
	Name        string
	Description string
	// Parameters is a JSON-schema object describing the arguments.
	Parameters map[string]any
}

// Request is one model call.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolDefinition
}

// Chunk is a single increment of a streaming model response.
type Chunk struct {
	// Text contains any text content in this chunk.
	Text string

	// ToolCalls contains completed tool call requests in this chunk.
	ToolCalls []ToolCall

	// Error contains any error that occurred mid-stream.
	Error error

	// Done indicates this is the final chunk.
	Done bool

	// InputTokens and OutputTokens come from provider usage metadata,
	// typically on the final chunk.
	InputTokens  int
	OutputTokens int
}

// Stream is a streaming model response.
type Stream struct {
	// Chunks receives response increments and is closed when the response
	// completes or fails.
	Chunks <-chan Chunk
}

// Response is a fully collected model response.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	InputTokens  int
	OutputTokens int
}

// Client is a streaming model provider.
type Client interface {
	// Stream issues one model call and returns the response stream. Errors
	// establishing the call are returned directly; mid-stream failures arrive
	// as a chunk with Error set.
	Stream(ctx context.Context, req Request) (*Stream, error)

	// Model returns the model identifier this client talks to.
	Model() string

	// Close releases the underlying transport.
	Close() error
}

// Collect drains a stream into a single response, forwarding each text delta
// to onText as it arrives. onText may be nil.
func Collect(ctx context.Context, s *Stream, onText func(delta string)) (*Response, error) {
	resp := &Response{}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case chunk, ok := <-s.Chunks:
			if !ok {
				return resp, nil
			}
			if chunk.Error != nil {
				return nil, chunk.Error
			}
			if chunk.Text != "" {
				resp.Text += chunk.Text
				if onText != nil {
					onText(chunk.Text)
				}
			}
			resp.ToolCalls = append(resp.ToolCalls, chunk.ToolCalls...)
			if chunk.InputTokens > 0 {
				resp.InputTokens = chunk.InputTokens
			}
			if chunk.OutputTokens > 0 {
				resp.OutputTokens += chunk.OutputTokens
			}
			if chunk.Done {
				return resp, nil
			}
		}
	}
}
