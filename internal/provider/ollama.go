package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"folio/internal/logging"

	"github.com/ollama/ollama/api"
)

// OllamaConfig holds configuration for the Ollama provider.
type OllamaConfig struct {
	BaseURL     string // Default: "http://localhost:11434"
	Model       string // e.g. "llama3.2"
	MaxTokens   int32
	Temperature float32
	HTTPTimeout time.Duration
}

// OllamaClient implements Client for a local Ollama server. It is the usual
// fallback: always reachable, no API key, no rate limits.
type OllamaClient struct {
	client *api.Client
	config OllamaConfig
}

// NewOllamaClient creates a new Ollama client.
func NewOllamaClient(config OllamaConfig) (*OllamaClient, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 120 * time.Second
	}

	baseURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}

	return &OllamaClient{
		client: api.NewClient(baseURL, &http.Client{Timeout: config.HTTPTimeout}),
		config: config,
	}, nil
}

// Model returns the model name.
func (c *OllamaClient) Model() string {
	return c.config.Model
}

// Close is a no-op for Ollama.
func (c *OllamaClient) Close() error {
	return nil
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

// Stream issues one streaming chat request.
func (c *OllamaClient) Stream(ctx context.Context, req Request) (*Stream, error) {
	chatReq := &api.ChatRequest{
		Model:    c.config.Model,
		Messages: buildOllamaMessages(req.System, req.Messages),
		Stream:   Ptr(true),
		Options: map[string]any{
			"num_predict": c.config.MaxTokens,
		},
	}
	if c.config.Temperature > 0 {
		chatReq.Options["temperature"] = c.config.Temperature
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = buildOllamaTools(req.Tools)
	}

	logging.Info("ollama request", "model", c.config.Model, "messages", len(chatReq.Messages))

	chunks := make(chan Chunk, 10)
	go func() {
		defer close(chunks)

		var inputTokens, outputTokens int
		err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			chunk := Chunk{Text: resp.Message.Content}

			for i, tc := range resp.Message.ToolCalls {
				id := tc.ID
				if id == "" {
					id = fmt.Sprintf("call_%d", i)
					if tc.Function.Index > 0 {
						id = fmt.Sprintf("call_%d", tc.Function.Index)
					}
				}
				chunk.ToolCalls = append(chunk.ToolCalls, ToolCall{
					ID:   id,
					Name: tc.Function.Name,
					Args: tc.Function.Arguments.ToMap(),
				})
			}

			if resp.Done {
				chunk.Done = true
				if resp.PromptEvalCount > 0 {
					inputTokens = resp.PromptEvalCount
				}
				if resp.EvalCount > 0 {
					outputTokens = resp.EvalCount
				}
				chunk.InputTokens = inputTokens
				chunk.OutputTokens = outputTokens
			}

			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil {
			select {
			case chunks <- Chunk{Error: fmt.Errorf("ollama: %w", err), Done: true}:
			case <-ctx.Done():
			}
		}
	}()

	return &Stream{Chunks: chunks}, nil
}

// buildOllamaMessages converts neutral messages to the Ollama chat shape.
func buildOllamaMessages(system string, messages []Message) []api.Message {
	out := make([]api.Message, 0, len(messages)+1)
	if system != "" {
		out = append(out, api.Message{Role: "system", Content: system})
	}

	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			out = append(out, api.Message{Role: "user", Content: msg.Content})

		case RoleAssistant:
			m := api.Message{Role: "assistant", Content: msg.Content}
			for _, call := range msg.ToolCalls {
				args := api.NewToolCallFunctionArguments()
				for k, v := range call.Args {
					args.Set(k, v)
				}
				m.ToolCalls = append(m.ToolCalls, api.ToolCall{
					ID: call.ID,
					Function: api.ToolCallFunction{
						Name:      call.Name,
						Arguments: args,
					},
				})
			}
			out = append(out, m)

		case RoleTool:
			for _, result := range msg.ToolResults {
				content := result.Content
				if result.IsError {
					content = "Error: " + content
				}
				out = append(out, api.Message{Role: "tool", Content: content})
			}
		}
	}
	return out
}

// buildOllamaTools converts JSON-schema tool definitions to the Ollama tool
// format, which models object schemas one property at a time.
func buildOllamaTools(tools []ToolDefinition) []api.Tool {
	out := make([]api.Tool, 0, len(tools))

	for _, tool := range tools {
		params := api.ToolFunctionParameters{
			Type:       "object",
			Properties: api.NewToolPropertiesMap(),
		}

		if tool.Parameters != nil {
			if required, ok := tool.Parameters["required"].([]string); ok {
				params.Required = required
			}
			if props, ok := tool.Parameters["properties"].(map[string]any); ok {
				for name, raw := range props {
					schema, ok := raw.(map[string]any)
					if !ok {
						continue
					}
					prop := api.ToolProperty{}
					if desc, ok := schema["description"].(string); ok {
						prop.Description = desc
					}
					if typ, ok := schema["type"].(string); ok {
						prop.Type = api.PropertyType{typ}
					}
					if enum, ok := schema["enum"].([]any); ok {
						prop.Enum = enum
					}
					params.Properties.Set(name, prop)
				}
			}
		}

		out = append(out, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}
	return out
}
