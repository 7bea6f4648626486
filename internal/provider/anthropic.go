package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"folio/internal/logging"
)

// AnthropicConfig holds configuration for the Anthropic-compatible HTTP API.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string // Default: "https://api.anthropic.com"
	Model       string
	MaxTokens   int32
	Temperature float32
	HTTPTimeout time.Duration
}

// AnthropicClient implements Client for Anthropic-compatible APIs. It speaks
// the messages API directly over HTTP and parses the SSE response itself.
type AnthropicClient struct {
	config     AnthropicConfig
	httpClient *http.Client
}

// NewAnthropicClient creates a new Anthropic-compatible client.
func NewAnthropicClient(config AnthropicConfig) (*AnthropicClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.anthropic.com"
	}
	if !strings.HasPrefix(config.BaseURL, "http://") && !strings.HasPrefix(config.BaseURL, "https://") {
		return nil, fmt.Errorf("invalid BaseURL: must start with http:// or https://")
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}
	if config.HTTPTimeout == 0 {
		config.HTTPTimeout = 120 * time.Second
	}

	return &AnthropicClient{
		config: config,
		httpClient: &http.Client{
			Timeout: config.HTTPTimeout,
		},
	}, nil
}

// Model returns the model name.
func (c *AnthropicClient) Model() string {
	return c.config.Model
}

// Close releases idle connections.
func (c *AnthropicClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// Stream issues one streaming messages request.
func (c *AnthropicClient) Stream(ctx context.Context, req Request) (*Stream, error) {
	body := map[string]any{
		"model":      c.config.Model,
		"max_tokens": c.config.MaxTokens,
		"messages":   buildAnthropicMessages(req.Messages),
		"stream":     true,
	}
	if req.System != "" {
		body["system"] = req.System
	}
	if c.config.Temperature > 0 {
		body["temperature"] = c.config.Temperature
	}
	if len(req.Tools) > 0 {
		body["tools"] = buildAnthropicTools(req.Tools)
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/v1/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	logging.Info("anthropic request", "url", url, "model", c.config.Model)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			msg = []byte("(failed to read response body)")
		}
		resp.Body.Close()
		logging.Warn("anthropic API error", "status", resp.StatusCode, "body", string(msg))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(msg)}
	}

	chunks := make(chan Chunk, 10)
	go c.scanStream(ctx, resp.Body, chunks)
	return &Stream{Chunks: chunks}, nil
}

// anthropicAccumulator tracks the tool call being assembled across
// content_block_start / input_json_delta / content_block_stop events.
type anthropicAccumulator struct {
	toolID     string
	toolName   string
	toolInput  strings.Builder
	completed  []ToolCall
	inputUsage int
}

func (c *AnthropicClient) scanStream(ctx context.Context, body io.ReadCloser, chunks chan<- Chunk) {
	defer close(chunks)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	acc := &anthropicAccumulator{}

	send := func(chunk Chunk) bool {
		select {
		case chunks <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for scanner.Scan() {
		if ctx.Err() != nil {
			send(Chunk{Error: ctx.Err(), Done: true})
			return
		}
		line := scanner.Text()

		var data string
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
		default:
			continue
		}
		if data == "[DONE]" {
			send(Chunk{ToolCalls: acc.completed, Done: true})
			return
		}

		var event map[string]any
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			logging.Warn("failed to parse provider SSE event", "error", err)
			continue
		}
		if errObj, ok := event["error"].(map[string]any); ok {
			errType, _ := errObj["type"].(string)
			errMsg, _ := errObj["message"].(string)
			send(Chunk{Error: fmt.Errorf("API error (%s): %s", errType, errMsg), Done: true})
			return
		}

		chunk, terminal := processAnthropicEvent(event, acc)
		if chunk.Text != "" || chunk.Done || len(chunk.ToolCalls) > 0 || chunk.OutputTokens > 0 {
			if !send(chunk) {
				return
			}
		}
		if terminal {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		logging.Warn("provider SSE scanner error", "error", err)
		send(Chunk{Error: err, Done: true})
	}
}

func processAnthropicEvent(event map[string]any, acc *anthropicAccumulator) (Chunk, bool) {
	chunk := Chunk{}

	eventType, _ := event["type"].(string)
	switch eventType {
	case "content_block_start":
		if block, ok := event["content_block"].(map[string]any); ok {
			if blockType, _ := block["type"].(string); blockType == "tool_use" {
				acc.toolID, _ = block["id"].(string)
				acc.toolName, _ = block["name"].(string)
				acc.toolInput.Reset()
			}
		}

	case "content_block_delta":
		if delta, ok := event["delta"].(map[string]any); ok {
			switch deltaType, _ := delta["type"].(string); deltaType {
			case "text_delta":
				chunk.Text, _ = delta["text"].(string)
			case "input_json_delta":
				if partial, ok := delta["partial_json"].(string); ok {
					acc.toolInput.WriteString(partial)
				}
			}
		}

	case "content_block_stop":
		if acc.toolID != "" && acc.toolName != "" {
			var args map[string]any
			if input := acc.toolInput.String(); input != "" {
				if err := json.Unmarshal([]byte(input), &args); err != nil {
					logging.Error("tool args unmarshal failed", "tool", acc.toolName, "error", err)
				}
			}
			if args == nil {
				args = make(map[string]any)
			}
			acc.completed = append(acc.completed, ToolCall{
				ID:   acc.toolID,
				Name: acc.toolName,
				Args: args,
			})
			acc.toolID = ""
			acc.toolName = ""
			acc.toolInput.Reset()
		}

	case "message_start":
		if msg, ok := event["message"].(map[string]any); ok {
			if usage, ok := msg["usage"].(map[string]any); ok {
				if v, ok := usage["input_tokens"].(float64); ok {
					acc.inputUsage = int(v)
				}
			}
		}

	case "message_delta":
		if usage, ok := event["usage"].(map[string]any); ok {
			if v, ok := usage["output_tokens"].(float64); ok {
				chunk.OutputTokens = int(v)
			}
		}

	case "message_stop":
		chunk.Done = true
		chunk.ToolCalls = acc.completed
		chunk.InputTokens = acc.inputUsage
		return chunk, true
	}

	return chunk, false
}

// buildAnthropicMessages converts neutral messages to the messages API shape.
func buildAnthropicMessages(messages []Message) []map[string]any {
	out := make([]map[string]any, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			out = append(out, map[string]any{
				"role":    "user",
				"content": msg.Content,
			})

		case RoleAssistant:
			content := make([]map[string]any, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				content = append(content, map[string]any{
					"type": "text",
					"text": msg.Content,
				})
			}
			for _, call := range msg.ToolCalls {
				content = append(content, map[string]any{
					"type":  "tool_use",
					"id":    call.ID,
					"name":  call.Name,
					"input": call.Args,
				})
			}
			if len(content) == 0 {
				content = append(content, map[string]any{"type": "text", "text": " "})
			}
			out = append(out, map[string]any{
				"role":    "assistant",
				"content": content,
			})

		case RoleTool:
			// Tool results travel as user messages with tool_result blocks.
			content := make([]map[string]any, 0, len(msg.ToolResults))
			for _, result := range msg.ToolResults {
				text := result.Content
				if result.IsError {
					text = "Error: " + text
				}
				content = append(content, map[string]any{
					"type":        "tool_result",
					"tool_use_id": result.CallID,
					"content":     text,
				})
			}
			out = append(out, map[string]any{
				"role":    "user",
				"content": content,
			})
		}
	}
	return out
}

func buildAnthropicTools(tools []ToolDefinition) []map[string]any {
	out := make([]map[string]any, 0, len(tools))
	for _, tool := range tools {
		schema := tool.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object"}
		}
		out = append(out, map[string]any{
			"name":         tool.Name,
			"description":  tool.Description,
			"input_schema": schema,
		})
	}
	return out
}
