package provider

import (
	"context"
	"fmt"

	"folio/internal/logging"

	"google.golang.org/genai"
)

// GeminiConfig holds configuration for the Gemini API provider.
type GeminiConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// GeminiClient implements Client for the Gemini API via the genai SDK.
type GeminiClient struct {
	client *genai.Client
	config GeminiConfig
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(ctx context.Context, config GeminiConfig) (*GeminiClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// Model returns the model name.
func (c *GeminiClient) Model() string {
	return c.config.Model
}

// Close is a no-op; the genai client holds no long-lived connections.
func (c *GeminiClient) Close() error {
	return nil
}

// Stream issues one streaming generate-content request.
func (c *GeminiClient) Stream(ctx context.Context, req Request) (*Stream, error) {
	contents := buildGeminiContents(req.Messages)

	genConfig := &genai.GenerateContentConfig{
		MaxOutputTokens: c.config.MaxTokens,
	}
	if c.config.Temperature > 0 {
		genConfig.Temperature = genai.Ptr(c.config.Temperature)
	}
	if req.System != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if len(req.Tools) > 0 {
		genConfig.Tools = buildGeminiTools(req.Tools)
	}

	logging.Info("gemini request", "model", c.config.Model, "messages", len(contents))

	iter := c.client.Models.GenerateContentStream(ctx, c.config.Model, contents, genConfig)

	chunks := make(chan Chunk, 10)
	go func() {
		defer close(chunks)

		send := func(chunk Chunk) bool {
			select {
			case chunks <- chunk:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for resp, err := range iter {
			if err != nil {
				send(Chunk{Error: err, Done: true})
				return
			}
			if resp == nil {
				break
			}
			if !send(geminiChunk(resp)) {
				return
			}
		}
		send(Chunk{Done: true})
	}()

	return &Stream{Chunks: chunks}, nil
}

func geminiChunk(resp *genai.GenerateContentResponse) Chunk {
	chunk := Chunk{}

	if resp.UsageMetadata != nil {
		chunk.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		chunk.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return chunk
	}

	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			chunk.Text += part.Text
		}
		if part.FunctionCall != nil {
			args := part.FunctionCall.Args
			if args == nil {
				args = make(map[string]any)
			}
			chunk.ToolCalls = append(chunk.ToolCalls, ToolCall{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: args,
			})
		}
	}
	return chunk
}

// buildGeminiContents converts neutral messages to genai contents.
func buildGeminiContents(messages []Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))

		case RoleAssistant:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.NewPartFromText(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   call.ID,
						Name: call.Name,
						Args: call.Args,
					},
				})
			}
			if len(parts) == 0 {
				parts = append(parts, genai.NewPartFromText(" "))
			}
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: parts,
			})

		case RoleTool:
			var parts []*genai.Part
			for _, result := range msg.ToolResults {
				response := map[string]any{"content": result.Content}
				if result.IsError {
					response["error"] = result.Content
				}
				part := genai.NewPartFromFunctionResponse(result.Name, response)
				part.FunctionResponse.ID = result.CallID
				parts = append(parts, part)
			}
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: parts,
			})
		}
	}
	return contents
}

func buildGeminiTools(tools []ToolDefinition) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:                 tool.Name,
			Description:          tool.Description,
			ParametersJsonSchema: tool.Parameters,
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}
