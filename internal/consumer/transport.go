package consumer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnknownConversation means the backend no longer recognizes the
// conversation identifier. Local state for it must be discarded entirely.
var ErrUnknownConversation = errors.New("unknown conversation")

// ErrRunActive means the backend already has a run in flight for the
// conversation.
var ErrRunActive = errors.New("run already active")

// Transport is the HTTP client side of the run protocol.
type Transport struct {
	baseURL string
	client  *http.Client
}

// NewTransport creates a transport against the given server URL.
func NewTransport(baseURL string) *Transport {
	return &Transport{
		baseURL: baseURL,
		// No overall timeout: the response body streams for the run's lifetime.
		client: &http.Client{},
	}
}

// RunRequest begins a run. An empty ConversationID asks the backend to
// create a new conversation.
type RunRequest struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	Mode           string `json:"mode,omitempty"`
	Context        string `json:"context,omitempty"`
}

// BeginRun starts a run and returns the event stream body. The caller owns
// closing it.
func (t *Transport) BeginRun(ctx context.Context, req RunRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal run request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/v1/runs", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create run request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to reach server: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp.Body, nil
}

// SetMode switches the conversation's response mode.
func (t *Transport) SetMode(ctx context.Context, conversationID, mode string) error {
	body, err := json.Marshal(map[string]string{"mode": mode})
	if err != nil {
		return fmt.Errorf("failed to marshal mode request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/conversations/%s/mode", t.baseURL, conversationID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create mode request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	resp, err := t.client.Do(httpReq.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload)

	switch {
	case resp.StatusCode == http.StatusNotFound && payload.Error == "unknown_conversation":
		return ErrUnknownConversation
	case resp.StatusCode == http.StatusConflict && payload.Error == "run_already_active":
		return ErrRunActive
	case payload.Error != "":
		return fmt.Errorf("server error %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("server error %d", resp.StatusCode)
}
