package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ToolDescriptor describes one callable tool as the provider advertises it
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// ToolResult carries both forms a tool may return. Text is the humanized
// form; Raw is the machine-readable payload.
type ToolResult struct {
	Text    string          `json:"text"`
	Raw     json.RawMessage `json:"raw"`
	IsError bool            `json:"is_error"`
}

// Normalized collapses the result into the single text payload the model sees
func (r *ToolResult) Normalized() string {
	if r == nil {
		return ""
	}
	if strings.TrimSpace(r.Text) != "" {
		return r.Text
	}
	if len(r.Raw) > 0 {
		return string(r.Raw)
	}
	return ""
}

// ToolProvider is the external capability surface the loop drives. All three
// calls are safe to repeat within a turn; implementations retry once after a
// transparent reconnect when the transport reports a stale session.
type ToolProvider interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args ToolArgs) (*ToolResult, error)
	GetPrompt(ctx context.Context, name string) (string, error)
}

var toolProviderInstance ToolProvider

// SetToolProvider sets the global tool provider (call from main.go)
func SetToolProvider(p ToolProvider) {
	toolProviderInstance = p
}

// GetToolProvider returns the global tool provider
func GetToolProvider() ToolProvider {
	return toolProviderInstance
}

// staleSessionError marks transport-level staleness that a reconnect may fix
type staleSessionError struct {
	status int
}

func (e *staleSessionError) Error() string {
	return fmt.Sprintf("tool provider session stale (status %d)", e.status)
}

// HTTPToolProvider talks JSON over HTTP to the tool server
type HTTPToolProvider struct {
	baseURL string
	client  *http.Client

	mu        sync.Mutex
	sessionID string
}

// NewHTTPToolProvider creates a provider client for the given base URL
func NewHTTPToolProvider(baseURL string) *HTTPToolProvider {
	return &HTTPToolProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    &http.Client{Timeout: 30 * time.Second},
		sessionID: uuid.NewString(),
	}
}

func (p *HTTPToolProvider) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	var out struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := p.doJSON(ctx, http.MethodGet, "/tools", nil, &out); err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return out.Tools, nil
}

func (p *HTTPToolProvider) CallTool(ctx context.Context, name string, args ToolArgs) (*ToolResult, error) {
	payload := map[string]interface{}{
		"name":      name,
		"arguments": args,
	}
	var out ToolResult
	if err := p.doJSON(ctx, http.MethodPost, "/tools/call", payload, &out); err != nil {
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}
	return &out, nil
}

// GetPrompt fetches a named prompt; the provider answers with
// {messages: [{content: {type, text}}]} and the texts are joined in order
func (p *HTTPToolProvider) GetPrompt(ctx context.Context, name string) (string, error) {
	var out struct {
		Messages []struct {
			Content struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
	}
	if err := p.doJSON(ctx, http.MethodGet, "/prompts/"+url.PathEscape(name), nil, &out); err != nil {
		return "", fmt.Errorf("get prompt %s: %w", name, err)
	}

	var parts []string
	for _, msg := range out.Messages {
		if msg.Content.Text != "" {
			parts = append(parts, msg.Content.Text)
		}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("get prompt %s: empty prompt", name)
	}
	return strings.Join(parts, "\n\n"), nil
}

// doJSON runs one request and, if the server reports a stale session,
// reconnects and retries exactly once before surfacing the failure
func (p *HTTPToolProvider) doJSON(ctx context.Context, method, path string, body, out interface{}) error {
	err := p.roundTrip(ctx, method, path, body, out)
	var stale *staleSessionError
	if errors.As(err, &stale) {
		p.reconnect()
		err = p.roundTrip(ctx, method, path, body, out)
	}
	return err
}

func (p *HTTPToolProvider) roundTrip(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", p.currentSession())

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusGone {
		return &staleSessionError{status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tool server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (p *HTTPToolProvider) currentSession() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

func (p *HTTPToolProvider) reconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessionID = uuid.NewString()
}
