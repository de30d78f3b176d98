// Package provider talks to the language-model APIs behind the agent loop.
// Requests are built from typed structs; replies are read with gjson so
// that vendor fields the loop does not need never have to be modelled.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/guardianbot/guardian/pkg/protocol"
)

// Provider is one model backend.
type Provider interface {
	Chat(ctx context.Context, req protocol.ChatRequest) (*protocol.ChatResponse, error)
	Name() string
}

// settings are shared by every provider.
type settings struct {
	client  *http.Client
	baseURL string
	model   string
}

// Option overrides a provider default.
type Option func(*settings)

// WithBaseURL points the client at another endpoint. Empty is ignored.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		if url != "" {
			s.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithModel sets the model used when a request names none. Empty is ignored.
func WithModel(model string) Option {
	return func(s *settings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.client = c }
}

func newSettings(baseURL, model string, opts []Option) settings {
	s := settings{
		client:  &http.Client{Timeout: 2 * time.Minute},
		baseURL: baseURL,
		model:   model,
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

func (s settings) modelFor(req protocol.ChatRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return s.model
}

// New picks a provider by kind: "openai" (also the empty string) or
// "anthropic".
func New(kind, apiKey, baseURL, model string) (Provider, error) {
	opts := []Option{WithBaseURL(baseURL), WithModel(model)}
	switch strings.ToLower(kind) {
	case "", "openai":
		return NewOpenAI(apiKey, opts...), nil
	case "anthropic":
		return NewAnthropic(apiKey, opts...), nil
	}
	return nil, fmt.Errorf("provider: unknown type %q", kind)
}

// APIError is a non-200 reply from a model API.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: api error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

const maxErrorBody = 512

// apiError extracts error.message, which both vendors use, and falls back
// to a trimmed slice of the raw body.
func apiError(name string, status int, body []byte) *APIError {
	msg := gjson.GetBytes(body, "error.message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody] + "..."
		}
	}
	return &APIError{Provider: name, StatusCode: status, Message: msg}
}

// post sends payload as JSON and returns the body of a 200 reply.
func (s settings) post(ctx context.Context, name, path string, headers http.Header, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", name, err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: send: %w", name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read reply: %w", name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(name, resp.StatusCode, body)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s: reply is not valid JSON", name)
	}
	return body, nil
}

// objectArgs decodes a JSON object of tool arguments. Anything else yields
// an empty map, which the tool parser reports as missing fields.
func objectArgs(v gjson.Result) map[string]any {
	args := map[string]any{}
	if v.IsObject() {
		if m, ok := v.Value().(map[string]any); ok {
			args = m
		}
	}
	return args
}
