// Package client talks to a running guardiand over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/guardianbot/guardian/pkg/protocol"
)

// DefaultBaseURL is where guardiand listens by default.
const DefaultBaseURL = "http://localhost:8000"

// Error is a non-2xx reply from the daemon.
type Error struct {
	StatusCode int
	Message    string
	Kind       string   // failed chat turns only, e.g. "model_client"
	Fields     []string // offending fields on 400 from create-ticket
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("HTTP %d: %s (fields: %s)", e.StatusCode, e.Message, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Client is a guardiand API client.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New creates a client for the daemon at baseURL (DefaultBaseURL if empty).
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Long enough for a full agent turn.
		http: &http.Client{Timeout: 5 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ChatReply is the daemon's answer to one chat turn.
type ChatReply struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// Chat sends one user input. An empty sessionID starts a new session.
func (c *Client) Chat(ctx context.Context, sessionID, input string) (ChatReply, error) {
	var reply ChatReply
	body := map[string]string{"input": input}
	if sessionID != "" {
		body["session_id"] = sessionID
	}
	err := c.do(ctx, http.MethodPost, "/chat", body, &reply)
	return reply, err
}

// CreateTicket creates a ticket directly, bypassing the assistant.
func (c *Client) CreateTicket(ctx context.Context, t protocol.NewTicket) (string, error) {
	var resp struct {
		TicketID string `json:"ticket_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/create-ticket", t, &resp); err != nil {
		return "", err
	}
	return resp.TicketID, nil
}

// Tickets lists every ticket in creation order.
func (c *Client) Tickets(ctx context.Context) ([]protocol.Ticket, error) {
	tickets := []protocol.Ticket{}
	err := c.do(ctx, http.MethodGet, "/tickets", nil, &tickets)
	return tickets, err
}

// TicketStatus returns the status of one ticket.
func (c *Client) TicketStatus(ctx context.Context, id string) (protocol.TicketStatus, error) {
	var resp struct {
		Status protocol.TicketStatus `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/ticket-status/"+url.PathEscape(id), nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// EndSession forgets a conversation on the daemon.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(sessionID), nil, nil)
}

// Health reports whether the daemon answers its health check.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("client: health: status %q", resp.Status)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: marshal: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return errorFrom(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("client: decode %s: %w", path, err)
	}
	return nil
}

func errorFrom(status int, body []byte) *Error {
	e := &Error{StatusCode: status}
	if reply := gjson.GetBytes(body, "response"); reply.Exists() {
		// Failed chat turn: a user-facing message plus a failure kind.
		e.Message = reply.String()
		e.Kind = gjson.GetBytes(body, "error").String()
	} else if msg := gjson.GetBytes(body, "error"); msg.Exists() {
		e.Message = msg.String()
	} else {
		e.Message = strings.TrimSpace(string(body))
	}
	for _, f := range gjson.GetBytes(body, "fields").Array() {
		e.Fields = append(e.Fields, f.String())
	}
	return e
}
