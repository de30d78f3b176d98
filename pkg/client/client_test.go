package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardianbot/guardian/pkg/protocol"
)

func newServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func TestChat(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/chat", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hello", body["input"])
		assert.Equal(t, "s1", body["session_id"])
		w.Write([]byte(`{"response":"hi there","session_id":"s1"}`))
	})

	reply, err := c.Chat(context.Background(), "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, ChatReply{Response: "hi there", SessionID: "s1"}, reply)
}

func TestChat_OmitsEmptySession(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, ok := body["session_id"]
		assert.False(t, ok)
		w.Write([]byte(`{"response":"ok","session_id":"new"}`))
	})

	reply, err := c.Chat(context.Background(), "", "hello")
	require.NoError(t, err)
	assert.Equal(t, "new", reply.SessionID)
}

func TestChat_ServerError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"response":"Error communicating with the assistant.","session_id":"s","error":"model_client"}`))
	})

	_, err := c.Chat(context.Background(), "", "hello")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "Error communicating with the assistant.", apiErr.Message)
	assert.Equal(t, "model_client", apiErr.Kind)
}

func TestCreateTicket(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/create-ticket", r.URL.Path)
		var nt protocol.NewTicket
		require.NoError(t, json.NewDecoder(r.Body).Decode(&nt))
		assert.Equal(t, "Printer not working", nt.Issue)
		w.Write([]byte(`{"message":"Ticket created successfully","ticket_id":"abc"}`))
	})

	id, err := c.CreateTicket(context.Background(), protocol.NewTicket{Issue: "Printer not working"})
	require.NoError(t, err)
	assert.Equal(t, "abc", id)
}

func TestCreateTicket_ValidationFields(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"create_ticket_issue: invalid arguments","fields":["email","priority"]}`))
	})

	_, err := c.CreateTicket(context.Background(), protocol.NewTicket{})
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, []string{"email", "priority"}, apiErr.Fields)
	assert.Contains(t, apiErr.Error(), "fields: email, priority")
}

func TestTickets(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"ticket_id":"a","status":"Open"},{"ticket_id":"b","status":"Open"}]`))
	})

	tickets, err := c.Tickets(context.Background())
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	assert.Equal(t, "b", tickets[1].TicketID)
}

func TestTicketStatus_NotFound(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ticket-status/missing", r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"Ticket not found"}`))
	})

	_, err := c.TicketStatus(context.Background(), "missing")
	var apiErr *Error
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Ticket not found", apiErr.Message)
}

func TestEndSessionAndHealth(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sessions/s1":
			assert.Equal(t, http.MethodDelete, r.Method)
			w.WriteHeader(http.StatusNoContent)
		case "/api/health":
			w.Write([]byte(`{"status":"ok"}`))
		default:
			http.NotFound(w, r)
		}
	})

	require.NoError(t, c.EndSession(context.Background(), "s1"))
	require.NoError(t, c.Health(context.Background()))
}

func TestPlainErrorBody(t *testing.T) {
	e := errorFrom(502, []byte("bad gateway\n"))
	assert.Equal(t, "bad gateway", e.Message)
	assert.Equal(t, "HTTP 502: bad gateway", e.Error())
}
