package handler

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
)

func TestSendEvent(t *testing.T) {
	rec := httptest.NewRecorder()

	err := sendEvent(rec, rec, "message", map[string]any{"id": "m-1", "message": "hello"})

	require.NoError(t, err)
	body := rec.Body.String()
	assert.Contains(t, body, "event: message\n")
	assert.Contains(t, body, `data: {"id":"m-1","message":"hello"}`)
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}

func TestEventsHandler_UnknownConversation(t *testing.T) {
	b := newTestBackend(t)

	resp, err := http.Get(b.server.URL + "/dev/conversations/" + unknownSessionID + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventsHandler_MalformedConversationID(t *testing.T) {
	b := newTestBackend(t)

	resp, err := http.Get(b.server.URL + "/dev/conversations/missing/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// readEvent returns the next event name and data line from an SSE stream.
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestEventsHandler_StreamsHistoryThenLive(t *testing.T) {
	b := newTestBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	created, err := b.chat.CreateSession(ctx, model.CreateSessionRequest{Name: "Ann", Email: "ann@example.com", Message: "Hi"})
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.server.URL+"/dev/conversations/"+created.SessionID+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	event, data := readEvent(t, reader)
	assert.Equal(t, "message", event)
	assert.Contains(t, data, `"message":"Hi"`)

	event, data = readEvent(t, reader)
	assert.Equal(t, "ready", event)
	assert.Contains(t, data, `"count":1`)

	_, err = b.chat.PostAgentMessage(ctx, created.SessionID, "Hello Ann")
	require.NoError(t, err)

	event, data = readEvent(t, reader)
	assert.Equal(t, "message", event)
	assert.Contains(t, data, `"message":"Hello Ann"`)
	assert.Contains(t, data, `"senderType":"USER"`)
}
