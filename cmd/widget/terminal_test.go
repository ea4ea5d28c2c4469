package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/config"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/hub"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/service"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func startMockBackend(t *testing.T) (*httptest.Server, *service.ChatService) {
	t.Helper()
	h := hub.New(nil)
	chat := service.NewChatService(h, nil)
	srv := httptest.NewServer(newMockRouter(&config.ServerConfig{RateLimitPerMin: 1000}, chat, h, nil))
	t.Cleanup(func() {
		srv.Close()
		h.Close()
	})
	return srv, chat
}

func widgetConfig(srv *httptest.Server) *config.Config {
	return &config.Config{
		APIKey:                "key-1",
		APIBaseURL:            srv.URL,
		StorageBackend:        "memory",
		StorageSlot:           "test",
		RequestTimeoutSeconds: 5,
		ReconnectDelayMillis:  50,
		ReconnectMaxMillis:    200,
	}
}

func TestChatSession_EndToEnd(t *testing.T) {
	srv, chat := startMockBackend(t)

	input := strings.Join([]string{
		"Ann",
		"ann@example.com",
		"",
		"Where is order 1234?",
		"Any news?",
		"/end",
		"/rate 5 great",
		"Still there?",
		"/quit",
	}, "\n") + "\n"

	var out syncBuffer
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, runChat(ctx, widgetConfig(srv), strings.NewReader(input), &out))

	text := out.String()
	assert.Contains(t, text, "Aye Chan: Hello Ann! I'm Aye Chan. How can I help you today?")
	assert.NotContains(t, text, "You: Where is order 1234?", "intake message is not echoed back")
	assert.NotContains(t, text, "You: Any news?", "confirmed sends are not echoed back")
	assert.Contains(t, text, "How was your conversation?")
	assert.Contains(t, text, "Thanks for your feedback (*****)")
	assert.Contains(t, text, "This conversation has ended. Start a new conversation to keep chatting.")

	chats := chat.List()
	require.Len(t, chats, 1)
	assert.Equal(t, model.SessionStatusClosed, chats[0].Status)
	require.Len(t, chats[0].Messages, 2)
	assert.Equal(t, "Any news?", chats[0].Messages[1].Message)
	require.NotNil(t, chats[0].Rating)
	assert.Equal(t, 5, *chats[0].Rating)
}

func TestChatSession_RetriesInvalidIntake(t *testing.T) {
	srv, chat := startMockBackend(t)

	input := "Ann\nnot-an-email\n\n\nAnn\nann@example.com\n\n\n/quit\n"

	var out syncBuffer
	require.NoError(t, runChat(context.Background(), widgetConfig(srv), strings.NewReader(input), &out))

	text := out.String()
	assert.Contains(t, text, "Invalid email: must be a valid address")
	assert.Equal(t, 2, strings.Count(text, "Email: "))
	assert.Len(t, chat.List(), 1)
}

func TestParseRating(t *testing.T) {
	tests := []struct {
		args     string
		value    int
		feedback string
		wantErr  bool
	}{
		{"5", 5, "", false},
		{"4 quick and kind", 4, "quick and kind", false},
		{"five", 0, "", true},
		{"", 0, "", true},
	}
	for _, tc := range tests {
		t.Run(tc.args, func(t *testing.T) {
			value, feedback, err := parseRating(tc.args)
			if tc.wantErr {
				assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.value, value)
			assert.Equal(t, tc.feedback, feedback)
		})
	}
}
