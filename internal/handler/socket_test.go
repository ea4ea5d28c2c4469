package handler

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/realtime"
)

func TestSocketHandler_PushesToJoinedChannel(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	created, err := b.chat.CreateSession(ctx, model.CreateSessionRequest{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)

	received := make(chan model.Message, 4)
	ch := realtime.NewChannel(b.server.URL, &realtime.WebsocketDialer{ReconnectDelay: 50 * time.Millisecond}, realtime.Callbacks{
		OnMessage: func(sessionID string, msg model.Message) {
			if sessionID == created.SessionID {
				received <- msg
			}
		},
	})
	require.NoError(t, ch.Open(ctx, created.SessionID, created.SessionToken))
	defer ch.Close()

	require.Eventually(t, func() bool {
		return b.hub.SubscriberCount(created.SessionID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	_, err = b.chat.PostAgentMessage(ctx, created.SessionID, "Hello Ann")
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "Hello Ann", msg.Text)
		assert.Equal(t, model.SenderAgent, msg.Sender)
		assert.Equal(t, model.MessageStatusDelivered, msg.Status)
	case <-time.After(2 * time.Second):
		t.Fatal("no push received")
	}
}

func TestSocketHandler_RejectsBadToken(t *testing.T) {
	b := newTestBackend(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	created, err := b.chat.CreateSession(ctx, model.CreateSessionRequest{Name: "Ann", Email: "ann@example.com"})
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(b.server.URL, "http") + "/widget/socket"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	data, err := json.Marshal(model.JoinPayload{ConversationID: created.SessionID, SessionToken: "wrong"})
	require.NoError(t, err)
	require.NoError(t, wsjson.Write(ctx, conn, realtime.Frame{Event: realtime.EventJoin, Data: data}))

	var frame realtime.Frame
	require.NoError(t, wsjson.Read(ctx, conn, &frame))
	assert.Equal(t, EventError, frame.Event)

	var body map[string]string
	require.NoError(t, json.Unmarshal(frame.Data, &body))
	assert.Equal(t, "INVALID_TOKEN", body["code"])
	assert.Equal(t, 0, b.hub.SubscriberCount(created.SessionID))
}
