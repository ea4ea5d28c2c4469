package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
)

type recordingPublisher struct {
	mu       sync.Mutex
	messages []model.APIMessage
}

func (p *recordingPublisher) Publish(ctx context.Context, conversationID string, msg model.APIMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *recordingPublisher) published() []model.APIMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.APIMessage(nil), p.messages...)
}

func newTestChatService() (*ChatService, *recordingPublisher) {
	pub := &recordingPublisher{}
	return NewChatService(pub, nil), pub
}

func createTestSession(t *testing.T, s *ChatService) *model.CreateSessionResponse {
	t.Helper()
	resp, err := s.CreateSession(context.Background(), model.CreateSessionRequest{
		Name:    "Ann",
		Email:   "ann@example.com",
		Message: "Hi there",
	})
	require.NoError(t, err)
	return resp
}

func TestChatService_CreateSession(t *testing.T) {
	s, _ := newTestChatService()

	t.Run("issues credentials and records the first message", func(t *testing.T) {
		resp := createTestSession(t, s)
		assert.NotEmpty(t, resp.SessionID)
		assert.NotEmpty(t, resp.SessionToken)
		assert.Equal(t, "Ann", resp.Consumer.Name)
		assert.Equal(t, DefaultAgents[0].Name, resp.AssignedAgent.Name)

		chat, err := s.GetSession(context.Background(), resp.SessionID, resp.SessionToken)
		require.NoError(t, err)
		assert.Equal(t, model.SessionStatusActive, chat.Status)
		require.Len(t, chat.Messages, 1)
		assert.Equal(t, model.SenderTypeConsumer, chat.Messages[0].SenderType)
		assert.Equal(t, "Hi there", chat.Messages[0].Message)
	})

	t.Run("assigns agents round robin", func(t *testing.T) {
		resp := createTestSession(t, s)
		assert.Equal(t, DefaultAgents[1].Name, resp.AssignedAgent.Name)
	})

	t.Run("rejects invalid intake", func(t *testing.T) {
		tests := []struct {
			name string
			req  model.CreateSessionRequest
			code errors.ErrorCode
		}{
			{"missing name", model.CreateSessionRequest{Email: "a@b.co"}, errors.ErrCodeMissingRequired},
			{"bad email", model.CreateSessionRequest{Name: "Ann", Email: "nope"}, errors.ErrCodeInvalidInput},
			{"bad phone", model.CreateSessionRequest{Name: "Ann", Email: "a@b.co", Phone: "call me"}, errors.ErrCodeInvalidInput},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := s.CreateSession(context.Background(), tc.req)
				assert.True(t, errors.HasCode(err, tc.code), "got %v", err)
			})
		}
	})
}

func TestChatService_Authorize(t *testing.T) {
	s, _ := newTestChatService()
	resp := createTestSession(t, s)

	assert.NoError(t, s.Authorize(resp.SessionID, resp.SessionToken))
	assert.True(t, errors.HasCode(s.Authorize(resp.SessionID, ""), errors.ErrCodeUnauthorized))
	assert.True(t, errors.HasCode(s.Authorize(resp.SessionID, "wrong"), errors.ErrCodeInvalidToken))
	assert.True(t, errors.HasCode(s.Authorize("missing", resp.SessionToken), errors.ErrCodeNotFound))
}

func TestChatService_SendMessage(t *testing.T) {
	s, pub := newTestChatService()
	resp := createTestSession(t, s)
	ctx := context.Background()

	msg, err := s.SendMessage(ctx, resp.SessionToken, model.SendMessageRequest{SessionID: resp.SessionID, Message: " hello "})
	require.NoError(t, err)
	assert.Equal(t, "hello", msg.Message)
	assert.Equal(t, resp.SessionID, msg.ConversationID)
	require.NotNil(t, msg.SenderConsumerID)
	assert.Equal(t, resp.Consumer.ID, *msg.SenderConsumerID)

	published := pub.published()
	require.Len(t, published, 1)
	assert.Equal(t, msg.ID, published[0].ID)

	t.Run("empty message", func(t *testing.T) {
		_, err := s.SendMessage(ctx, resp.SessionToken, model.SendMessageRequest{SessionID: resp.SessionID, Message: "  "})
		assert.True(t, errors.HasCode(err, errors.ErrCodeMissingRequired))
	})

	t.Run("bad token", func(t *testing.T) {
		_, err := s.SendMessage(ctx, "nope", model.SendMessageRequest{SessionID: resp.SessionID, Message: "x"})
		assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidToken))
	})

	t.Run("resolved conversation refuses messages", func(t *testing.T) {
		require.NoError(t, s.SetStatus(ctx, resp.SessionID, model.SessionStatusResolved))
		_, err := s.SendMessage(ctx, resp.SessionToken, model.SendMessageRequest{SessionID: resp.SessionID, Message: "x"})
		assert.True(t, errors.HasCode(err, errors.ErrCodeSendingDisabled))
	})
}

func TestChatService_PostAgentMessage(t *testing.T) {
	s, pub := newTestChatService()
	resp := createTestSession(t, s)
	ctx := context.Background()

	msg, err := s.PostAgentMessage(ctx, resp.SessionID, "How can I help?")
	require.NoError(t, err)
	assert.Equal(t, model.SenderTypeUser, msg.SenderType)
	require.NotNil(t, msg.SenderUserID)
	assert.Equal(t, resp.AssignedAgent.ID, *msg.SenderUserID)

	chat, err := s.GetSession(ctx, resp.SessionID, resp.SessionToken)
	require.NoError(t, err)
	require.Len(t, chat.Messages, 2)
	assert.True(t, chat.Messages[0].IsRead, "consumer message is read once the agent replies")
	assert.Len(t, pub.published(), 1)

	_, err = s.PostAgentMessage(ctx, "missing", "x")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestChatService_SetStatus(t *testing.T) {
	s, _ := newTestChatService()
	resp := createTestSession(t, s)
	ctx := context.Background()

	assert.True(t, errors.HasCode(s.SetStatus(ctx, resp.SessionID, "PAUSED"), errors.ErrCodeInvalidInput))
	assert.True(t, errors.HasCode(s.SetStatus(ctx, "missing", model.SessionStatusClosed), errors.ErrCodeNotFound))
	require.NoError(t, s.SetStatus(ctx, resp.SessionID, model.SessionStatusResolved))

	chat, err := s.GetSession(ctx, resp.SessionID, resp.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, model.SessionStatusResolved, chat.Status)
}

func TestChatService_SubmitRating(t *testing.T) {
	s, _ := newTestChatService()
	resp := createTestSession(t, s)
	ctx := context.Background()

	_, err := s.SubmitRating(ctx, resp.SessionID, resp.SessionToken, model.SubmitRatingRequest{Rating: 6})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	out, err := s.SubmitRating(ctx, resp.SessionID, resp.SessionToken, model.SubmitRatingRequest{Rating: 5, Feedback: " great "})
	require.NoError(t, err)
	assert.Equal(t, 5, out.Rating)
	require.NotNil(t, out.Feedback)
	assert.Equal(t, "great", *out.Feedback)
	assert.NotNil(t, out.RatedAt)
	assert.Equal(t, model.SessionStatusClosed, out.Status)

	chat, err := s.GetSession(ctx, resp.SessionID, resp.SessionToken)
	require.NoError(t, err)
	summary := chat.RatingSummary()
	require.NotNil(t, summary)
	assert.Equal(t, "great", summary.Feedback)

	_, err = s.SubmitRating(ctx, resp.SessionID, resp.SessionToken, model.SubmitRatingRequest{Rating: 4})
	assert.True(t, errors.HasCode(err, errors.ErrCodeConflict))
}

func TestChatService_GetSessionReturnsCopy(t *testing.T) {
	s, _ := newTestChatService()
	resp := createTestSession(t, s)

	chat, err := s.GetSession(context.Background(), resp.SessionID, resp.SessionToken)
	require.NoError(t, err)
	chat.Messages[0].Message = "tampered"
	chat.AssignedUser.Name = "tampered"

	again, err := s.GetSession(context.Background(), resp.SessionID, resp.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", again.Messages[0].Message)
	assert.NotEqual(t, "tampered", again.AssignedUser.Name)
}

func TestChatService_ListAndDeleteExpired(t *testing.T) {
	s, _ := newTestChatService()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	old := createTestSession(t, s)
	s.now = func() time.Time { return base.Add(time.Hour) }
	fresh := createTestSession(t, s)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, fresh.SessionID, list[0].ID)
	assert.Equal(t, old.SessionID, list[1].ID)

	n, err := s.DeleteExpired(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list = s.List()
	require.Len(t, list, 1)
	assert.Equal(t, fresh.SessionID, list[0].ID)
}

func TestChatService_History(t *testing.T) {
	s, _ := newTestChatService()
	resp := createTestSession(t, s)

	history, err := s.History(resp.SessionID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Hi there", history[0].Message)

	_, err = s.History("missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}
