package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/util"
)

// Publisher fans a new message out to the realtime subscribers of a
// conversation.
type Publisher interface {
	Publish(ctx context.Context, conversationID string, msg model.APIMessage) error
}

var DefaultAgents = []model.AssignedUser{
	{ID: "agent-1", Name: "Aye Chan", Email: "aye@wecare.example"},
	{ID: "agent-2", Name: "Li Wei", Email: "li@wecare.example"},
	{ID: "agent-3", Name: "Sam Taylor", Email: "sam@wecare.example"},
}

type conversation struct {
	chat      model.ChatSession
	tokenHash string
}

// ChatService is the in-memory conversation backend served by the mock
// server. Session tokens are kept only as hashes.
type ChatService struct {
	publisher Publisher
	agents    []model.AssignedUser
	now       func() time.Time

	mu            sync.RWMutex
	conversations map[string]*conversation
	nextAgent     int
}

func NewChatService(publisher Publisher, agents []model.AssignedUser) *ChatService {
	if len(agents) == 0 {
		agents = DefaultAgents
	}
	return &ChatService{
		publisher:     publisher,
		agents:        agents,
		now:           time.Now,
		conversations: make(map[string]*conversation),
	}
}

func (s *ChatService) CreateSession(ctx context.Context, req model.CreateSessionRequest) (*model.CreateSessionResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	switch {
	case req.Name == "":
		return nil, errors.MissingRequired("name")
	case !util.IsValidEmail(req.Email):
		return nil, errors.InvalidInput("email", "must be a valid address")
	case !util.IsValidPhone(req.Phone):
		return nil, errors.InvalidInput("phone", "is not a valid phone number")
	}

	token, err := util.GenerateToken()
	if err != nil {
		return nil, errors.Internal("Failed to issue session token").WithCause(err)
	}

	now := s.now().UTC()
	consumer := model.Consumer{ID: uuid.NewString(), Name: req.Name, Email: req.Email, Phone: req.Phone}

	s.mu.Lock()
	agent := s.agents[s.nextAgent%len(s.agents)]
	s.nextAgent++

	conv := &conversation{
		chat: model.ChatSession{
			ID:           uuid.NewString(),
			Consumer:     consumer,
			AssignedUser: &agent,
			Messages:     []model.APIMessage{},
			Status:       model.SessionStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		tokenHash: util.HashToken(token),
	}
	if first := strings.TrimSpace(req.Message); first != "" {
		conv.chat.Messages = append(conv.chat.Messages, s.newMessage(conv, model.SenderTypeConsumer, first, now))
	}
	s.conversations[conv.chat.ID] = conv
	s.mu.Unlock()

	log.Info().
		Str("session_id", conv.chat.ID).
		Str("agent", agent.Name).
		Str("token", util.MaskToken(token)).
		Msg("chat session created")

	return &model.CreateSessionResponse{
		SessionID:     conv.chat.ID,
		SessionToken:  token,
		Consumer:      consumer,
		AssignedAgent: agent,
	}, nil
}

// Authorize checks token against the conversation's stored hash.
func (s *ChatService) Authorize(sessionID, token string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, err := s.authorizedLocked(sessionID, token)
	return err
}

func (s *ChatService) GetSession(ctx context.Context, sessionID, token string) (*model.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, err := s.authorizedLocked(sessionID, token)
	if err != nil {
		return nil, err
	}
	return copyChat(&conv.chat), nil
}

func (s *ChatService) SendMessage(ctx context.Context, token string, req model.SendMessageRequest) (*model.APIMessage, error) {
	text := strings.TrimSpace(req.Message)
	if text == "" {
		return nil, errors.MissingRequired("message")
	}

	s.mu.Lock()
	conv, err := s.authorizedLocked(req.SessionID, token)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if conv.chat.Status != model.SessionStatusActive {
		s.mu.Unlock()
		return nil, errors.SendingDisabled()
	}
	msg := s.newMessage(conv, model.SenderTypeConsumer, text, s.now().UTC())
	s.appendLocked(conv, msg)
	s.mu.Unlock()

	s.publish(ctx, msg)
	return &msg, nil
}

// PostAgentMessage adds a reply from the assigned agent and marks the
// consumer's messages read.
func (s *ChatService) PostAgentMessage(ctx context.Context, sessionID, text string) (*model.APIMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.MissingRequired("message")
	}

	s.mu.Lock()
	conv, ok := s.conversations[sessionID]
	if !ok {
		s.mu.Unlock()
		return nil, errors.NotFound("Session")
	}
	for i := range conv.chat.Messages {
		if conv.chat.Messages[i].SenderType == model.SenderTypeConsumer {
			conv.chat.Messages[i].IsRead = true
		}
	}
	msg := s.newMessage(conv, model.SenderTypeUser, text, s.now().UTC())
	s.appendLocked(conv, msg)
	s.mu.Unlock()

	s.publish(ctx, msg)
	return &msg, nil
}

func (s *ChatService) SetStatus(ctx context.Context, sessionID string, status model.SessionStatus) error {
	switch status {
	case model.SessionStatusActive, model.SessionStatusResolved, model.SessionStatusClosed:
	default:
		return errors.InvalidInput("status", "must be ACTIVE, RESOLVED or CLOSED")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[sessionID]
	if !ok {
		return errors.NotFound("Session")
	}
	conv.chat.Status = status
	conv.chat.UpdatedAt = s.now().UTC()

	log.Info().Str("session_id", sessionID).Str("status", string(status)).Msg("chat session status changed")
	return nil
}

func (s *ChatService) SubmitRating(ctx context.Context, sessionID, token string, req model.SubmitRatingRequest) (*model.SubmitRatingResponse, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, errors.InvalidInput("rating", "must be between 1 and 5")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.authorizedLocked(sessionID, token)
	if err != nil {
		return nil, err
	}
	if conv.chat.Rating != nil {
		return nil, errors.New(errors.ErrCodeConflict, "This conversation has already been rated")
	}

	now := s.now().UTC()
	rating := req.Rating
	conv.chat.Rating = &rating
	if fb := strings.TrimSpace(req.Feedback); fb != "" {
		conv.chat.Feedback = &fb
	}
	conv.chat.RatedAt = &now
	conv.chat.Status = model.SessionStatusClosed
	conv.chat.UpdatedAt = now

	return &model.SubmitRatingResponse{
		ID:       conv.chat.ID,
		Rating:   rating,
		Feedback: conv.chat.Feedback,
		RatedAt:  conv.chat.RatedAt,
		Status:   conv.chat.Status,
	}, nil
}

// History returns the stored messages of a conversation without a token
// check. It backs the operator stream only.
func (s *ChatService) History(sessionID string) ([]model.APIMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[sessionID]
	if !ok {
		return nil, errors.NotFound("Session")
	}
	return append([]model.APIMessage(nil), conv.chat.Messages...), nil
}

// List returns every conversation, newest first.
func (s *ChatService) List() []model.ChatSession {
	s.mu.RLock()
	out := make([]model.ChatSession, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, *copyChat(&conv.chat))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// DeleteExpired drops conversations not updated within maxAge.
func (s *ChatService) DeleteExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, conv := range s.conversations {
		if conv.chat.UpdatedAt.Before(cutoff) {
			delete(s.conversations, id)
			n++
		}
	}
	return n, nil
}

func (s *ChatService) authorizedLocked(sessionID, token string) (*conversation, error) {
	conv, ok := s.conversations[sessionID]
	if !ok {
		return nil, errors.NotFound("Session")
	}
	if token == "" {
		return nil, errors.Unauthorized("Session token is required")
	}
	if !util.ConstantTimeEqual(util.HashToken(token), conv.tokenHash) {
		return nil, errors.InvalidToken("Invalid session token")
	}
	return conv, nil
}

func (s *ChatService) newMessage(conv *conversation, sender model.SenderType, text string, at time.Time) model.APIMessage {
	msg := model.APIMessage{
		ID:             uuid.NewString(),
		ConversationID: conv.chat.ID,
		SenderType:     sender,
		Message:        text,
		CreatedAt:      at,
	}
	switch sender {
	case model.SenderTypeConsumer:
		id := conv.chat.Consumer.ID
		msg.SenderConsumerID = &id
	case model.SenderTypeUser:
		if conv.chat.AssignedUser != nil {
			id := conv.chat.AssignedUser.ID
			msg.SenderUserID = &id
		}
	}
	return msg
}

func (s *ChatService) appendLocked(conv *conversation, msg model.APIMessage) {
	conv.chat.Messages = append(conv.chat.Messages, msg)
	conv.chat.UpdatedAt = msg.CreatedAt
}

func (s *ChatService) publish(ctx context.Context, msg model.APIMessage) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, msg.ConversationID, msg); err != nil {
		log.Warn().Err(err).Str("session_id", msg.ConversationID).Msg("failed to publish message")
	}
}

func copyChat(c *model.ChatSession) *model.ChatSession {
	out := *c
	out.Messages = append([]model.APIMessage(nil), c.Messages...)
	if c.AssignedUser != nil {
		u := *c.AssignedUser
		out.AssignedUser = &u
	}
	return &out
}
