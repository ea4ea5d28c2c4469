// Package session owns the identity, token and status of the current chat
// session. It is the only place where transport and storage errors are turned
// into typed outcomes for the conversation.
package session

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/htetarkarhlaing/wecare-chat-widget/internal/api"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/audit"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/errors"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/model"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/persistence"
	"github.com/htetarkarhlaing/wecare-chat-widget/internal/util"
)

const DefaultAgentName = "Customer Support"

// API is the subset of api.Client the manager needs.
type API interface {
	CreateSession(ctx context.Context, req model.CreateSessionRequest) (*model.CreateSessionResponse, error)
	GetSession(ctx context.Context, sessionID string) (*model.ChatSession, error)
	SendMessage(ctx context.Context, req model.SendMessageRequest) (*model.APIMessage, error)
	SubmitRating(ctx context.Context, sessionID string, req model.SubmitRatingRequest) (*model.SubmitRatingResponse, error)
	SetSessionToken(token string)
}

var _ API = (*api.Client)(nil)

type CreateResult struct {
	Session *model.Session
	Agent   model.AgentInfo
}

type Manager struct {
	api   API
	store persistence.SessionStore
	now   func() time.Time

	mu      sync.RWMutex
	current *model.Session
}

func NewManager(client API, store persistence.SessionStore) *Manager {
	return &Manager{
		api:   client,
		store: store,
		now:   time.Now,
	}
}

// Current returns a copy of the current session, or nil.
func (m *Manager) Current() *model.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	s := *m.current
	return &s
}

// Resume restores the persisted session, if any. The returned session has an
// unknown status until Fetch succeeds. Unusable records are deleted.
func (m *Manager) Resume(ctx context.Context) (*model.Session, error) {
	record, err := m.store.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("discarding unreadable persisted session")
		m.deleteRecord(ctx)
		return nil, nil
	}
	if record == nil {
		return nil, nil
	}
	if !record.Valid() {
		log.Warn().Msg("discarding incomplete persisted session")
		m.deleteRecord(ctx)
		return nil, nil
	}

	s := &model.Session{
		ID:        record.SessionID,
		Token:     record.SessionToken,
		Status:    model.SessionStatusUnknown,
		CreatedAt: record.CreatedTime(),
	}
	m.setCurrent(s)

	audit.Log(ctx, audit.Event{Type: audit.EventSessionResume, SessionID: s.ID})
	return m.Current(), nil
}

// Create starts a new session from the intake form. The result is not
// current until it is passed to Adopt, so a caller can drop a create that
// was superseded without touching the live session.
func (m *Manager) Create(ctx context.Context, intake model.Intake) (*CreateResult, error) {
	intake.Name = strings.TrimSpace(intake.Name)
	intake.Email = strings.TrimSpace(intake.Email)
	intake.Phone = strings.TrimSpace(intake.Phone)
	intake.Message = strings.TrimSpace(intake.Message)

	if err := validateIntake(intake); err != nil {
		return nil, err
	}

	resp, err := m.api.CreateSession(ctx, model.CreateSessionRequest{
		Name:    intake.Name,
		Email:   intake.Email,
		Phone:   intake.Phone,
		Message: intake.Message,
	})
	if err != nil {
		audit.Log(ctx, audit.Event{
			Type:    audit.EventSessionCreateFail,
			Details: map[string]interface{}{"error": err},
		})
		return nil, errors.SessionCreateFailed(serverMessage(err), err)
	}
	if resp.SessionID == "" || resp.SessionToken == "" {
		return nil, errors.SessionCreateFailed("", stderrors.New("response is missing session credentials"))
	}

	s := &model.Session{
		ID:        resp.SessionID,
		Token:     resp.SessionToken,
		Status:    model.SessionStatusActive,
		CreatedAt: m.now(),
	}

	agentName := resp.AssignedAgent.Name
	if agentName == "" {
		agentName = DefaultAgentName
	}

	audit.Log(ctx, audit.Event{
		Type:      audit.EventSessionCreate,
		SessionID: s.ID,
		Details:   map[string]interface{}{"agent": agentName},
	})

	return &CreateResult{
		Session: s,
		Agent:   model.AgentInfo{Name: agentName, Status: model.AgentStatusOnline},
	}, nil
}

// Adopt makes s the current session, attaches its token and persists it.
// A session that could not be persisted still works; it just won't survive a restart.
func (m *Manager) Adopt(ctx context.Context, s *model.Session) *model.Session {
	if err := m.store.Save(ctx, model.NewPersistedSession(s)); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID).Msg("failed to persist session")
	}
	cp := *s
	m.setCurrent(&cp)
	return m.Current()
}

// Fetch loads the full session record. The token must already be attached,
// which Resume and Adopt both do.
func (m *Manager) Fetch(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	if cur := m.Current(); cur == nil || cur.ID != sessionID {
		return nil, errors.NoActiveSession()
	}

	chat, err := m.api.GetSession(ctx, sessionID)
	if err != nil {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventSessionExpired,
			SessionID: sessionID,
			Details:   map[string]interface{}{"error": err},
		})
		return nil, errors.SessionExpired(err)
	}

	m.updateStatus(sessionID, chat.Status)
	return chat, nil
}

// Send posts text and returns the confirmed message. The caller reconciles it
// with its optimistic copy.
func (m *Manager) Send(ctx context.Context, text string) (*model.Message, error) {
	cur := m.Current()
	if cur == nil {
		return nil, errors.NoActiveSession()
	}

	resp, err := m.api.SendMessage(ctx, model.SendMessageRequest{SessionID: cur.ID, Message: text})
	if err != nil {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventMessageSendFail,
			SessionID: cur.ID,
			Details:   map[string]interface{}{"error": err},
		})
		return nil, errors.SendFailed(err)
	}

	msg := resp.ToMessage(m.now())
	return &msg, nil
}

// SubmitRating records the rating and returns the stored summary together
// with the session status reported by the server.
func (m *Manager) SubmitRating(ctx context.Context, rating int, feedback string) (*model.RatingSummary, model.SessionStatus, error) {
	cur := m.Current()
	if cur == nil {
		return nil, model.SessionStatusUnknown, errors.NoActiveSession()
	}

	resp, err := m.api.SubmitRating(ctx, cur.ID, model.SubmitRatingRequest{
		Rating:   rating,
		Feedback: strings.TrimSpace(feedback),
	})
	if err != nil {
		audit.Log(ctx, audit.Event{
			Type:      audit.EventRatingSubmitFail,
			SessionID: cur.ID,
			Details:   map[string]interface{}{"error": err},
		})
		return nil, model.SessionStatusUnknown, errors.RatingSubmitFailed(err)
	}

	m.updateStatus(cur.ID, resp.Status)
	audit.Log(ctx, audit.Event{
		Type:      audit.EventRatingSubmit,
		SessionID: cur.ID,
		Details:   map[string]interface{}{"rating": resp.Rating},
	})
	return resp.Summary(), resp.Status, nil
}

// Clear drops the session, detaches the token and deletes the persisted
// record. Calling it without a session is a no-op apart from the delete.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	prev := m.current
	m.current = nil
	m.mu.Unlock()

	m.api.SetSessionToken("")

	if prev != nil {
		audit.Log(ctx, audit.Event{Type: audit.EventSessionReset, SessionID: prev.ID})
	}

	if err := m.store.Delete(ctx); err != nil {
		return errors.Storage(err)
	}
	return nil
}

func (m *Manager) setCurrent(s *model.Session) {
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	m.api.SetSessionToken(s.Token)
}

func (m *Manager) updateStatus(sessionID string, status model.SessionStatus) {
	if status == model.SessionStatusUnknown {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.ID == sessionID {
		m.current.Status = status
	}
}

func (m *Manager) deleteRecord(ctx context.Context) {
	if err := m.store.Delete(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to delete persisted session")
	}
}

func validateIntake(in model.Intake) error {
	if in.Name == "" {
		return errors.MissingRequired("name")
	}
	if in.Email == "" {
		return errors.MissingRequired("email")
	}
	if !util.IsValidEmail(in.Email) {
		return errors.InvalidInput("email", "must be a valid address")
	}
	if !util.IsValidPhone(in.Phone) {
		return errors.InvalidInput("phone", "is not a valid phone number")
	}
	return nil
}

// serverMessage returns the message the backend put in its error body, if
// the failure came from a response rather than the transport.
func serverMessage(err error) string {
	var httpErr *api.HTTPError
	if stderrors.As(err, &httpErr) {
		return httpErr.Message
	}
	return ""
}
