package model

import (
	"time"
)

type Session struct {
	ID        string        `json:"id"`
	Token     string        `json:"-"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// PersistedSession is the durable projection of a Session kept in the
// persistence slot between restarts. CreatedAt is Unix milliseconds.
type PersistedSession struct {
	SessionID    string `json:"sessionId" db:"session_id"`
	SessionToken string `json:"sessionToken" db:"session_token"`
	CreatedAt    int64  `json:"createdAt" db:"created_at"`
}

func NewPersistedSession(s *Session) *PersistedSession {
	return &PersistedSession{
		SessionID:    s.ID,
		SessionToken: s.Token,
		CreatedAt:    s.CreatedAt.UnixMilli(),
	}
}

// Valid reports whether the record can be resumed.
func (p *PersistedSession) Valid() bool {
	return p != nil && p.SessionID != "" && p.SessionToken != ""
}

func (p *PersistedSession) CreatedTime() time.Time {
	return time.UnixMilli(p.CreatedAt)
}

type AgentInfo struct {
	Name   string      `json:"name"`
	Status AgentStatus `json:"status"`
}

type Intake struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message,omitempty"`
}
