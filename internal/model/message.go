package model

import (
	"strings"
	"time"
)

// Local id prefixes. Server ids never carry them.
const (
	WelcomeIDPrefix = "welcome-"
	InitialIDPrefix = "initial-"
	PendingIDPrefix = "pending-"
)

type Message struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Sender    Sender        `json:"sender"`
	Timestamp time.Time     `json:"timestamp"`
	Status    MessageStatus `json:"status,omitempty"`
}

func (m Message) IsWelcome() bool {
	return strings.HasPrefix(m.ID, WelcomeIDPrefix)
}

// IsPending reports whether m is an optimistic entry that has not been
// confirmed by the server yet.
func (m Message) IsPending() bool {
	if !strings.HasPrefix(m.ID, PendingIDPrefix) {
		return false
	}
	return m.Status == MessageStatusSending || m.Status == MessageStatusFailed
}

type RatingSummary struct {
	Rating   int        `json:"rating"`
	Feedback string     `json:"feedback,omitempty"`
	RatedAt  *time.Time `json:"ratedAt,omitempty"`
}
