package model

import (
	"time"
)

type CreateSessionRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message,omitempty"`
}

type Consumer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type AssignedUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type CreateSessionResponse struct {
	SessionID     string       `json:"sessionId"`
	SessionToken  string       `json:"sessionToken"`
	Consumer      Consumer     `json:"consumer"`
	AssignedAgent AssignedUser `json:"assignedAgent"`
}

type APIMessage struct {
	ID               string     `json:"id"`
	ConversationID   string     `json:"conversationId,omitempty"`
	SenderType       SenderType `json:"senderType"`
	Message          string     `json:"message"`
	CreatedAt        time.Time  `json:"createdAt"`
	SenderUserID     *string    `json:"senderUserId,omitempty"`
	SenderConsumerID *string    `json:"senderConsumerId,omitempty"`
	IsRead           bool       `json:"isRead"`
}

// ToMessage maps a backend message into the widget's message shape.
// A zero CreatedAt is replaced by now.
func (m APIMessage) ToMessage(now time.Time) Message {
	ts := m.CreatedAt
	if ts.IsZero() {
		ts = now
	}

	sender := SenderAgent
	if m.SenderType == SenderTypeConsumer {
		sender = SenderUser
	}

	status := MessageStatusDelivered
	if sender == SenderUser && !m.IsRead {
		status = MessageStatusSent
	}

	return Message{
		ID:        m.ID,
		Text:      m.Message,
		Sender:    sender,
		Timestamp: ts,
		Status:    status,
	}
}

type ChatSession struct {
	ID           string        `json:"id"`
	Consumer     Consumer      `json:"consumer"`
	AssignedUser *AssignedUser `json:"assignedUser,omitempty"`
	Messages     []APIMessage  `json:"messages"`
	Status       SessionStatus `json:"status"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
	Rating       *int          `json:"rating,omitempty"`
	Feedback     *string       `json:"feedback,omitempty"`
	RatedAt      *time.Time    `json:"ratedAt,omitempty"`
}

// RatingSummary returns the stored rating, or nil when none was submitted.
func (s *ChatSession) RatingSummary() *RatingSummary {
	if s.Rating == nil {
		return nil
	}
	summary := &RatingSummary{Rating: *s.Rating, RatedAt: s.RatedAt}
	if s.Feedback != nil {
		summary.Feedback = *s.Feedback
	}
	return summary
}

type SendMessageRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
}

type SubmitRatingRequest struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}

type SubmitRatingResponse struct {
	ID       string        `json:"id"`
	Rating   int           `json:"rating"`
	Feedback *string       `json:"feedback,omitempty"`
	RatedAt  *time.Time    `json:"ratedAt,omitempty"`
	Status   SessionStatus `json:"status"`
}

func (r *SubmitRatingResponse) Summary() *RatingSummary {
	summary := &RatingSummary{Rating: r.Rating, RatedAt: r.RatedAt}
	if r.Feedback != nil {
		summary.Feedback = *r.Feedback
	}
	return summary
}

// Realtime payloads

type JoinPayload struct {
	ConversationID string `json:"conversationId"`
	SessionToken   string `json:"sessionToken"`
}

type SocketMessagePayload struct {
	ConversationID string     `json:"conversationId"`
	Message        APIMessage `json:"message"`
}
