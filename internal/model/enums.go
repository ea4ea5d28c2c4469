package model

type SessionStatus string

const (
	SessionStatusUnknown  SessionStatus = ""
	SessionStatusActive   SessionStatus = "ACTIVE"
	SessionStatusResolved SessionStatus = "RESOLVED"
	SessionStatusClosed   SessionStatus = "CLOSED"
)

// IsEnded reports whether the conversation has left the active state.
// An unknown status (resumed, not yet fetched) is not ended.
func (s SessionStatus) IsEnded() bool {
	return s != SessionStatusUnknown && s != SessionStatusActive
}

type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

type MessageStatus string

const (
	MessageStatusSending   MessageStatus = "sending"
	MessageStatusSent      MessageStatus = "sent"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusRead      MessageStatus = "read"
	MessageStatusFailed    MessageStatus = "failed"
)

type AgentStatus string

const (
	AgentStatusOnline  AgentStatus = "online"
	AgentStatusOffline AgentStatus = "offline"
)

// SenderType is the backend's notion of who authored a message.
type SenderType string

const (
	SenderTypeConsumer SenderType = "CONSUMER"
	SenderTypeUser     SenderType = "USER"
	SenderTypeSystem   SenderType = "SYSTEM"
)
