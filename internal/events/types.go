package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Realtime event types pushed to staff dashboards over WebSocket.
const (
	TypeNewMessage          = "new-message"
	TypeNewConversation     = "new-conversation"
	TypeConversationUpdate  = "conversation-update"
	TypeMessageStatusUpdate = "message-status-update"
	TypeMessageEcho         = "message-echo"
	TypeIncomingCall        = "incoming-call"
	TypeCallMissed          = "call-missed"
	TypeCallStatusUpdate    = "call-status-update"
	TypeHistorySync         = "history-sync"
	TypeAppStateSync        = "app-state-sync"
)

// Event is the envelope every realtime payload travels in.
//
// EventID is deterministic for the logical occurrence (the same message
// notified to the same user always carries the same EventID), which lets
// clients de-duplicate. DeliveryID is unique per push attempt so redeliveries
// are distinguishable.
type Event struct {
	Type       string    `json:"type"`
	EventID    string    `json:"event_id"`
	DeliveryID string    `json:"delivery_id"`
	SentAt     time.Time `json:"sent_at"`
	Payload    any       `json:"payload"`
}

// NewDeliveryID mints a per-push identifier.
func NewDeliveryID() string {
	return fmt.Sprintf("%s-%d", uuid.NewString(), time.Now().UnixMilli())
}

// MessageEventID builds the deterministic identity for a message notification
// targeted at one user.
func MessageEventID(conversationID uuid.UUID, providerMessageID, userID string) string {
	return fmt.Sprintf("%s:%s:%s", conversationID, providerMessageID, userID)
}

// NewMessagePayload accompanies TypeNewMessage and TypeMessageEcho.
type NewMessagePayload struct {
	ConversationID    uuid.UUID `json:"conversation_id"`
	ProviderMessageID string    `json:"provider_message_id"`
	BusinessPhoneID   string    `json:"business_phone_id"`
	ParticipantPhone  string    `json:"participant_phone"`
	ParticipantName   string    `json:"participant_name,omitempty"`
	Direction         string    `json:"direction"`
	MessageType       string    `json:"message_type"`
	Preview           string    `json:"preview"`
	MediaURL          string    `json:"media_url,omitempty"`
	IsRetarget        bool      `json:"is_retarget,omitempty"`
	IsArchived        bool      `json:"is_archived,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// ConversationPayload accompanies TypeNewConversation and
// TypeConversationUpdate.
type ConversationPayload struct {
	ConversationID   uuid.UUID `json:"conversation_id"`
	BusinessPhoneID  string    `json:"business_phone_id"`
	ParticipantPhone string    `json:"participant_phone"`
	ParticipantName  string    `json:"participant_name,omitempty"`
	Source           string    `json:"source"`
	IsRetarget       bool      `json:"is_retarget,omitempty"`
}

// StatusPayload accompanies TypeMessageStatusUpdate.
type StatusPayload struct {
	ConversationID    uuid.UUID `json:"conversation_id"`
	ProviderMessageID string    `json:"provider_message_id"`
	Status            string    `json:"status"`
	FailureReason     string    `json:"failure_reason,omitempty"`
	RecipientPhone    string    `json:"recipient_phone,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// CallPayload accompanies the call event types.
type CallPayload struct {
	CallID          string    `json:"call_id"`
	BusinessPhoneID string    `json:"business_phone_id"`
	FromPhone       string    `json:"from_phone"`
	CallEvent       string    `json:"call_event"`
	CallStatus      string    `json:"call_status,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// SyncPayload accompanies TypeHistorySync and TypeAppStateSync.
type SyncPayload struct {
	BusinessPhoneID string `json:"business_phone_id"`
	Field           string `json:"field"`
	Phase           string `json:"phase,omitempty"`
	Chunk           int    `json:"chunk,omitempty"`
	Progress        int    `json:"progress,omitempty"`
}
