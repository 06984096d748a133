package chat

import (
	"time"

	"github.com/google/uuid"
)

// Conversation sources. Webhook processing never touches internal conversations.
const (
	SourceMeta     = "meta"
	SourceInternal = "internal"
)

// Message directions.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Message delivery statuses.
const (
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Retarget stages relevant to notification eligibility.
const RetargetStageHandedToSales = "handed_to_sales"

// Conversation is the durable thread between one participant phone and one
// business phone line. Snapshot fields are written only at creation.
type Conversation struct {
	ID               uuid.UUID  `json:"id"`
	ParticipantPhone string     `json:"participant_phone"`
	BusinessPhoneID  string     `json:"business_phone_id"`
	ParticipantName  string     `json:"participant_name"`
	AssignedAgent    *uuid.UUID `json:"assigned_agent,omitempty"`
	Source           string     `json:"source"`

	SnapshotName  string `json:"snapshot_name"`
	SnapshotPhone string `json:"snapshot_phone"`

	LastMessageID        string     `json:"last_message_id,omitempty"`
	LastMessageContent   string     `json:"last_message_content,omitempty"`
	LastMessageTime      *time.Time `json:"last_message_time,omitempty"`
	LastMessageDirection string     `json:"last_message_direction,omitempty"`
	LastMessageStatus    string     `json:"last_message_status,omitempty"`

	LastIncomingMessageTime *time.Time `json:"last_incoming_message_time,omitempty"`
	LastOutgoingMessageTime *time.Time `json:"last_outgoing_message_time,omitempty"`
	LastCustomerMessageAt   *time.Time `json:"last_customer_message_at,omitempty"`
	FirstMessageTime        *time.Time `json:"first_message_time,omitempty"`

	IsRetarget    bool   `json:"is_retarget"`
	RetargetStage string `json:"retarget_stage,omitempty"`
	OwnerRole     string `json:"owner_role,omitempty"`
	IsArchived    bool   `json:"is_archived"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationSnapshot is the denormalized participant/agent state captured on
// a message at send time.
type ConversationSnapshot struct {
	ParticipantName  string `json:"participant_name,omitempty"`
	ParticipantPhone string `json:"participant_phone,omitempty"`
	AssignedAgent    string `json:"assigned_agent,omitempty"`
}

// Message is immutable once inserted except for status, the append-only status
// event log, and failure_reason.
type Message struct {
	ID                uuid.UUID `json:"id"`
	ConversationID    uuid.UUID `json:"conversation_id"`
	ProviderMessageID string    `json:"provider_message_id"`
	BusinessPhoneID   string    `json:"business_phone_id"`
	From              string    `json:"from"`
	To                string    `json:"to"`
	Type              string    `json:"type"`
	Content           Content   `json:"content"`

	MediaURL string `json:"media_url,omitempty"`
	MediaID  string `json:"media_id,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`

	Direction     string `json:"direction"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`

	ReplyToMessageID   string `json:"reply_to_message_id,omitempty"`
	ReplyContextFrom   string `json:"reply_context_from,omitempty"`
	ReactedToMessageID string `json:"reacted_to_message_id,omitempty"`
	ReactionEmoji      string `json:"reaction_emoji,omitempty"`

	TemplateName string               `json:"template_name,omitempty"`
	Snapshot     ConversationSnapshot `json:"conversation_snapshot"`

	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusEvent is one entry of a message's append-only status log.
type StatusEvent struct {
	ID          uuid.UUID `json:"id"`
	MessageID   uuid.UUID `json:"message_id"`
	Status      string    `json:"status"`
	OccurredAt  time.Time `json:"occurred_at"`
	ErrorCode   int       `json:"error_code,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
}

// SummaryUpdate carries the conversation summary fields derived from a message.
type SummaryUpdate struct {
	ProviderMessageID string
	Content           string
	Timestamp         time.Time
	Direction         string
}
