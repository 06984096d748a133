package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rentdesk/rentdesk-platform/internal/chat"
	"github.com/rentdesk/rentdesk-platform/internal/events"
	"github.com/rentdesk/rentdesk-platform/internal/staff"
	"github.com/rentdesk/rentdesk-platform/pkg/logging"
)

// EventSink is where resolved notifications land; satisfied by events.Hub.
type EventSink interface {
	SendToUser(userID string, event events.Event)
	Broadcast(event events.Event)
}

// StaffDirectory lists notification recipients.
type StaffDirectory interface {
	ListActive(ctx context.Context) ([]*staff.Staff, error)
}

// ReadState reports how far a user has read a conversation.
type ReadState interface {
	LastReadAt(ctx context.Context, conversationID uuid.UUID, staffID string) (time.Time, bool, error)
}

// Service decides which staff members hear about WhatsApp activity and pushes
// the realtime events. Delivery is best effort: a failure to resolve read
// state or recipients degrades to notifying more people, never fewer pushes
// silently lost.
type Service struct {
	sink     EventSink
	staff    StaffDirectory
	reads    ReadState
	debounce *Debouncer
	logger   *logging.Logger
}

func NewService(sink EventSink, directory StaffDirectory, reads ReadState, debounce *Debouncer, logger *logging.Logger) *Service {
	if sink == nil {
		panic("notify: event sink required")
	}
	if directory == nil {
		panic("notify: staff directory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if debounce == nil {
		debounce = NewDebouncer(0)
	}
	return &Service{sink: sink, staff: directory, reads: reads, debounce: debounce, logger: logger}
}

// MessageNotice is everything NotifyNewMessage needs about the message and
// the line it arrived on.
type MessageNotice struct {
	Conversation *chat.Conversation
	Message      *chat.Message
	LineAreas    []string
	// Redelivery marks a push triggered by a webhook retry for a message
	// that already existed. The EventID stays identical on purpose so
	// clients keep deduplicating on it; the retry is surfaced through a
	// ":redelivery" DeliveryID suffix instead.
	Redelivery bool
}

// NotifyNewMessage fans an inbound message out to every eligible, active
// staff member who has not already read past it.
func (s *Service) NotifyNewMessage(ctx context.Context, n MessageNotice) {
	conv, msg := n.Conversation, n.Message
	if conv == nil || msg == nil {
		return
	}

	recipients, err := s.staff.ListActive(ctx)
	if err != nil {
		s.logger.Error("failed to list notification recipients", "error", err, "conversation_id", conv.ID)
		return
	}

	payload := events.NewMessagePayload{
		ConversationID:    conv.ID,
		ProviderMessageID: msg.ProviderMessageID,
		BusinessPhoneID:   conv.BusinessPhoneID,
		ParticipantPhone:  conv.ParticipantPhone,
		ParticipantName:   conv.ParticipantName,
		Direction:         msg.Direction,
		MessageType:       msg.Type,
		Preview:           chat.DisplayText(msg.Content, msg.Type),
		MediaURL:          msg.MediaURL,
		IsRetarget:        conv.IsRetarget,
		IsArchived:        conv.IsArchived,
		Timestamp:         msg.Timestamp,
	}

	for _, member := range recipients {
		if !Eligible(member, conv, n.LineAreas) {
			continue
		}
		userID := member.ID.String()
		if s.alreadyRead(ctx, conv.ID, userID, msg.Timestamp) {
			continue
		}
		// Debounce per (conversation, user): a burst of messages on one
		// thread collapses to a single push per recipient per window.
		if !s.debounce.Allow(conv.ID.String() + ":" + userID) {
			s.logger.Debug("debounced notification", "conversation_id", conv.ID, "user_id", userID)
			continue
		}
		eventID := events.MessageEventID(conv.ID, msg.ProviderMessageID, userID)
		deliveryID := events.NewDeliveryID()
		if n.Redelivery {
			deliveryID += ":redelivery"
		}
		s.sink.SendToUser(userID, events.Event{
			Type:       events.TypeNewMessage,
			EventID:    eventID,
			DeliveryID: deliveryID,
			SentAt:     time.Now().UTC(),
			Payload:    payload,
		})
	}
}

// NotifyNewConversation announces a freshly created thread to eligible staff.
func (s *Service) NotifyNewConversation(ctx context.Context, conv *chat.Conversation, lineAreas []string) {
	if conv == nil {
		return
	}
	recipients, err := s.staff.ListActive(ctx)
	if err != nil {
		s.logger.Error("failed to list notification recipients", "error", err, "conversation_id", conv.ID)
		return
	}
	payload := events.ConversationPayload{
		ConversationID:   conv.ID,
		BusinessPhoneID:  conv.BusinessPhoneID,
		ParticipantPhone: conv.ParticipantPhone,
		ParticipantName:  conv.ParticipantName,
		Source:           conv.Source,
		IsRetarget:       conv.IsRetarget,
	}
	for _, member := range recipients {
		if !Eligible(member, conv, lineAreas) {
			continue
		}
		userID := member.ID.String()
		eventID := events.MessageEventID(conv.ID, "conversation", userID)
		if !s.debounce.Allow(eventID) {
			continue
		}
		s.sink.SendToUser(userID, events.Event{
			Type:       events.TypeNewConversation,
			EventID:    eventID,
			DeliveryID: events.NewDeliveryID(),
			SentAt:     time.Now().UTC(),
			Payload:    payload,
		})
	}
}

// NotifyStatus pushes a delivery-status transition to eligible staff. Status
// changes skip the unread filter: a failure on a thread you have read is
// still worth seeing.
func (s *Service) NotifyStatus(ctx context.Context, conv *chat.Conversation, lineAreas []string, payload events.StatusPayload) {
	if conv == nil {
		return
	}
	recipients, err := s.staff.ListActive(ctx)
	if err != nil {
		s.logger.Error("failed to list notification recipients", "error", err, "conversation_id", conv.ID)
		return
	}
	for _, member := range recipients {
		if !Eligible(member, conv, lineAreas) {
			continue
		}
		userID := member.ID.String()
		eventID := events.MessageEventID(conv.ID, payload.ProviderMessageID+":"+payload.Status, userID)
		if !s.debounce.Allow(eventID) {
			continue
		}
		s.sink.SendToUser(userID, events.Event{
			Type:       events.TypeMessageStatusUpdate,
			EventID:    eventID,
			DeliveryID: events.NewDeliveryID(),
			SentAt:     time.Now().UTC(),
			Payload:    payload,
		})
	}
}

// Announce broadcasts an event to every connected socket. Used for line-wide
// occurrences (calls, history sync) that have no per-user eligibility.
func (s *Service) Announce(eventType, eventID string, payload any) {
	if !s.debounce.Allow(eventID) {
		return
	}
	s.sink.Broadcast(events.Event{
		Type:       eventType,
		EventID:    eventID,
		DeliveryID: events.NewDeliveryID(),
		SentAt:     time.Now().UTC(),
		Payload:    payload,
	})
}

func (s *Service) alreadyRead(ctx context.Context, conversationID uuid.UUID, userID string, at time.Time) bool {
	if s.reads == nil {
		return false
	}
	lastRead, ok, err := s.reads.LastReadAt(ctx, conversationID, userID)
	if err != nil {
		// Read-state is an optimization; on error, notify.
		s.logger.Warn("read state lookup failed", "error", err, "conversation_id", conversationID, "user_id", userID)
		return false
	}
	return ok && !lastRead.Before(at)
}

// Eligible implements the per-role routing rules:
//
//   - SuperAdmin, Admin and Developer always hear everything.
//   - Sales needs an area match and is excluded from retarget threads until
//     the thread is handed to sales.
//   - Team leads and LeadGen need an area match and see retarget threads.
//   - Advert only handles retarget threads.
func Eligible(member *staff.Staff, conv *chat.Conversation, lineAreas []string) bool {
	if member == nil || !member.Active {
		return false
	}
	if member.IsManagement() {
		return true
	}
	switch member.Role {
	case staff.RoleSales:
		if conv.IsRetarget && conv.RetargetStage != chat.RetargetStageHandedToSales {
			return false
		}
		return member.CoversArea(lineAreas)
	case staff.RoleSalesTeamLead, staff.RoleLeadGenTeamLead, staff.RoleLeadGen:
		return member.CoversArea(lineAreas)
	case staff.RoleAdvert:
		return conv.IsRetarget
	}
	return false
}
