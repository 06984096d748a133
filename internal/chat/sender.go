package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rentdesk/rentdesk-platform/internal/whatsapp"
	"github.com/rentdesk/rentdesk-platform/pkg/logging"
)

// TemplateClient is the provider surface the sender needs.
type TemplateClient interface {
	SendTemplate(ctx context.Context, phoneNumberID string, req whatsapp.TemplateRequest) (string, error)
}

// MessageWriter is the store surface the sender needs.
type MessageWriter interface {
	UpsertMessage(ctx context.Context, msg *Message) (bool, error)
	AdvanceSummary(ctx context.Context, conversationID uuid.UUID, upd SummaryUpdate) (bool, error)
}

// Sender is the single outbound write path: every template send, automated or
// manual, persists its message and advances the conversation summary the same
// way inbound processing does.
type Sender struct {
	client   TemplateClient
	store    MessageWriter
	language string
	logger   *logging.Logger
}

func NewSender(client TemplateClient, store MessageWriter, language string, logger *logging.Logger) *Sender {
	if logger == nil {
		logger = logging.Default()
	}
	if language == "" {
		language = "en"
	}
	return &Sender{client: client, store: store, language: language, logger: logger}
}

// SendTemplate sends a template to the conversation's participant and records
// the outbound message.
func (s *Sender) SendTemplate(ctx context.Context, conv *Conversation, templateName, recipientName string) (*Message, error) {
	var components []whatsapp.TemplateComponent
	if recipientName != "" {
		components = append(components, whatsapp.TemplateComponent{
			Type: "body",
			Parameters: []whatsapp.TemplateParameter{
				{Type: "text", Text: recipientName},
			},
		})
	}

	providerID, err := s.client.SendTemplate(ctx, conv.BusinessPhoneID, whatsapp.TemplateRequest{
		To:           conv.ParticipantPhone,
		TemplateName: templateName,
		LanguageCode: s.language,
		Components:   components,
	})
	if err != nil {
		return nil, fmt.Errorf("chat: send template %s: %w", templateName, err)
	}

	now := time.Now().UTC()
	msg := &Message{
		ConversationID:    conv.ID,
		ProviderMessageID: providerID,
		BusinessPhoneID:   conv.BusinessPhoneID,
		From:              conv.BusinessPhoneID,
		To:                conv.ParticipantPhone,
		Type:              "template",
		Content:           Content{Kind: ContentText, Text: "Template: " + templateName},
		Direction:         DirectionOutgoing,
		Status:            StatusSent,
		TemplateName:      templateName,
		Snapshot: ConversationSnapshot{
			ParticipantName:  conv.ParticipantName,
			ParticipantPhone: conv.ParticipantPhone,
		},
		Timestamp: now,
	}
	if conv.AssignedAgent != nil {
		msg.Snapshot.AssignedAgent = conv.AssignedAgent.String()
	}

	if _, err := s.store.UpsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	if _, err := s.store.AdvanceSummary(ctx, conv.ID, SummaryUpdate{
		ProviderMessageID: providerID,
		Content:           msg.Content.Text,
		Timestamp:         now,
		Direction:         DirectionOutgoing,
	}); err != nil {
		s.logger.Warn("template summary update failed", "error", err, "conversation_id", conv.ID)
	}

	return msg, nil
}
