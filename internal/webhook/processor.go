package webhook

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/rentdesk/rentdesk-platform/internal/chat"
	"github.com/rentdesk/rentdesk-platform/internal/events"
	"github.com/rentdesk/rentdesk-platform/internal/leads"
	"github.com/rentdesk/rentdesk-platform/internal/media"
	"github.com/rentdesk/rentdesk-platform/internal/notify"
	"github.com/rentdesk/rentdesk-platform/internal/observability/metrics"
	"github.com/rentdesk/rentdesk-platform/internal/staff"
	"github.com/rentdesk/rentdesk-platform/internal/whatsapp"
	"github.com/rentdesk/rentdesk-platform/pkg/logging"
)

// ConversationStore is the chat persistence surface the processor needs;
// satisfied by *chat.Store.
type ConversationStore interface {
	ResolveConversation(ctx context.Context, participantPhone, businessPhoneID, participantName, source string) (*chat.Conversation, bool, error)
	GetConversation(ctx context.Context, id uuid.UUID) (*chat.Conversation, error)
	UpsertMessage(ctx context.Context, msg *chat.Message) (bool, error)
	AdvanceSummary(ctx context.Context, conversationID uuid.UUID, upd chat.SummaryUpdate) (bool, error)
	ApplyStatus(ctx context.Context, providerMessageID, businessPhoneID, newStatus, failureReason string) (*chat.StatusResult, bool, error)
	AppendStatusEvent(ctx context.Context, evt chat.StatusEvent) error
	PropagateLastMessageStatus(ctx context.Context, conversationID uuid.UUID, providerMessageID, status string) error
	HasTemplateMessage(ctx context.Context, conversationID uuid.UUID, templateName string) (bool, error)
}

// Notifier fans resolved activity out to dashboards; satisfied by
// *notify.Service.
type Notifier interface {
	NotifyNewMessage(ctx context.Context, n notify.MessageNotice)
	NotifyNewConversation(ctx context.Context, conv *chat.Conversation, lineAreas []string)
	NotifyStatus(ctx context.Context, conv *chat.Conversation, lineAreas []string, payload events.StatusPayload)
	Announce(eventType, eventID string, payload any)
}

// MediaResolver copies provider media to durable storage; satisfied by
// *media.Resolver.
type MediaResolver interface {
	Resolve(ctx context.Context, mediaID string) *media.Resolved
}

// LineDirectory resolves business phone line configuration; satisfied by
// *staff.Store.
type LineDirectory interface {
	GetPhoneLine(ctx context.Context, businessPhoneID string) (*staff.PhoneLine, error)
}

// Processor turns parsed webhook changes into conversation state and
// notifications. Every handler tolerates partial failure: persistence errors
// abort the single message being processed, nothing else.
type Processor struct {
	store      ConversationStore
	lines      LineDirectory
	media      MediaResolver
	notifier   Notifier
	leads      leads.Repository
	automation *Automation
	metrics    *metrics.WebhookMetrics
	logger     *logging.Logger
}

type ProcessorConfig struct {
	Store      ConversationStore
	Lines      LineDirectory
	Media      MediaResolver
	Notifier   Notifier
	Leads      leads.Repository
	Automation *Automation
	Metrics    *metrics.WebhookMetrics
	Logger     *logging.Logger
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	if cfg.Store == nil {
		panic("webhook: conversation store required")
	}
	if cfg.Notifier == nil {
		panic("webhook: notifier required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Processor{
		store:      cfg.Store,
		lines:      cfg.Lines,
		media:      cfg.Media,
		notifier:   cfg.Notifier,
		leads:      cfg.Leads,
		automation: cfg.Automation,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// ProcessChange dispatches one field-scoped change. Unrecognized fields are
// acknowledged and dropped.
func (p *Processor) ProcessChange(ctx context.Context, entryID string, change whatsapp.Change) {
	start := time.Now()
	defer func() {
		p.metrics.ObserveLatency(change.Field, time.Since(start).Seconds())
	}()

	switch change.Field {
	case whatsapp.FieldMessages:
		for _, st := range change.Value.Statuses {
			p.handleStatus(ctx, change.Value, st)
		}
		for _, msg := range change.Value.Messages {
			p.handleMessage(ctx, change.Value, msg)
		}
	case whatsapp.FieldMessageEchoes:
		for _, msg := range change.Value.Messages {
			p.handleEcho(ctx, change.Value, msg)
		}
	case whatsapp.FieldCalls:
		for _, call := range change.Value.Calls {
			p.handleCall(ctx, change.Value, call)
		}
	case whatsapp.FieldHistory:
		p.metrics.ObserveInbound(change.Field, "ok")
		p.notifier.Announce(events.TypeHistorySync, "history:"+entryID, events.SyncPayload{
			BusinessPhoneID: change.Value.Metadata.PhoneNumberID,
			Field:           change.Field,
		})
	case whatsapp.FieldAppStateSync:
		p.metrics.ObserveInbound(change.Field, "ok")
		p.notifier.Announce(events.TypeAppStateSync, "appstate:"+entryID, events.SyncPayload{
			BusinessPhoneID: change.Value.Metadata.PhoneNumberID,
			Field:           change.Field,
		})
	default:
		p.metrics.ObserveInbound(change.Field, "ignored")
		p.logger.Debug("ignoring webhook change", "field", change.Field, "entry_id", entryID)
	}
}

func (p *Processor) handleMessage(ctx context.Context, value whatsapp.ChangeValue, msg whatsapp.Message) {
	businessPhoneID := value.Metadata.PhoneNumberID
	name := contactName(value.Contacts, msg.From)

	conv, created, err := p.store.ResolveConversation(ctx, msg.From, businessPhoneID, name, chat.SourceMeta)
	if err != nil {
		p.metrics.ObserveInbound(whatsapp.FieldMessages, "error")
		p.logger.Error("failed to resolve conversation", "error", err, "from", msg.From, "line", businessPhoneID)
		return
	}
	if conv.Source == chat.SourceInternal {
		p.metrics.ObserveInbound(whatsapp.FieldMessages, "internal_skip")
		p.logger.Debug("skipping internally managed conversation", "conversation_id", conv.ID)
		return
	}

	line := p.lineFor(ctx, businessPhoneID)
	if line.IsRetarget && !conv.IsRetarget {
		conv.IsRetarget = true
	}

	normalized := chat.Normalize(msg)
	record := &chat.Message{
		ConversationID:     conv.ID,
		ProviderMessageID:  msg.ID,
		BusinessPhoneID:    businessPhoneID,
		From:               msg.From,
		To:                 businessPhoneID,
		Type:               msg.Type,
		Content:            normalized.Content,
		MediaID:            normalized.MediaID,
		MimeType:           normalized.MimeType,
		Filename:           normalized.Filename,
		Direction:          chat.DirectionIncoming,
		Status:             chat.StatusDelivered,
		ReplyToMessageID:   normalized.ReplyToMessageID,
		ReplyContextFrom:   normalized.ReplyContextFrom,
		ReactedToMessageID: normalized.ReactedToMessageID,
		ReactionEmoji:      normalized.ReactionEmoji,
		Snapshot: chat.ConversationSnapshot{
			ParticipantName:  conv.ParticipantName,
			ParticipantPhone: conv.ParticipantPhone,
		},
		Timestamp: parseTimestamp(msg.Timestamp),
	}

	if normalized.MediaID != "" && p.media != nil {
		if resolved := p.media.Resolve(ctx, normalized.MediaID); resolved != nil {
			record.MediaURL = resolved.URL
			if resolved.MimeType != "" {
				record.MimeType = resolved.MimeType
			}
			p.metrics.ObserveMediaResolution("resolved")
		} else {
			p.metrics.ObserveMediaResolution("failed")
		}
	}

	isNew, err := p.store.UpsertMessage(ctx, record)
	if err != nil {
		p.metrics.ObserveInbound(whatsapp.FieldMessages, "error")
		p.logger.Error("failed to upsert message", "error", err, "provider_message_id", msg.ID)
		return
	}

	summary := chat.SummaryUpdate{
		ProviderMessageID: msg.ID,
		Content:           chat.TruncateSummary(chat.DisplayText(record.Content, record.Type)),
		Timestamp:         record.Timestamp,
		Direction:         chat.DirectionIncoming,
	}
	summaryApplied, err := p.store.AdvanceSummary(ctx, conv.ID, summary)
	if err != nil {
		p.logger.Error("failed to advance conversation summary", "error", err, "conversation_id", conv.ID)
	}

	if created {
		p.metrics.ObserveNotification(events.TypeNewConversation)
		p.notifier.NotifyNewConversation(ctx, conv, line.Areas)
	}

	notice := notify.MessageNotice{Conversation: conv, Message: record, LineAreas: line.Areas}
	switch {
	case isNew:
		p.metrics.ObserveInbound(whatsapp.FieldMessages, "stored")
		p.metrics.ObserveNotification(events.TypeNewMessage)
		p.notifier.NotifyNewMessage(ctx, notice)
		p.markFirstReply(ctx, msg.From, record.Timestamp)
		if p.automation != nil && record.Content.Kind == chat.ContentText {
			p.automation.MaybeTrigger(conv, record.Content.Text)
		}
	case summaryApplied:
		// Redelivered webhook for a message the summary had not absorbed
		// yet; dashboards need the push even though storage was a no-op.
		p.metrics.ObserveInbound(whatsapp.FieldMessages, "redelivered")
		notice.Redelivery = true
		p.notifier.NotifyNewMessage(ctx, notice)
	default:
		// Full duplicate: return silently so provider retries do not spam
		// the logs. The counter is the only trace.
		p.metrics.ObserveInbound(whatsapp.FieldMessages, "duplicate")
	}
}

func (p *Processor) handleStatus(ctx context.Context, value whatsapp.ChangeValue, st whatsapp.Status) {
	businessPhoneID := value.Metadata.PhoneNumberID
	failure := failureReason(st)

	res, applied, err := p.store.ApplyStatus(ctx, st.ID, businessPhoneID, st.Status, failure)
	if err != nil {
		p.metrics.ObserveInbound("statuses", "error")
		p.logger.Error("failed to apply status", "error", err, "provider_message_id", st.ID, "status", st.Status)
		return
	}
	if res == nil {
		// Unknown message or a replayed transition; nothing to do.
		p.metrics.ObserveInbound("statuses", "duplicate")
		return
	}
	if !applied {
		p.metrics.ObserveInbound("statuses", "duplicate")
		return
	}
	p.metrics.ObserveInbound("statuses", "applied")

	occurredAt := parseTimestamp(st.Timestamp)
	evt := chat.StatusEvent{MessageID: res.MessageID, Status: st.Status, OccurredAt: occurredAt}
	if len(st.Errors) > 0 {
		evt.ErrorCode = st.Errors[0].Code
		evt.ErrorDetail = st.Errors[0].ErrorData.Details
		if evt.ErrorDetail == "" {
			evt.ErrorDetail = st.Errors[0].Message
		}
	}
	if err := p.store.AppendStatusEvent(ctx, evt); err != nil {
		p.logger.Error("failed to append status event", "error", err, "message_id", res.MessageID)
	}
	if err := p.store.PropagateLastMessageStatus(ctx, res.ConversationID, st.ID, st.Status); err != nil {
		p.logger.Error("failed to propagate status to conversation", "error", err, "conversation_id", res.ConversationID)
	}

	if st.Status == chat.StatusFailed && len(st.Errors) > 0 {
		p.handleDeliveryFailure(ctx, res, st.Errors[0])
	}

	conv, err := p.store.GetConversation(ctx, res.ConversationID)
	if err != nil {
		p.logger.Error("failed to load conversation for status push", "error", err, "conversation_id", res.ConversationID)
		return
	}
	line := p.lineFor(ctx, businessPhoneID)
	p.metrics.ObserveNotification(events.TypeMessageStatusUpdate)
	p.notifier.NotifyStatus(ctx, conv, line.Areas, events.StatusPayload{
		ConversationID:    res.ConversationID,
		ProviderMessageID: st.ID,
		Status:            st.Status,
		FailureReason:     failure,
		RecipientPhone:    res.RecipientPhone,
		Timestamp:         occurredAt,
	})
}

// handleDeliveryFailure maps the provider error code onto lead reachability.
func (p *Processor) handleDeliveryFailure(ctx context.Context, res *chat.StatusResult, provErr whatsapp.StatusError) {
	action := whatsapp.MapErrorCode(provErr.Code)

	attrs := []any{
		"error_code", provErr.Code,
		"reason", action.BlockReason,
		"recipient", res.RecipientPhone,
		"conversation_id", res.ConversationID,
	}
	switch action.Severity {
	case whatsapp.SeverityCritical:
		p.logger.Error("message delivery failed", attrs...)
	case whatsapp.SeverityWarning:
		p.logger.Warn("message delivery failed", attrs...)
	default:
		p.logger.Info("message delivery failed", attrs...)
	}

	if !action.ShouldBlock || p.leads == nil {
		return
	}
	lead, err := p.leads.FindByPhoneSuffix(ctx, res.RecipientPhone, 9, 8, 7)
	if err != nil {
		if !errors.Is(err, leads.ErrLeadNotFound) {
			p.logger.Error("lead lookup for block failed", "error", err, "recipient", res.RecipientPhone)
		}
		return
	}
	blocked, err := p.leads.Block(ctx, lead.ID, action.BlockReason, provErr.Code)
	if err != nil {
		p.logger.Error("failed to block lead", "error", err, "lead_id", lead.ID)
		return
	}
	if blocked {
		p.logger.Warn("blocked lead for whatsapp delivery", "lead_id", lead.ID, "reason", action.BlockReason)
	}
}

// handleEcho records an outbound message sent from the business phone's own
// app so dashboards mirror the full thread.
func (p *Processor) handleEcho(ctx context.Context, value whatsapp.ChangeValue, msg whatsapp.Message) {
	businessPhoneID := value.Metadata.PhoneNumberID
	participant := msg.To
	if participant == "" {
		p.metrics.ObserveInbound(whatsapp.FieldMessageEchoes, "ignored")
		return
	}

	conv, _, err := p.store.ResolveConversation(ctx, participant, businessPhoneID, "", chat.SourceMeta)
	if err != nil {
		p.metrics.ObserveInbound(whatsapp.FieldMessageEchoes, "error")
		p.logger.Error("failed to resolve conversation for echo", "error", err, "to", participant)
		return
	}
	if conv.Source == chat.SourceInternal {
		return
	}

	normalized := chat.Normalize(msg)
	record := &chat.Message{
		ConversationID:    conv.ID,
		ProviderMessageID: msg.ID,
		BusinessPhoneID:   businessPhoneID,
		From:              businessPhoneID,
		To:                participant,
		Type:              msg.Type,
		Content:           normalized.Content,
		MediaID:           normalized.MediaID,
		MimeType:          normalized.MimeType,
		Filename:          normalized.Filename,
		Direction:         chat.DirectionOutgoing,
		Status:            chat.StatusSent,
		Snapshot: chat.ConversationSnapshot{
			ParticipantName:  conv.ParticipantName,
			ParticipantPhone: conv.ParticipantPhone,
		},
		Timestamp: parseTimestamp(msg.Timestamp),
	}

	isNew, err := p.store.UpsertMessage(ctx, record)
	if err != nil {
		p.metrics.ObserveInbound(whatsapp.FieldMessageEchoes, "error")
		p.logger.Error("failed to upsert echo", "error", err, "provider_message_id", msg.ID)
		return
	}
	if _, err := p.store.AdvanceSummary(ctx, conv.ID, chat.SummaryUpdate{
		ProviderMessageID: msg.ID,
		Content:           chat.TruncateSummary(chat.DisplayText(record.Content, record.Type)),
		Timestamp:         record.Timestamp,
		Direction:         chat.DirectionOutgoing,
	}); err != nil {
		p.logger.Error("failed to advance conversation summary", "error", err, "conversation_id", conv.ID)
	}
	if !isNew {
		p.metrics.ObserveInbound(whatsapp.FieldMessageEchoes, "duplicate")
		return
	}
	p.metrics.ObserveInbound(whatsapp.FieldMessageEchoes, "stored")
	p.notifier.Announce(events.TypeMessageEcho, "echo:"+msg.ID, events.NewMessagePayload{
		ConversationID:    conv.ID,
		ProviderMessageID: msg.ID,
		BusinessPhoneID:   businessPhoneID,
		ParticipantPhone:  conv.ParticipantPhone,
		ParticipantName:   conv.ParticipantName,
		Direction:         chat.DirectionOutgoing,
		MessageType:       record.Type,
		Preview:           chat.DisplayText(record.Content, record.Type),
		Timestamp:         record.Timestamp,
	})
}

func (p *Processor) handleCall(ctx context.Context, value whatsapp.ChangeValue, call whatsapp.CallEvent) {
	p.metrics.ObserveInbound(whatsapp.FieldCalls, "ok")

	eventType := events.TypeCallStatusUpdate
	switch call.Event {
	case "missed":
		eventType = events.TypeCallMissed
	case "connect", "ringing", "incoming":
		eventType = events.TypeIncomingCall
	}
	p.notifier.Announce(eventType, "call:"+call.ID+":"+call.Event, events.CallPayload{
		CallID:          call.ID,
		BusinessPhoneID: value.Metadata.PhoneNumberID,
		FromPhone:       call.From,
		CallEvent:       call.Event,
		CallStatus:      call.Status,
		Timestamp:       parseTimestamp(call.Timestamp),
	})
}

// markFirstReply stamps the matching lead's first inbound reply, if any.
func (p *Processor) markFirstReply(ctx context.Context, fromPhone string, at time.Time) {
	if p.leads == nil {
		return
	}
	lead, err := p.leads.FindByPhoneSuffix(ctx, fromPhone, 10, 9, 8, 7)
	if err != nil {
		if !errors.Is(err, leads.ErrLeadNotFound) {
			p.logger.Error("lead lookup for first reply failed", "error", err, "from", fromPhone)
		}
		return
	}
	if lead.FirstReplyAt != nil {
		return
	}
	if err := p.leads.MarkFirstReply(ctx, lead.ID, at); err != nil {
		p.logger.Error("failed to mark first reply", "error", err, "lead_id", lead.ID)
	}
}

// lineFor loads phone-line configuration, degrading to an unconfigured line.
func (p *Processor) lineFor(ctx context.Context, businessPhoneID string) *staff.PhoneLine {
	if p.lines == nil {
		return &staff.PhoneLine{BusinessPhoneID: businessPhoneID}
	}
	line, err := p.lines.GetPhoneLine(ctx, businessPhoneID)
	if err != nil {
		if !errors.Is(err, staff.ErrPhoneLineNotFound) {
			p.logger.Error("phone line lookup failed", "error", err, "line", businessPhoneID)
		}
		return &staff.PhoneLine{BusinessPhoneID: businessPhoneID}
	}
	return line
}

func contactName(contacts []whatsapp.Contact, waID string) string {
	for _, c := range contacts {
		if c.WaID == waID && c.Profile.Name != "" {
			return c.Profile.Name
		}
	}
	if len(contacts) > 0 {
		return contacts[0].Profile.Name
	}
	return ""
}

func failureReason(st whatsapp.Status) string {
	if st.Status != chat.StatusFailed || len(st.Errors) == 0 {
		return ""
	}
	e := st.Errors[0]
	if e.ErrorData.Details != "" {
		return e.ErrorData.Details
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Title
}

// parseTimestamp decodes Meta's unix-seconds string; a missing or malformed
// value falls back to the ingestion time.
func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Now().UTC()
	}
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
