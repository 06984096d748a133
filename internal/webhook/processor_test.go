package webhook

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rentdesk/rentdesk-platform/internal/chat"
	"github.com/rentdesk/rentdesk-platform/internal/events"
	"github.com/rentdesk/rentdesk-platform/internal/leads"
	"github.com/rentdesk/rentdesk-platform/internal/media"
	"github.com/rentdesk/rentdesk-platform/internal/notify"
	"github.com/rentdesk/rentdesk-platform/internal/staff"
	"github.com/rentdesk/rentdesk-platform/internal/whatsapp"
	"github.com/rentdesk/rentdesk-platform/pkg/logging"
)

type fakeStore struct {
	mu sync.Mutex

	conversations map[string]*chat.Conversation
	messages      map[string]*chat.Message
	lastSummary   *chat.SummaryUpdate
	summaryResult bool
	templatesSent map[string]bool

	statusResult  *chat.StatusResult
	statusApplied bool
	statusEvents  []chat.StatusEvent
	propagated    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		conversations: make(map[string]*chat.Conversation),
		messages:      make(map[string]*chat.Message),
		summaryResult: true,
		templatesSent: make(map[string]bool),
	}
}

func (f *fakeStore) ResolveConversation(_ context.Context, participantPhone, businessPhoneID, participantName, source string) (*chat.Conversation, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := participantPhone + ":" + businessPhoneID
	if conv, ok := f.conversations[key]; ok {
		return conv, false, nil
	}
	conv := &chat.Conversation{
		ID:               uuid.New(),
		ParticipantPhone: participantPhone,
		BusinessPhoneID:  businessPhoneID,
		ParticipantName:  participantName,
		Source:           source,
	}
	f.conversations[key] = conv
	return conv, true, nil
}

func (f *fakeStore) GetConversation(_ context.Context, id uuid.UUID) (*chat.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conv := range f.conversations {
		if conv.ID == id {
			return conv, nil
		}
	}
	return &chat.Conversation{ID: id}, nil
}

func (f *fakeStore) UpsertMessage(_ context.Context, msg *chat.Message) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := msg.ProviderMessageID + ":" + msg.BusinessPhoneID
	if _, ok := f.messages[key]; ok {
		return false, nil
	}
	f.messages[key] = msg
	return true, nil
}

func (f *fakeStore) AdvanceSummary(_ context.Context, _ uuid.UUID, upd chat.SummaryUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSummary = &upd
	return f.summaryResult, nil
}

func (f *fakeStore) ApplyStatus(_ context.Context, _, _, _, _ string) (*chat.StatusResult, bool, error) {
	return f.statusResult, f.statusApplied, nil
}

func (f *fakeStore) AppendStatusEvent(_ context.Context, evt chat.StatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusEvents = append(f.statusEvents, evt)
	return nil
}

func (f *fakeStore) PropagateLastMessageStatus(_ context.Context, _ uuid.UUID, providerMessageID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.propagated = append(f.propagated, providerMessageID+":"+status)
	return nil
}

func (f *fakeStore) HasTemplateMessage(_ context.Context, _ uuid.UUID, templateName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.templatesSent[templateName], nil
}

type fakeNotifier struct {
	mu            sync.Mutex
	messages      []notify.MessageNotice
	conversations []*chat.Conversation
	statuses      []events.StatusPayload
	announced     []string
}

func (f *fakeNotifier) NotifyNewMessage(_ context.Context, n notify.MessageNotice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, n)
}

func (f *fakeNotifier) NotifyNewConversation(_ context.Context, conv *chat.Conversation, _ []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations = append(f.conversations, conv)
}

func (f *fakeNotifier) NotifyStatus(_ context.Context, _ *chat.Conversation, _ []string, payload events.StatusPayload) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, payload)
}

func (f *fakeNotifier) Announce(eventType, eventID string, _ any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.announced = append(f.announced, eventType+"|"+eventID)
}

type fakeLines struct{ line *staff.PhoneLine }

func (f *fakeLines) GetPhoneLine(context.Context, string) (*staff.PhoneLine, error) {
	if f.line == nil {
		return nil, staff.ErrPhoneLineNotFound
	}
	return f.line, nil
}

type fakeMedia struct{ resolved *media.Resolved }

func (f *fakeMedia) Resolve(context.Context, string) *media.Resolved { return f.resolved }

type fakeLeadRepo struct {
	mu      sync.Mutex
	lead    *leads.Lead
	blocked []string
	replied []uuid.UUID
}

func (f *fakeLeadRepo) Create(context.Context, *leads.CreateLeadRequest) (*leads.Lead, error) {
	return nil, nil
}

func (f *fakeLeadRepo) GetByID(context.Context, uuid.UUID) (*leads.Lead, error) {
	return f.lead, nil
}

func (f *fakeLeadRepo) FindByPhoneSuffix(context.Context, string, ...int) (*leads.Lead, error) {
	if f.lead == nil {
		return nil, leads.ErrLeadNotFound
	}
	return f.lead, nil
}

func (f *fakeLeadRepo) MarkFirstReply(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replied = append(f.replied, id)
	return nil
}

func (f *fakeLeadRepo) Block(_ context.Context, id uuid.UUID, reason string, _ int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked = append(f.blocked, id.String()+":"+reason)
	return true, nil
}

func newTestProcessor(store *fakeStore, notifier *fakeNotifier, repo *fakeLeadRepo) *Processor {
	return NewProcessor(ProcessorConfig{
		Store:    store,
		Lines:    &fakeLines{line: &staff.PhoneLine{BusinessPhoneID: "5550001", Areas: []string{"bandra"}}},
		Media:    &fakeMedia{},
		Notifier: notifier,
		Leads:    repo,
	})
}

func textChange(msgID, body string) whatsapp.Change {
	return whatsapp.Change{
		Field: whatsapp.FieldMessages,
		Value: whatsapp.ChangeValue{
			Metadata: whatsapp.Metadata{PhoneNumberID: "5550001"},
			Contacts: []whatsapp.Contact{func() whatsapp.Contact {
				var c whatsapp.Contact
				c.WaID = "919876543210"
				c.Profile.Name = "Maria"
				return c
			}()},
			Messages: []whatsapp.Message{{
				ID:        msgID,
				From:      "919876543210",
				Timestamp: "1700000000",
				Type:      "text",
				Text:      &whatsapp.TextPayload{Body: body},
			}},
		},
	}
}

func TestProcessMessageStoresAndNotifies(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	repo := &fakeLeadRepo{lead: &leads.Lead{ID: uuid.New(), Name: "Maria Fernandes", Phone: "919876543210"}}
	p := newTestProcessor(store, notifier, repo)

	p.ProcessChange(context.Background(), "entry-1", textChange("wamid.1", "Hello"))

	if len(store.messages) != 1 {
		t.Fatalf("expected one stored message, got %d", len(store.messages))
	}
	if len(notifier.conversations) != 1 {
		t.Fatal("new conversation must be announced")
	}
	if len(notifier.messages) != 1 || notifier.messages[0].Redelivery {
		t.Fatalf("expected one fresh notification: %+v", notifier.messages)
	}
	if notifier.messages[0].Message.Timestamp != time.Unix(1700000000, 0).UTC() {
		t.Fatalf("provider timestamp not honored: %v", notifier.messages[0].Message.Timestamp)
	}
	if len(repo.replied) != 1 {
		t.Fatal("first reply must be marked on the matching lead")
	}
	if store.lastSummary == nil || store.lastSummary.Content != "Hello" {
		t.Fatalf("summary not advanced: %+v", store.lastSummary)
	}
}

func TestProcessMessageDuplicateIsSilent(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	var logs bytes.Buffer
	logger := &logging.Logger{Logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	p := NewProcessor(ProcessorConfig{
		Store:    store,
		Lines:    &fakeLines{line: &staff.PhoneLine{BusinessPhoneID: "5550001", Areas: []string{"bandra"}}},
		Media:    &fakeMedia{},
		Notifier: notifier,
		Leads:    &fakeLeadRepo{},
		Logger:   logger,
	})

	p.ProcessChange(context.Background(), "entry-1", textChange("wamid.1", "Hello"))
	store.summaryResult = false // summary already at this message
	logs.Reset()
	p.ProcessChange(context.Background(), "entry-1", textChange("wamid.1", "Hello"))

	if len(store.messages) != 1 {
		t.Fatalf("duplicate must not store again, got %d messages", len(store.messages))
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("duplicate with settled summary must not notify, got %d", len(notifier.messages))
	}
	if logs.Len() != 0 {
		t.Fatalf("duplicate path must not log, got %q", logs.String())
	}
}

func TestProcessMessageRedeliveryNotifiesAgain(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	p := newTestProcessor(store, notifier, &fakeLeadRepo{})

	p.ProcessChange(context.Background(), "entry-1", textChange("wamid.1", "Hello"))
	// Summary still moves: the stored summary predates this message.
	p.ProcessChange(context.Background(), "entry-1", textChange("wamid.1", "Hello"))

	if len(notifier.messages) != 2 {
		t.Fatalf("expected redelivery push, got %d", len(notifier.messages))
	}
	if !notifier.messages[1].Redelivery {
		t.Fatal("second push must be marked as redelivery")
	}
}

func TestProcessMessageSkipsInternalConversations(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	p := newTestProcessor(store, notifier, &fakeLeadRepo{})

	store.conversations["919876543210:5550001"] = &chat.Conversation{
		ID:     uuid.New(),
		Source: chat.SourceInternal,
	}

	p.ProcessChange(context.Background(), "entry-1", textChange("wamid.1", "Hello"))

	if len(store.messages) != 0 || len(notifier.messages) != 0 {
		t.Fatal("internally managed conversations must be left untouched")
	}
}

func statusChange(msgID, status string, errs ...whatsapp.StatusError) whatsapp.Change {
	return whatsapp.Change{
		Field: whatsapp.FieldMessages,
		Value: whatsapp.ChangeValue{
			Metadata: whatsapp.Metadata{PhoneNumberID: "5550001"},
			Statuses: []whatsapp.Status{{
				ID:          msgID,
				Status:      status,
				Timestamp:   "1700000100",
				RecipientID: "919876543210",
				Errors:      errs,
			}},
		},
	}
}

func TestProcessStatusAppliedEmitsEverything(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	p := newTestProcessor(store, notifier, &fakeLeadRepo{})

	convID := uuid.New()
	store.statusResult = &chat.StatusResult{
		MessageID:      uuid.New(),
		ConversationID: convID,
		Direction:      chat.DirectionOutgoing,
		RecipientPhone: "919876543210",
	}
	store.statusApplied = true

	p.ProcessChange(context.Background(), "entry-1", statusChange("wamid.9", chat.StatusDelivered))

	if len(store.statusEvents) != 1 || store.statusEvents[0].Status != chat.StatusDelivered {
		t.Fatalf("status event log: %+v", store.statusEvents)
	}
	if len(store.propagated) != 1 || store.propagated[0] != "wamid.9:delivered" {
		t.Fatalf("propagation: %+v", store.propagated)
	}
	if len(notifier.statuses) != 1 || notifier.statuses[0].ConversationID != convID {
		t.Fatalf("status push: %+v", notifier.statuses)
	}
}

func TestProcessStatusDuplicateEmitsNothing(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	p := newTestProcessor(store, notifier, &fakeLeadRepo{})

	// ApplyStatus reports a replayed transition.
	store.statusResult = nil
	store.statusApplied = false

	p.ProcessChange(context.Background(), "entry-1", statusChange("wamid.9", chat.StatusDelivered))

	if len(store.statusEvents) != 0 || len(store.propagated) != 0 || len(notifier.statuses) != 0 {
		t.Fatal("replayed status must be fully silent")
	}
}

func TestProcessFailedStatusBlocksLead(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	repo := &fakeLeadRepo{lead: &leads.Lead{ID: uuid.New(), Phone: "919876543210"}}
	p := newTestProcessor(store, notifier, repo)

	store.statusResult = &chat.StatusResult{
		MessageID:      uuid.New(),
		ConversationID: uuid.New(),
		RecipientPhone: "919876543210",
	}
	store.statusApplied = true

	p.ProcessChange(context.Background(), "entry-1",
		statusChange("wamid.9", chat.StatusFailed, whatsapp.StatusError{Code: 131049}))

	if len(repo.blocked) != 1 {
		t.Fatalf("expected lead block, got %v", repo.blocked)
	}
	if repo.blocked[0] != repo.lead.ID.String()+":ecosystem_protection" {
		t.Fatalf("wrong block reason: %s", repo.blocked[0])
	}
}

func TestProcessFailedStatusRateLimitedDoesNotBlock(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	repo := &fakeLeadRepo{lead: &leads.Lead{ID: uuid.New(), Phone: "919876543210"}}
	p := newTestProcessor(store, notifier, repo)

	store.statusResult = &chat.StatusResult{MessageID: uuid.New(), ConversationID: uuid.New(), RecipientPhone: "919876543210"}
	store.statusApplied = true

	p.ProcessChange(context.Background(), "entry-1",
		statusChange("wamid.9", chat.StatusFailed, whatsapp.StatusError{Code: 131026}))

	if len(repo.blocked) != 0 {
		t.Fatalf("rate limiting must not block the lead: %v", repo.blocked)
	}
}

func TestProcessCallAnnounces(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	p := newTestProcessor(store, notifier, &fakeLeadRepo{})

	p.ProcessChange(context.Background(), "entry-1", whatsapp.Change{
		Field: whatsapp.FieldCalls,
		Value: whatsapp.ChangeValue{
			Metadata: whatsapp.Metadata{PhoneNumberID: "5550001"},
			Calls: []whatsapp.CallEvent{{
				ID:        "call-1",
				From:      "919876543210",
				Event:     "missed",
				Timestamp: "1700000000",
			}},
		},
	})

	if len(notifier.announced) != 1 || notifier.announced[0] != events.TypeCallMissed+"|call:call-1:missed" {
		t.Fatalf("unexpected announcements: %v", notifier.announced)
	}
}

func TestProcessEchoStoresOutgoing(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	p := newTestProcessor(store, notifier, &fakeLeadRepo{})

	p.ProcessChange(context.Background(), "entry-1", whatsapp.Change{
		Field: whatsapp.FieldMessageEchoes,
		Value: whatsapp.ChangeValue{
			Metadata: whatsapp.Metadata{PhoneNumberID: "5550001"},
			Messages: []whatsapp.Message{{
				ID:        "wamid.echo",
				From:      "5550001",
				To:        "919876543210",
				Timestamp: "1700000000",
				Type:      "text",
				Text:      &whatsapp.TextPayload{Body: "On our way"},
			}},
		},
	})

	msg, ok := store.messages["wamid.echo:5550001"]
	if !ok {
		t.Fatal("echo must be stored")
	}
	if msg.Direction != chat.DirectionOutgoing || msg.Status != chat.StatusSent {
		t.Fatalf("echo stored wrong: %+v", msg)
	}
	if len(notifier.announced) != 1 {
		t.Fatalf("echo must be announced once, got %v", notifier.announced)
	}
}
