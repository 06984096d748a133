package webhook

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rentdesk/rentdesk-platform/internal/chat"
	"github.com/rentdesk/rentdesk-platform/internal/leads"
	"github.com/rentdesk/rentdesk-platform/pkg/logging"
)

// TemplateGuard answers whether a template was already sent on a thread;
// satisfied by *chat.Store.
type TemplateGuard interface {
	HasTemplateMessage(ctx context.Context, conversationID uuid.UUID, templateName string) (bool, error)
}

// TemplateSender sends a template on a conversation; satisfied by
// *chat.Sender.
type TemplateSender interface {
	SendTemplate(ctx context.Context, conv *chat.Conversation, templateName, recipientName string) (*chat.Message, error)
}

// Automation answers an expressed-interest reply with the follow-up template.
// The send runs detached from the webhook request so a slow provider call
// never delays the 200 response.
type Automation struct {
	guard    TemplateGuard
	sender   TemplateSender
	leads    leads.Repository
	greeting string
	followup string
	timeout  time.Duration
	logger   *logging.Logger

	wg sync.WaitGroup
}

func NewAutomation(guard TemplateGuard, sender TemplateSender, leadRepo leads.Repository, greetingTemplate, followupTemplate string, logger *logging.Logger) *Automation {
	if guard == nil || sender == nil {
		panic("webhook: automation guard and sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Automation{
		guard:    guard,
		sender:   sender,
		leads:    leadRepo,
		greeting: greetingTemplate,
		followup: followupTemplate,
		timeout:  30 * time.Second,
		logger:   logger,
	}
}

// interestPhrases are matched against the trimmed, lowercased message body.
var interestPhrases = map[string]struct{}{
	"yes i'm interested":  {},
	"yes im interested":   {},
	"yes, i'm interested": {},
	"yes, im interested":  {},
	"yes i am interested": {},
}

// MatchesInterest reports whether the text reads as an interest confirmation.
func MatchesInterest(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return false
	}
	if _, ok := interestPhrases[t]; ok {
		return true
	}
	return strings.Contains(t, "yes") && strings.Contains(t, "interested")
}

// MaybeTrigger fires the follow-up send when the text matches. It returns
// immediately; the send continues in the background.
func (a *Automation) MaybeTrigger(conv *chat.Conversation, text string) {
	if conv == nil || !MatchesInterest(text) {
		return
	}
	snapshot := *conv
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("automation panicked", "panic", r, "conversation_id", snapshot.ID)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		a.run(ctx, &snapshot)
	}()
}

// Wait blocks until in-flight automation sends finish. Used on shutdown and
// in tests.
func (a *Automation) Wait() {
	a.wg.Wait()
}

func (a *Automation) run(ctx context.Context, conv *chat.Conversation) {
	// The follow-up goes out at most once, and only on threads the
	// greeting template opened.
	followupSent, err := a.guard.HasTemplateMessage(ctx, conv.ID, a.followup)
	if err != nil {
		a.logger.Error("follow-up guard check failed", "error", err, "conversation_id", conv.ID)
		return
	}
	if followupSent {
		return
	}
	greetingSent, err := a.guard.HasTemplateMessage(ctx, conv.ID, a.greeting)
	if err != nil {
		a.logger.Error("greeting guard check failed", "error", err, "conversation_id", conv.ID)
		return
	}
	if !greetingSent {
		a.logger.Debug("interest reply outside greeting flow", "conversation_id", conv.ID)
		return
	}

	name := a.recipientName(ctx, conv)
	if _, err := a.sender.SendTemplate(ctx, conv, a.followup, name); err != nil {
		a.logger.Error("automated follow-up send failed", "error", err, "conversation_id", conv.ID)
		return
	}
	a.logger.Info("sent automated follow-up", "conversation_id", conv.ID, "template", a.followup)
}

func (a *Automation) recipientName(ctx context.Context, conv *chat.Conversation) string {
	if a.leads != nil {
		lead, err := a.leads.FindByPhoneSuffix(ctx, conv.ParticipantPhone, 10, 9, 8, 7)
		if err == nil && lead.FirstName() != "" {
			return lead.FirstName()
		}
		if err != nil && !errors.Is(err, leads.ErrLeadNotFound) {
			a.logger.Warn("lead lookup for personalization failed", "error", err, "conversation_id", conv.ID)
		}
	}
	if name := strings.TrimSpace(conv.ParticipantName); name != "" {
		if idx := strings.IndexByte(name, ' '); idx > 0 {
			return name[:idx]
		}
		return name
	}
	return ""
}
