package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rentdesk/rentdesk-platform/internal/whatsapp"
	"github.com/rentdesk/rentdesk-platform/pkg/logging"
)

var tracer = otel.Tracer("rentdesk/webhook")

// Handler terminates the Meta webhook endpoint: GET verification and POST
// event ingestion. Once the signature checks out, the response is always
// 200 with {"success":true}; any processing problem is logged and absorbed,
// since a non-200 would only make Meta redeliver a payload that will fail
// the same way.
type Handler struct {
	verifyToken string
	appSecret   string
	processor   *Processor
	logger      *logging.Logger
}

func NewHandler(verifyToken, appSecret string, processor *Processor, logger *logging.Logger) *Handler {
	if processor == nil {
		panic("webhook: processor required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		verifyToken: verifyToken,
		appSecret:   appSecret,
		processor:   processor,
		logger:      logger,
	}
}

// HandleVerification handles the GET webhook verification challenge from Meta.
func (h *Handler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		h.logger.Info("webhook verification succeeded")
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	h.logger.Warn("webhook verification rejected", "mode", mode)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleEvent handles POST webhook deliveries.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "webhook.HandleEvent")
	defer span.End()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		h.acknowledge(w)
		return
	}

	if !whatsapp.VerifySignature(h.appSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		h.logger.Warn("webhook signature mismatch", "remote", r.RemoteAddr)
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	var event whatsapp.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		// Malformed payloads are acknowledged so Meta stops retrying them.
		h.logger.Error("failed to parse webhook payload", "error", err)
		h.acknowledge(w)
		return
	}

	span.SetAttributes(
		attribute.String("webhook.object", event.Object),
		attribute.Int("webhook.entries", len(event.Entry)),
	)

	// Respond before processing; Meta's delivery timeout is tight.
	h.acknowledge(w)

	for _, entry := range event.Entry {
		for _, change := range entry.Changes {
			h.processChange(ctx, entry.ID, change)
		}
	}
}

// processChange isolates one change: a panic while handling it must not take
// down the rest of the batch.
func (h *Handler) processChange(ctx context.Context, entryID string, change whatsapp.Change) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic while processing webhook change",
				"panic", r, "entry_id", entryID, "field", change.Field)
		}
	}()
	ctx, span := tracer.Start(ctx, "webhook.ProcessChange",
		trace.WithAttributes(attribute.String("webhook.field", change.Field)))
	defer span.End()
	h.processor.ProcessChange(ctx, entryID, change)
}

func (h *Handler) acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}
