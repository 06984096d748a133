package chat

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/rentdesk/rentdesk-platform/internal/http/middleware"
	"github.com/rentdesk/rentdesk-platform/pkg/logging"
)

// Handler exposes the conversation read/archive surface to dashboards.
type Handler struct {
	store  *Store
	reads  *ReadStateStore
	logger *logging.Logger
}

func NewHandler(store *Store, reads *ReadStateStore, logger *logging.Logger) *Handler {
	if store == nil {
		panic("chat: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, reads: reads, logger: logger}
}

// GetConversation handles GET /admin/conversations/{conversationID}.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	conv, err := h.store.GetConversation(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to fetch conversation", "error", err, "conversation_id", id)
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(conv)
}

// MarkRead handles POST /admin/conversations/{conversationID}/read. It moves
// the caller's read marker to now, which stops notifications for everything
// at or before this instant.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	staffID, ok := middleware.StaffIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	if h.reads == nil {
		http.Error(w, "read tracking unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := h.reads.MarkRead(r.Context(), id, staffID, time.Now().UTC()); err != nil {
		h.logger.Error("failed to mark conversation read", "error", err, "conversation_id", id, "staff_id", staffID)
		http.Error(w, "failed to mark read", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetArchived handles POST /admin/conversations/{conversationID}/archive.
func (h *Handler) SetArchived(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "conversationID"))
	if err != nil {
		http.Error(w, "invalid conversation id", http.StatusBadRequest)
		return
	}
	var req struct {
		Archived bool `json:"archived"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.store.SetArchived(r.Context(), id, req.Archived); err != nil {
		h.logger.Error("failed to set archive state", "error", err, "conversation_id", id)
		http.Error(w, "failed to update conversation", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
