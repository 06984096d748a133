package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rentdesk/rentdesk-platform/internal/chat"
	"github.com/rentdesk/rentdesk-platform/internal/events"
	httpmiddleware "github.com/rentdesk/rentdesk-platform/internal/http/middleware"
	"github.com/rentdesk/rentdesk-platform/internal/leads"
	"github.com/rentdesk/rentdesk-platform/internal/webhook"
	"github.com/rentdesk/rentdesk-platform/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	WebhookHandler     *webhook.Handler
	LeadsHandler       *leads.Handler
	ChatHandler        *chat.Handler
	Hub                *events.Hub
	MetricsHandler     http.Handler
	StaffAuthSecret    string
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.WebhookHandler != nil {
			public.Route("/webhooks/whatsapp", func(r chi.Router) {
				r.Get("/", cfg.WebhookHandler.HandleVerification)
				r.Post("/", cfg.WebhookHandler.HandleEvent)
			})
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Realtime socket: authenticated via token query parameter.
	if cfg.Hub != nil && cfg.StaffAuthSecret != "" {
		r.With(httpmiddleware.StaffJWT(cfg.StaffAuthSecret)).
			Get("/ws", func(w http.ResponseWriter, req *http.Request) {
				staffID, ok := httpmiddleware.StaffIDFromContext(req.Context())
				if !ok {
					http.Error(w, "unauthenticated", http.StatusUnauthorized)
					return
				}
				cfg.Hub.ServeWS(w, req, staffID)
			})
	}

	// Admin routes (protected by staff JWT)
	if cfg.StaffAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.StaffJWT(cfg.StaffAuthSecret))
			admin.Use(httpmiddleware.RateLimit(20, 40))
			if cfg.LeadsHandler != nil {
				admin.Post("/leads", cfg.LeadsHandler.CreateLead)
				admin.Get("/leads/{leadID}", cfg.LeadsHandler.GetLead)
			}
			if cfg.ChatHandler != nil {
				admin.Route("/conversations/{conversationID}", func(r chi.Router) {
					r.Get("/", cfg.ChatHandler.GetConversation)
					r.Post("/read", cfg.ChatHandler.MarkRead)
					r.Post("/archive", cfg.ChatHandler.SetArchived)
				})
			}
		})
	}

	return r
}
