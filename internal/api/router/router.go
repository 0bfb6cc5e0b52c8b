package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/havana-support/internal/conversation"
	"github.com/wolfman30/havana-support/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/havana-support/internal/http/middleware"
	"github.com/wolfman30/havana-support/internal/webchat"
	"github.com/wolfman30/havana-support/pkg/logging"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	WebChat             *webchat.Handler
	AdminSessions       *handlers.AdminSessionsHandler
	FAQ                 *handlers.FAQHandler
	AdminAuthSecret     string
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string

	// ChatLimiter throttles visitor-facing chat routes per client IP (optional).
	ChatLimiter *httpmiddleware.RateLimiter

	HealthChecks map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthChecks))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.FAQ != nil {
			public.Route("/faq", func(r chi.Router) {
				r.Get("/categories", cfg.FAQ.Categories)
				r.Get("/subcategories", cfg.FAQ.Subcategories)
				r.Get("/items", cfg.FAQ.Items)
			})
		}
	})

	r.Group(func(chat chi.Router) {
		if cfg.ChatLimiter != nil {
			chat.Use(cfg.ChatLimiter.Middleware)
		}
		if cfg.ConversationHandler != nil {
			chat.Post("/api/chat", cfg.ConversationHandler.Chat)
		}
		if cfg.WebChat != nil {
			chat.Route("/chat/sessions", func(r chi.Router) {
				r.Post("/", cfg.WebChat.CreateSession)
				r.Get("/{id}/messages", cfg.WebChat.ListMessages)
				r.Post("/{id}/messages", cfg.WebChat.PostMessage)
				r.Get("/{id}/ws", cfg.WebChat.HandleWebSocket)
			})
		}
	})

	// Without a secret the dashboard is not mounted at all.
	if cfg.AdminAuthSecret != "" && cfg.AdminSessions != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Route("/sessions", func(s chi.Router) {
				s.Get("/", cfg.AdminSessions.ListAll)
				s.Get("/active", cfg.AdminSessions.ListActive)
				s.Get("/calls", cfg.AdminSessions.ListCalls)
				s.Route("/{id}", func(one chi.Router) {
					one.Get("/messages", cfg.AdminSessions.GetMessages)
					one.Post("/messages", cfg.AdminSessions.PostMessage)
					one.Post("/claim", cfg.AdminSessions.Claim)
					one.Post("/call/complete", cfg.AdminSessions.CompleteCall)
					one.Get("/ws", cfg.AdminSessions.Stream)
				})
			})
		})
	}

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		resp := map[string]any{"status": "ok"}
		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			status = http.StatusServiceUnavailable
			resp["status"] = "degraded"
			resp["checks"] = failed
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
