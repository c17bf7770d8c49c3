package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/travelmate/chat/internal/chat"
	"github.com/travelmate/chat/internal/config"
	"github.com/travelmate/chat/internal/metrics"
	"github.com/travelmate/chat/internal/middleware"
	"github.com/travelmate/chat/internal/ws"
)

const (
	rateLimitPerIP   = 300
	rateLimitPerUser = 120
)

// Deps are the components the HTTP surface is wired to.
type Deps struct {
	Config   *config.Config
	Registry *chat.Registry
	Messages *chat.Messages
	Hub      *ws.Hub
	Verifier middleware.TokenVerifier
	// Ready reports storage health for /health; nil means always ready.
	Ready func(ctx context.Context) error
}

func NewRouter(d Deps) http.Handler {
	convH := NewConversationHandler(d.Registry)
	msgH := NewMessageHandler(d.Registry, d.Messages, d.Hub)
	wsH := NewWSHandler(d.Hub, d.Config.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Skip compression for websocket upgrades: the compress writer is not an http.Hijacker.
	r.Use(func(next http.Handler) http.Handler {
		compress := chimw.Compress(5)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compress.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(metrics.HTTP)
	r.Use(middleware.SecureHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   splitOrigins(d.Config.CORSAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", health(d.Ready))
	r.With(middleware.InternalOnly(d.Config.InternalSecret)).Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(d.Verifier))
		r.Use(middleware.RateLimit(rateLimitPerIP, rateLimitPerUser))

		r.Get("/conversations", convH.List)
		r.Post("/conversations/private", convH.OpenPrivate)
		r.Post("/conversations/group", convH.OpenGroup)
		r.Get("/conversations/{id}/messages", msgH.List)
		r.Post("/conversations/{id}/messages", msgH.Send)
		r.Put("/conversations/{id}/read", msgH.MarkRead)
		r.Delete("/messages/{id}", msgH.Delete)
		r.Get("/ws", wsH.ServeWS)
	})
	return r
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func health(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := ready(ctx); err != nil {
				writeError(w, http.StatusServiceUnavailable, "storage unavailable")
				return
			}
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
