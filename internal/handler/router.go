package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/bcrypt"

	"github.com/xcalificator/grader/internal/grading"
	"github.com/xcalificator/grader/internal/i18n"
)

// RouterConfig configures the HTTP surface around the API routes.
type RouterConfig struct {
	Lang         string
	CORSOrigins  []string
	APITokenHash string // bcrypt hash of the bearer token; empty disables the check
	UploadDir    string // served at /uploads/ when set
	Gatherer     prometheus.Gatherer
	Health       func(context.Context) error
	Timeout      time.Duration
}

// NewRouter builds the service router: health and metrics endpoints,
// uploaded files and the /api routes of h.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Accept-Language"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r.Context()); err != nil {
				writeMessage(w, http.StatusServiceUnavailable, err.Error())
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}
	if cfg.UploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))
	}

	r.Route("/api", func(api chi.Router) {
		if cfg.Timeout > 0 {
			api.Use(middleware.Timeout(cfg.Timeout))
		}
		if cfg.APITokenHash != "" {
			api.Use(requireToken(cfg.APITokenHash))
		}
		api.Use(i18n.Middleware(cfg.Lang))
		api.Use(localizedPhrases)
		h.Routes(api)
	})
	return r
}

// requireToken checks the bearer token against a bcrypt hash.
func requireToken(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeMessage(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) != nil {
				writeMessage(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// localizedPhrases makes grading feedback follow the request's language.
func localizedPhrases(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := grading.ContextWithPhrases(r.Context(), i18n.PhrasesFor(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
