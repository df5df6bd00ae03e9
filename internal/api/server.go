// Package api provides the HTTP API the messaging transport calls: voice
// requests, invitations, access management, the audit ledger, health,
// metrics and a progress stream.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/egcoder/telegram-ai-bot/internal/core"
	"github.com/egcoder/telegram-ai-bot/internal/ledger"
	"github.com/egcoder/telegram-ai-bot/internal/logging"
	"github.com/egcoder/telegram-ai-bot/internal/metrics"
	"github.com/egcoder/telegram-ai-bot/internal/pipeline"
	"github.com/egcoder/telegram-ai-bot/internal/storage"
)

// Request headers carrying the caller identities.
const (
	HeaderUserID  = "X-User-ID"
	HeaderActorID = "X-Actor-ID"
)

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server

	pipeline *pipeline.Orchestrator
	ledger   *ledger.Store
	db       *storage.DB
	metrics  *metrics.Metrics
	progress *ProgressHub

	apiToken       string
	allowedOrigins []string
	maxAudio       int64
	timeout        time.Duration
	log            *logging.Logger
}

// Config for the server
type Config struct {
	Host           string
	Port           int
	APIToken       string   // empty disables bearer auth
	AllowedOrigins []string // CORS; empty allows any origin
	MaxAudioBytes  int64
	RequestTimeout time.Duration // per /api/v1 request; zero uses 2m

	Pipeline *pipeline.Orchestrator
	Ledger   *ledger.Store    // optional
	DB       *storage.DB      // optional, pinged by /healthz
	Metrics  *metrics.Metrics // optional
	Progress *ProgressHub     // optional
}

// New creates a new API server
func New(cfg Config) *Server {
	s := &Server{
		pipeline:       cfg.Pipeline,
		ledger:         cfg.Ledger,
		db:             cfg.DB,
		metrics:        cfg.Metrics,
		progress:       cfg.Progress,
		apiToken:       cfg.APIToken,
		allowedOrigins: cfg.AllowedOrigins,
		maxAudio:       cfg.MaxAudioBytes,
		timeout:        cfg.RequestTimeout,
		log:            logging.WithField("component", "api"),
	}
	if s.maxAudio <= 0 {
		s.maxAudio = pipeline.DefaultMaxAudioBytes
	}
	if s.timeout <= 0 {
		s.timeout = 2 * time.Minute
	}

	s.setupRouter()

	s.httpServer = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRouter configures all routes
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	origins := s.allowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", HeaderUserID, HeaderActorID},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireToken)
		r.Use(middleware.Timeout(s.timeout))

		r.Post("/voice", s.handleVoice)

		r.Post("/invitations", s.handleIssueInvitation)
		r.Get("/invitations", s.handleListInvitations)
		r.Post("/invitations/redeem", s.handleRedeemInvitation)

		r.Get("/users", s.handleListUsers)
		r.Get("/users/{id}", s.handleGetUser)
		r.Put("/users/{id}", s.handleGrantUser)
		r.Delete("/users/{id}", s.handleRevokeUser)

		if s.ledger != nil {
			NewLedgerAPI(s.ledger).RegisterRoutes(r)
		}
	})

	if s.progress != nil {
		r.With(s.requireToken).Get("/ws", s.progress.ServeHTTP)
	}

	s.router = r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.Info("API server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.progress != nil {
		s.progress.Close()
	}
	return s.httpServer.Shutdown(ctx)
}

// --- Middleware ---

// requireToken checks the bearer token when one is configured.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(s.apiToken)) != 1 {
			s.respondJSON(w, http.StatusUnauthorized, ErrorResponse{
				Error:   core.CodeUnauthorized,
				Message: "missing or invalid API token",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request handled")
	})
}

// --- Response helpers ---

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error   core.Code `json:"error"`
	Message string    `json:"message"`
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Warn("encode response: %v", err)
	}
}

// respondError maps a coded error to its status and user-facing message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := core.CodeOf(err)
	status := StatusFor(code)
	if status >= http.StatusInternalServerError {
		s.log.WithField("path", r.URL.Path).Error("request failed: %v", err)
	}
	s.respondJSON(w, status, ErrorResponse{
		Error:   code,
		Message: core.UserMessage(err, requestLanguage(r)),
	})
}

// StatusFor returns the HTTP status for an error code.
func StatusFor(code core.Code) int {
	switch code {
	case core.CodeUnauthorized, core.CodePermissionDenied:
		return http.StatusForbidden
	case core.CodeInvalidToken:
		return http.StatusNotFound
	case core.CodeAlreadyAuthorized:
		return http.StatusConflict
	case core.CodeUpstreamUnavailable:
		return http.StatusBadGateway
	case core.CodeAnalysisParse:
		return http.StatusUnprocessableEntity
	case core.CodeInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// requestLanguage picks the message language from ?lang, then
// Accept-Language, defaulting to English.
func requestLanguage(r *http.Request) core.Language {
	candidates := []string{r.URL.Query().Get("lang")}
	for _, part := range strings.Split(r.Header.Get("Accept-Language"), ",") {
		tag, _, _ := strings.Cut(part, ";")
		candidates = append(candidates, tag)
	}
	for _, c := range candidates {
		if lang, ok := core.ParseLanguage(c); ok && lang != core.LangAuto {
			return lang
		}
	}
	return core.LangEnglish
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	status := http.StatusOK
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			resp["status"] = "degraded"
			resp["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
	}
	if s.progress != nil {
		resp["progress_clients"] = s.progress.Clients()
	}
	s.respondJSON(w, status, resp)
}

func identityParam(r *http.Request, header string) core.Identity {
	return core.Identity(strings.TrimSpace(r.Header.Get(header)))
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return core.Wrap(core.CodeInvalidInput, fmt.Sprintf("decode %T", v), err)
	}
	return nil
}
