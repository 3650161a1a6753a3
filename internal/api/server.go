// Package api serves the HTTP interface used in place of the extension's
// options page and popup: limit management, status and daily statistics.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goodtune/kfocus/internal/policy"
	"github.com/goodtune/kfocus/internal/session"
	"github.com/goodtune/kfocus/internal/storage"
	"github.com/goodtune/kfocus/internal/timeutil"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

// Evaluator decides whether a domain is over its limit.
type Evaluator interface {
	Evaluate(ctx context.Context, domain string) (policy.Status, error)
}

// Coordinator is the part of the session coordinator the API uses.
type Coordinator interface {
	Submit(ctx context.Context, ev session.Event) error
	Current() (session.Session, bool)
}

// Server exposes limits, status and statistics over HTTP.
type Server struct {
	store          storage.Store
	evaluator      Evaluator
	coordinator    Coordinator
	clock          timeutil.Clock
	allowedOrigins []string
	logger         zerolog.Logger
}

// Options configures a Server.
type Options struct {
	Store          storage.Store
	Evaluator      Evaluator
	Coordinator    Coordinator
	Clock          timeutil.Clock
	AllowedOrigins []string
}

// NewServer creates a new API server.
func NewServer(opts Options, logger zerolog.Logger) *Server {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &Server{
		store:          opts.Store,
		evaluator:      opts.Evaluator,
		coordinator:    opts.Coordinator,
		clock:          opts.Clock,
		allowedOrigins: opts.AllowedOrigins,
		logger:         logger.With().Str("component", "api").Logger(),
	}
}

// Routes registers the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(LoggingMiddleware(s.logger))
		r.Use(cors.New(cors.Options{
			AllowedOrigins: s.allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type"},
			MaxAge:         300,
		}).Handler)

		r.Get("/limits", s.handleListLimits)
		r.Put("/limits", s.handleSetLimit)
		r.Delete("/limits/{domain}", s.handleDeleteLimit)
		r.Get("/status/{domain}", s.handleStatus)
		r.Get("/stats", s.handleStats)
		r.Post("/reset", s.handleReset)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Handler returns a router with only the API mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Routes(r)
	return r
}

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error   string           `json:"error"`
	Message string           `json:"message,omitempty"`
	Code    int              `json:"code"`
	Fields  ValidationErrors `json:"fields,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		http.Error(w, `{"error":"Internal Server Error","message":"Failed to encode response"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

func writeValidationError(w http.ResponseWriter, errs ValidationErrors) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   http.StatusText(http.StatusBadRequest),
		Message: "Validation failed",
		Code:    http.StatusBadRequest,
		Fields:  errs,
	})
}
