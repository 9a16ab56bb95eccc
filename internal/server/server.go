// Package server exposes the agent and its tools over HTTP.
package server

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/rs/zerolog"

	"github.com/feiskyer/toolagent"
	"github.com/feiskyer/toolagent/internal/telemetry"
	"github.com/feiskyer/toolagent/tools"
)

// Config contains the server dependencies.
type Config struct {
	Runner   *toolagent.Runner
	Agent    *toolagent.Agent
	Registry *tools.Registry
	Metrics  *telemetry.Metrics
	Logger   zerolog.Logger

	// MaxTurns bounds the model calls per query
	MaxTurns int
}

type server struct {
	cfg Config

	// queries are answered one at a time
	mu sync.Mutex
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Query string `json:"query"`
	Model string `json:"model,omitempty"`
}

// QueryResponse is returned by POST /v1/query.
type QueryResponse struct {
	ID         string `json:"id"`
	Query      string `json:"query"`
	Answer     string `json:"answer,omitempty"`
	Turns      int    `json:"turns"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolCallRequest is the body of POST /v1/tools/{name}.
type ToolCallRequest struct {
	Input string `json:"input"`
}

// ToolCallResponse is returned by POST /v1/tools/{name}.
type ToolCallResponse struct {
	Tool   string `json:"tool"`
	Output string `json:"output"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New creates a new HTTP handler with the given configuration.
func New(cfg Config) (http.Handler, error) {
	if cfg.Runner == nil || cfg.Agent == nil {
		return nil, errors.New("runner and agent are required")
	}
	if cfg.Registry == nil {
		cfg.Registry = tools.NewDefaultRegistry(time.Now)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = telemetry.NewMetrics()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = toolagent.DefaultMaxTurns
	}
	s := &server{cfg: cfg}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(cfg.Logger))
	r.Use(telemetry.HTTPMetricsMiddleware(cfg.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Get("/tools", s.handleListTools)
		r.Post("/tools/{name}", s.handleCallTool)
	})

	return r, nil
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		renderError(w, r, http.StatusBadRequest, errors.New("query cannot be empty"))
		return
	}

	batch := toolagent.NewBatch("http", req.Query)
	batch.Model = req.Model
	batch.MaxTurns = s.cfg.MaxTurns
	batch.Delay = 0

	s.mu.Lock()
	results, err := batch.Run(r.Context(), s.cfg.Runner, s.cfg.Agent, nil)
	s.mu.Unlock()
	if err != nil && len(results) == 0 {
		renderError(w, r, http.StatusBadRequest, err)
		return
	}

	result := results[0]
	s.cfg.Metrics.ObserveQuery(result.Err)
	resp := QueryResponse{
		ID:         result.ID,
		Query:      result.Query,
		Answer:     result.Answer,
		Turns:      result.Turns,
		DurationMS: result.Duration.Milliseconds(),
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
		render.Status(r, http.StatusBadGateway)
	}
	render.JSON(w, r, resp)
}

func (s *server) handleListTools(w http.ResponseWriter, r *http.Request) {
	list := s.cfg.Registry.List()
	infos := make([]ToolInfo, 0, len(list))
	for _, t := range list {
		infos = append(infos, ToolInfo{Name: t.Name(), Description: t.Description()})
	}
	render.JSON(w, r, infos)
}

func (s *server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req ToolCallRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		renderError(w, r, http.StatusBadRequest, errors.Wrap(err, "invalid request body"))
		return
	}

	start := time.Now()
	out, err := s.cfg.Registry.Call(r.Context(), name, req.Input)
	s.cfg.Metrics.ObserveToolCall(name, time.Since(start), err)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, tools.ErrToolNotFound) {
			status = http.StatusNotFound
		}
		renderError(w, r, status, err)
		return
	}

	render.JSON(w, r, ToolCallResponse{Tool: name, Output: out})
}

func renderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: err.Error()})
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("request served")
		})
	}
}
