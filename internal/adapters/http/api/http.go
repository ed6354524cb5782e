// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/agentskan/internal/adapters/feeds"
	"github.com/okian/agentskan/internal/domain/types"
	"github.com/okian/agentskan/pkg/logger"
)

const (
	defaultScanLimit  = 20
	defaultMaxLimit   = 100
	defaultTokenLimit = 50
	maxTokenLimit     = 100
	defaultMaxBody    = 1 << 20
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Scan(ctx context.Context, ref string) (types.ScanResult, error)
	ListScans(ctx context.Context, offset, limit int) (types.ScanPage, error)
	RecordScan(ctx context.Context, in types.ScanInput) (types.RecordReceipt, error)
	LifetimeScanCount(ctx context.Context) int64

	Agents(ctx context.Context) (feeds.AgentList, error)
	Tokens(ctx context.Context, limit, offset int) (feeds.TokenList, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps     Dependencies
	maxLimit int
	maxBody  int64
	logger   logger.Logger

	healthHandler *HealthHandler
	statsHandler  *StatsHandler
}

// Option configures a Server.
type Option func(*Server)

// WithMaxScanLimit caps the page size of GET /api/scans.
func WithMaxScanLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBody = n
		}
	}
}

// WithLogger sets the handler logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		deps:          deps,
		maxLimit:      defaultMaxLimit,
		maxBody:       defaultMaxBody,
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/api/scan", MetricsMiddleware(s.handleScan, "scan"))
	mux.HandleFunc("/api/scans", MetricsMiddleware(s.handleScans, "scans"))
	mux.HandleFunc("/api/stats", MetricsMiddleware(s.handleScanStats, "scan_stats"))
	mux.HandleFunc("/api/agents", MetricsMiddleware(s.handleAgents, "agents"))
	mux.HandleFunc("/api/clawnch", MetricsMiddleware(s.handleTokens, "clawnch"))
}

// envelope is the response shape of every /api route.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

// writeError renders err with the status its kind maps to. Server side
// failures are logged and reported with a generic message.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := publicMessage(err)
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusServiceUnavailable {
		s.logger.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.String("requestID", RequestIDFromContext(r.Context())),
			logger.Error(err))
		msg = "An unexpected error occurred"
	}
	writeJSON(w, status, envelope{Success: false, Error: msg})
}

// publicMessage prefers the underlying cause over the op-tagged wrapper.
func publicMessage(err error) string {
	var ke *KindError
	if errors.As(err, &ke) {
		if ke.Err != nil {
			return ke.Err.Error()
		}
		if ke.Kind != nil {
			return ke.Kind.Error()
		}
	}
	return err.Error()
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeJSON(w, http.StatusMethodNotAllowed, envelope{Success: false, Error: "method not allowed"})
}

// queryInt reads a non-negative integer parameter, falling back to def
// when absent.
func queryInt(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	if n < 0 {
		return 0, errors.New(name + " must not be negative")
	}
	return n, nil
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
