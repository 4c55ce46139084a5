// Package httpapi exposes the matching engine over HTTP with chi.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ChrisMcGann/msdb/internal/metrics"
	"github.com/ChrisMcGann/msdb/pkg/core"
	"github.com/ChrisMcGann/msdb/pkg/index"
	"github.com/ChrisMcGann/msdb/pkg/match"
)

const defaultMaxRequestBytes = 8 << 20

// Loader reads the reference entries published on reload.
type Loader func(ctx context.Context) ([]core.ReferenceEntry, error)

// Options configures a Server.
type Options struct {
	Shift           float64  // Used when a request omits shift
	Precision       float64  // Used when a request omits precision
	RTTolerance     *float64 // Used when a request omits rt_tolerance
	MaxRequestBytes int64
	APIKeys         []string
	Logger          *zap.Logger
}

// Server serves search, reload, health and metrics endpoints.
type Server struct {
	snapshot *index.Snapshot
	searcher match.Searcher
	loader   Loader
	opts     Options
	logger   *zap.Logger

	reloadMu sync.Mutex

	errorHandlers []errorHandler
}

// NewServer creates an HTTP server searching through searcher. Reload
// rebuilds snapshot from loader.
func NewServer(snapshot *index.Snapshot, searcher match.Searcher, loader Loader, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxRequestBytes <= 0 {
		opts.MaxRequestBytes = defaultMaxRequestBytes
	}
	return &Server{
		snapshot: snapshot,
		searcher: searcher,
		loader:   loader,
		opts:     opts,
		logger:   opts.Logger,
		errorHandlers: []errorHandler{
			sentinelHandler(core.ErrMissingField, http.StatusBadRequest, codeMissingField),
			sentinelHandler(core.ErrInvalidTolerance, http.StatusBadRequest, codeInvalidTolerance),
			sentinelHandler(core.ErrUnsupportedMode, http.StatusBadRequest, codeUnsupportedMode),
			sentinelHandler(core.ErrIndexUnavailable, http.StatusServiceUnavailable, codeIndexUnavailable),
		},
	}
}

// Routes returns the router with middleware installed.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(BearerAuthMiddleware(s.opts.APIKeys))
	r.Use(metrics.Middleware())

	r.Get("/healthz", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.Search)
		r.Post("/reload", s.ReloadHandler)
	})
	return r
}

// SearchRequest is the body of POST /v1/search. MZ and RT are parallel
// columns; RT may be omitted or contain nulls.
type SearchRequest struct {
	MZ          []*float64 `json:"mz"`
	RT          []*float64 `json:"rt,omitempty"`
	Mode        string     `json:"mode"`
	Shift       *float64   `json:"shift,omitempty"`
	Precision   *float64   `json:"precision,omitempty"`
	RTTolerance *float64   `json:"rt_tolerance,omitempty"`
}

// SearchResponse is the body returned by POST /v1/search.
type SearchResponse struct {
	Columns        match.Columns `json:"columns"`
	QueryIndex     []int         `json:"query_index"`
	Matches        int           `json:"matches"`
	MatchedQueries int           `json:"matched_queries"`
	IndexVersion   uint64        `json:"index_version"`
}

// ReloadResponse is the body returned by POST /v1/reload.
type ReloadResponse struct {
	Entries      int    `json:"entries"`
	IndexVersion uint64 `json:"index_version"`
}

// HealthResponse is the body returned by GET /healthz. The mass bounds are
// omitted while the index is unavailable or empty.
type HealthResponse struct {
	Status       string   `json:"status"`
	Entries      int      `json:"entries"`
	IndexVersion uint64   `json:"index_version"`
	MinMass      *float64 `json:"min_mass,omitempty"`
	MaxMass      *float64 `json:"max_mass,omitempty"`
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var body SearchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxRequestBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	req, err := s.toRequest(body)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	table, err := s.searcher.Search(req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SearchResponse{
		Columns:        table.Columns(),
		QueryIndex:     table.QueryIndexes(),
		Matches:        table.Len(),
		MatchedQueries: table.MatchedQueries(),
		IndexVersion:   table.IndexVersion(),
	})
}

func (s *Server) toRequest(body SearchRequest) (match.Request, error) {
	mode, err := core.ParseMode(body.Mode)
	if err != nil {
		return match.Request{}, err
	}
	if body.RT != nil && len(body.RT) != len(body.MZ) {
		return match.Request{}, &core.MissingFieldError{Field: core.FieldRT, Index: min(len(body.RT), len(body.MZ))}
	}

	queries := make([]core.Query, len(body.MZ))
	for i, mz := range body.MZ {
		queries[i].MZ = math.NaN()
		if mz != nil {
			queries[i].MZ = *mz
		}
		if body.RT != nil {
			queries[i].RT = body.RT[i]
		}
	}

	req := match.Request{
		Queries:     queries,
		Mode:        mode,
		Shift:       s.opts.Shift,
		Precision:   s.opts.Precision,
		RTTolerance: s.opts.RTTolerance,
	}
	if body.Shift != nil {
		req.Shift = *body.Shift
	}
	if body.Precision != nil {
		req.Precision = *body.Precision
	}
	if body.RTTolerance != nil {
		req.RTTolerance = body.RTTolerance
	}
	return req, nil
}

// ReloadHandler handles POST /v1/reload.
func (s *Server) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	n, err := s.Reload(r.Context())
	if err != nil {
		s.logger.Error("index reload failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, codeReloadFailed, "index reload failed")
		return
	}
	writeJSON(w, http.StatusOK, ReloadResponse{Entries: n, IndexVersion: s.snapshot.Version()})
}

// Reload reads the entries from the loader and publishes a new index. The
// previous index keeps serving until the new one is ready, and stays current
// when the reload fails.
func (s *Server) Reload(ctx context.Context) (int, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	start := time.Now()
	entries, err := s.loader(ctx)
	if err != nil {
		metrics.IndexRebuildsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("load reference entries: %w", err)
	}
	ix, err := s.snapshot.Rebuild(entries)
	if err != nil {
		metrics.IndexRebuildsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("build index: %w", err)
	}

	metrics.IndexRebuildsTotal.WithLabelValues("success").Inc()
	metrics.IndexEntries.Set(float64(ix.Len()))
	s.logger.Info("reference index published",
		zap.Int("entries", ix.Len()),
		zap.Uint64("version", ix.Version()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return ix.Len(), nil
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	ix, err := s.snapshot.Load()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:       "unavailable",
			IndexVersion: s.snapshot.Version(),
		})
		return
	}
	resp := HealthResponse{
		Status:       "ok",
		Entries:      ix.Len(),
		IndexVersion: ix.Version(),
	}
	if lo, hi, ok := ix.MassRange(); ok {
		resp.MinMass, resp.MaxMass = &lo, &hi
	}
	writeJSON(w, http.StatusOK, resp)
}

// Error codes returned in ErrorResponse.
const (
	codeBadRequest       = "bad_request"
	codeMissingField     = "missing_field"
	codeInvalidTolerance = "invalid_tolerance"
	codeUnsupportedMode  = "unsupported_mode"
	codeIndexUnavailable = "index_unavailable"
	codeReloadFailed     = "reload_failed"
	codeUnauthorized     = "unauthorized"
	codeInternal         = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			s.logger.Debug("request rejected", zap.Error(err))
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternal, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
