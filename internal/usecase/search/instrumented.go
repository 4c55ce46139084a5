// Package search wraps the match engine with metrics and logging.
package search

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ChrisMcGann/msdb/internal/metrics"
	"github.com/ChrisMcGann/msdb/pkg/core"
	"github.com/ChrisMcGann/msdb/pkg/match"
)

// InstrumentedSearcher wraps a match.Searcher with Prometheus metrics and logging.
type InstrumentedSearcher struct {
	inner  match.Searcher
	logger *zap.Logger
}

// NewInstrumentedSearcher creates a new instrumented searcher.
func NewInstrumentedSearcher(inner match.Searcher, logger *zap.Logger) *InstrumentedSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InstrumentedSearcher{inner: inner, logger: logger}
}

// Search delegates to the inner searcher and records the outcome.
func (s *InstrumentedSearcher) Search(req match.Request) (*match.Table, error) {
	mode := req.Mode.String()
	start := time.Now()

	table, err := s.inner.Search(req)
	elapsed := time.Since(start)
	metrics.SearchDuration.WithLabelValues(mode).Observe(elapsed.Seconds())

	if err != nil {
		errType := classifyError(err)
		metrics.SearchRequestsTotal.WithLabelValues(mode, "error").Inc()
		metrics.SearchErrorsTotal.WithLabelValues(errType).Inc()
		s.logger.Warn("search failed",
			zap.String("mode", mode),
			zap.Int("queries", len(req.Queries)),
			zap.String("error_type", errType),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.SearchRequestsTotal.WithLabelValues(mode, "success").Inc()
	metrics.SearchQueriesTotal.WithLabelValues(mode).Add(float64(len(req.Queries)))
	metrics.SearchMatchesTotal.WithLabelValues(mode).Add(float64(table.Len()))
	s.logger.Info("search completed",
		zap.String("mode", mode),
		zap.Int("queries", len(req.Queries)),
		zap.Int("matched_queries", table.MatchedQueries()),
		zap.Int("matches", table.Len()),
		zap.Duration("elapsed", elapsed),
	)
	return table, nil
}

func classifyError(err error) string {
	switch {
	case errors.Is(err, core.ErrMissingField):
		return "missing_field"
	case errors.Is(err, core.ErrInvalidTolerance):
		return "invalid_tolerance"
	case errors.Is(err, core.ErrUnsupportedMode):
		return "unsupported_mode"
	case errors.Is(err, core.ErrIndexUnavailable):
		return "index_unavailable"
	default:
		return "other"
	}
}
