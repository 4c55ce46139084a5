// Package match implements the m/z and retention-time matching engine: for
// every query peak it enumerates the reference entries whose adjusted
// theoretical m/z lies within tolerance, and collects them in a Table.
package match

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/msdb/pkg/core"
	"github.com/ChrisMcGann/msdb/pkg/index"
	"github.com/ChrisMcGann/msdb/pkg/ionization"
	"github.com/ChrisMcGann/msdb/pkg/tolerance"
)

// Slack applied to the neutral-mass range handed to the index. Candidates
// are always confirmed with the exact window predicate.
const rangeSlack = 1e-9

const (
	defaultChunkSize = 4096
	defaultParallel  = 8
)

// Source supplies the index a search runs against.
type Source interface {
	Load() (*index.Index, error)
}

// Searcher runs one search call.
type Searcher interface {
	Search(req Request) (*Table, error)
}

// Request is one mode-homogeneous search call.
type Request struct {
	Queries     []core.Query
	Mode        core.Mode
	Shift       float64
	Precision   float64
	RTTolerance *float64 // nil disables retention-time filtering
}

// Config holds engine settings shared by all search calls.
type Config struct {
	Unit      tolerance.Unit       // Interpretation of Shift and Precision
	Adjuster  *ionization.Adjuster // nil = proton adduct/loss
	Workers   int                  // Concurrent query chunks per call (<= 1 = sequential)
	ChunkSize int                  // Queries per chunk when Workers > 1
	Logger    *zap.Logger
}

// Engine matches query peaks against the index published by its Source.
// It holds no per-call state and is safe for concurrent use.
type Engine struct {
	source    Source
	unit      tolerance.Unit
	adjuster  *ionization.Adjuster
	workers   int
	chunkSize int
	logger    *zap.Logger
}

// NewEngine creates an engine reading indexes from source.
func NewEngine(source Source, cfg Config) (*Engine, error) {
	if source == nil {
		return nil, fmt.Errorf("index source is required")
	}
	if cfg.Unit != tolerance.Absolute && cfg.Unit != tolerance.PPM {
		return nil, &core.InvalidToleranceError{Param: "unit " + cfg.Unit.String(), Value: float64(cfg.Unit)}
	}
	e := &Engine{
		source:    source,
		unit:      cfg.Unit,
		adjuster:  cfg.Adjuster,
		workers:   cfg.Workers,
		chunkSize: cfg.ChunkSize,
		logger:    cfg.Logger,
	}
	if e.adjuster == nil {
		e.adjuster = ionization.Default()
	}
	if e.chunkSize <= 0 {
		e.chunkSize = defaultChunkSize
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e, nil
}

// State is the lifecycle stage of one search call.
type State int

const (
	StateIdle State = iota
	StateInputBound
	StateSearching
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateInputBound:
		return "INPUT_BOUND"
	case StateSearching:
		return "SEARCHING"
	case StateDone:
		return "DONE"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// call carries everything resolved while binding a request.
type call struct {
	state  State
	req    Request
	window tolerance.Window
	rules  []core.Adduct  // rules[0] is the mode rule
	labels map[string]int // attribution label -> rules index, -1 = other polarity
	ix     *index.Index
}

// ruleFor returns the rules index applied to entries labelled label.
// Unlabelled entries and unknown labels use the mode rule.
func (c *call) ruleFor(label string) int {
	if i, ok := c.labels[label]; ok {
		return i
	}
	return 0
}

func (c *call) fail(err error) error {
	c.state = StateFailed
	return err
}

// Search runs req to completion. It returns either the full table or a typed
// error; no partial table is ever returned.
func (e *Engine) Search(req Request) (*Table, error) {
	c := &call{state: StateIdle, req: req}

	if err := e.bind(c); err != nil {
		e.logger.Debug("search rejected", zap.Stringer("state", c.state), zap.Error(err))
		return nil, err
	}

	c.state = StateSearching
	table := e.run(c)
	table.indexVersion = c.ix.Version()
	c.state = StateDone

	e.logger.Debug("search finished",
		zap.Stringer("mode", req.Mode),
		zap.Int("queries", len(req.Queries)),
		zap.Int("matches", table.Len()),
		zap.Int("index_entries", c.ix.Len()),
	)
	return table, nil
}

// bind validates the request and resolves the window, adduct rule and index
// snapshot. Every check happens before any index lookup.
func (e *Engine) bind(c *call) error {
	req := c.req

	rule, err := e.adjuster.Rule(req.Mode)
	if err != nil {
		return c.fail(err)
	}

	w := tolerance.Window{Shift: req.Shift, Precision: req.Precision, Unit: e.unit}
	if err := w.Validate(); err != nil {
		return c.fail(err)
	}
	if req.RTTolerance != nil {
		rt := *req.RTTolerance
		if math.IsNaN(rt) || math.IsInf(rt, 0) || rt < 0 {
			return c.fail(&core.InvalidToleranceError{Param: "rtTolerance", Value: rt})
		}
	}

	if len(req.Queries) == 0 {
		return c.fail(&core.MissingFieldError{Field: core.FieldMZ, Index: -1})
	}
	for i, q := range req.Queries {
		if !q.ValidMZ() {
			return c.fail(&core.MissingFieldError{Field: core.FieldMZ, Index: i})
		}
	}

	ix, err := e.source.Load()
	if err != nil {
		return c.fail(err)
	}

	c.window = w
	c.ix = ix
	e.resolveLabels(c, rule)
	c.state = StateInputBound
	return nil
}

// resolveLabels maps the attribution labels present in the index to the
// adducts they name. Entries labelled with an adduct of the other polarity
// cannot be observed in this mode and are excluded.
func (e *Engine) resolveLabels(c *call, rule core.Adduct) {
	c.rules = []core.Adduct{rule}
	c.labels = make(map[string]int)
	for _, label := range c.ix.Attributions() {
		a, ok := e.adjuster.Resolve(label)
		switch {
		case !ok:
		case a.Polarity() != c.req.Mode:
			c.labels[label] = -1
		case a.Name == rule.Name:
			c.labels[label] = 0
		default:
			c.labels[label] = len(c.rules)
			c.rules = append(c.rules, a)
		}
	}
}

func (e *Engine) run(c *call) *Table {
	queries := c.req.Queries
	if e.workers <= 1 || len(queries) <= e.chunkSize {
		table := NewTable()
		e.searchRange(c, 0, len(queries), table)
		return table
	}

	chunks := (len(queries) + e.chunkSize - 1) / e.chunkSize
	parts := make([]*Table, chunks)

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i := 0; i < chunks; i++ {
		start := i * e.chunkSize
		end := min(start+e.chunkSize, len(queries))
		g.Go(func() error {
			part := NewTable()
			e.searchRange(c, start, end, part)
			parts[i] = part
			return nil
		})
	}
	_ = g.Wait()

	table := NewTable()
	for _, part := range parts {
		table.appendTable(part)
	}
	return table
}

func (e *Engine) searchRange(c *call, start, end int, out *Table) {
	for i := start; i < end; i++ {
		e.searchQuery(c, i, out)
	}
}

func (e *Engine) searchQuery(c *call, qi int, out *Table) {
	q := c.req.Queries[qi]
	tlo, thi := c.window.Inverse(q.MZ)

	var hits []hit
	for ri, rule := range c.rules {
		// Map the admissible theoretical m/z range back to neutral mass; every
		// adduct rule is increasing, so the interval keeps its orientation.
		nlo, nhi := rule.Neutral(tlo), rule.Neutral(thi)
		pad := rangeSlack * math.Max(math.Abs(nlo), 1)
		nlo -= pad
		nhi += pad

		candidates := c.ix.Range(nlo, nhi)
		for k := range candidates {
			entry := &candidates[k]
			if c.ruleFor(entry.Attribution) != ri {
				continue
			}
			theo := rule.MZ(entry.NeutralMass)
			if !c.window.Admits(theo, q.MZ) {
				continue
			}
			if !rtCompatible(q, entry, c.req.RTTolerance) {
				continue
			}
			hits = append(hits, hit{entry: entry, theo: theo, rule: ri})
		}
	}

	// Each rule yields its hits in index order; merge them back into it.
	if len(c.rules) > 1 {
		sort.Slice(hits, func(i, j int) bool {
			a, b := hits[i].entry, hits[j].entry
			if a.NeutralMass != b.NeutralMass {
				return a.NeutralMass < b.NeutralMass
			}
			return a.ID < b.ID
		})
	}

	for _, h := range hits {
		out.Append(core.MatchRecord{
			QueryIndex:    qi,
			EntryID:       h.entry.ID,
			QueryMZ:       q.MZ,
			TheoreticalMZ: h.theo,
			Attribution:   c.rules[h.rule].Name,
			Composition:   h.entry.Composition,
		})
	}
}

type hit struct {
	entry *core.ReferenceEntry
	theo  float64
	rule  int
}

// rtCompatible applies the retention-time filter only when the query, the
// entry and the request all carry a retention-time value.
func rtCompatible(q core.Query, entry *core.ReferenceEntry, tol *float64) bool {
	if tol == nil || q.RT == nil || !entry.HasRetentionTime() {
		return true
	}
	return math.Abs(*q.RT-*entry.RetentionTime) <= *tol
}

// SearchAll runs independent requests concurrently against the indexes
// published by the engine's source, at most parallel at a time. Results are
// in request order. Requests not yet started when ctx is done are skipped
// and the first error is returned.
func (e *Engine) SearchAll(ctx context.Context, reqs []Request, parallel int) ([]*Table, error) {
	return SearchAll(ctx, e, reqs, parallel)
}

// SearchAll runs reqs concurrently through s. See Engine.SearchAll.
func SearchAll(ctx context.Context, s Searcher, reqs []Request, parallel int) ([]*Table, error) {
	if parallel <= 0 {
		parallel = defaultParallel
	}
	results := make([]*Table, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			table, err := s.Search(reqs[i])
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			results[i] = table
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
