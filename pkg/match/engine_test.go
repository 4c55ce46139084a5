package match

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/msdb/pkg/core"
	"github.com/ChrisMcGann/msdb/pkg/index"
	"github.com/ChrisMcGann/msdb/pkg/ionization"
	"github.com/ChrisMcGann/msdb/pkg/tolerance"
)

// identityAdjuster leaves masses unchanged so fixtures can use exact values.
func identityAdjuster(t *testing.T) *ionization.Adjuster {
	t.Helper()
	adj, err := ionization.NewAdjuster(
		core.Adduct{Name: "[M]+", Charge: 1, Multiplier: 1},
		core.Adduct{Name: "[M]-", Charge: -1, Multiplier: 1},
	)
	require.NoError(t, err)
	return adj
}

func newEngine(t *testing.T, entries []core.ReferenceEntry, cfg Config) *Engine {
	t.Helper()
	snap := index.NewSnapshot()
	_, err := snap.Rebuild(entries)
	require.NoError(t, err)

	if cfg.Unit == 0 {
		cfg.Unit = tolerance.Absolute
	}
	e, err := NewEngine(snap, cfg)
	require.NoError(t, err)
	return e
}

func queries(mzs ...float64) []core.Query {
	out := make([]core.Query, len(mzs))
	for i, mz := range mzs {
		out[i] = core.Query{MZ: mz}
	}
	return out
}

func TestScenarioProtonatedOutsideWindow(t *testing.T) {
	e := newEngine(t, []core.ReferenceEntry{
		{ID: "A", NeutralMass: 181.07, RetentionTime: core.Float64(120)},
	}, Config{})

	// [M+H]+ of 181.07 is 182.0773, outside 181.08 +/- 0.02.
	table, err := e.Search(Request{Queries: queries(181.08), Mode: core.ModePositive, Precision: 0.02})
	require.NoError(t, err)
	assert.Equal(t, 0, table.Len())

	table, err = e.Search(Request{Queries: queries(182.08), Mode: core.ModePositive, Precision: 0.02})
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())

	rec := table.Record(0)
	assert.Equal(t, "A", rec.EntryID)
	assert.Equal(t, 182.08, rec.QueryMZ)
	assert.InDelta(t, 181.07+core.ProtonMass, rec.TheoreticalMZ, 1e-12)
	assert.Equal(t, "[M+H]+", rec.Attribution)
}

func TestScenarioMultipleMatchesPerQuery(t *testing.T) {
	e := newEngine(t, []core.ReferenceEntry{
		{ID: "LOW", NeutralMass: 100.000},
		{ID: "HIGH", NeutralMass: 100.003},
		{ID: "FAR", NeutralMass: 100.010},
	}, Config{Adjuster: identityAdjuster(t)})

	table, err := e.Search(Request{Queries: queries(100.001), Mode: core.ModePositive, Precision: 0.0021})
	require.NoError(t, err)
	assert.Equal(t, []string{"LOW", "HIGH"}, table.Columns().MOLID)
	assert.Equal(t, 1, table.MatchedQueries())
}

func TestBoundaryIsInclusive(t *testing.T) {
	e := newEngine(t, []core.ReferenceEntry{
		{ID: "A", NeutralMass: 100},
	}, Config{Adjuster: identityAdjuster(t)})

	tests := []struct {
		name  string
		mz    float64
		match bool
	}{
		{"upper boundary", 100.5, true},
		{"lower boundary", 99.5, true},
		{"just beyond upper", math.Nextafter(100.5, math.Inf(1)), false},
		{"just beyond lower", math.Nextafter(99.5, math.Inf(-1)), false},
		{"one unit beyond", 101.5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := e.Search(Request{Queries: queries(tt.mz), Mode: core.ModeNegative, Precision: 0.5})
			require.NoError(t, err)
			assert.Equal(t, tt.match, table.Len() == 1)
		})
	}
}

func TestShiftIsApplied(t *testing.T) {
	e := newEngine(t, []core.ReferenceEntry{
		{ID: "A", NeutralMass: 100},
	}, Config{Adjuster: identityAdjuster(t)})

	table, err := e.Search(Request{Queries: queries(100.5, 99.875), Mode: core.ModePositive, Shift: 0.25, Precision: 0.25})
	require.NoError(t, err)
	assert.Equal(t, []int{0}, table.QueryIndexes())
}

func TestPPMPrecision(t *testing.T) {
	e := newEngine(t, []core.ReferenceEntry{
		{ID: "A", NeutralMass: 1000},
	}, Config{Adjuster: identityAdjuster(t), Unit: tolerance.PPM})

	table, err := e.Search(Request{Queries: queries(1000.004, 1000.006, 999.996), Mode: core.ModePositive, Precision: 5})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, table.QueryIndexes())
}

func randomEntries(rng *rand.Rand, n int) []core.ReferenceEntry {
	entries := make([]core.ReferenceEntry, n)
	for i := range entries {
		entries[i] = core.ReferenceEntry{
			ID:          fmt.Sprintf("E%05d", i),
			NeutralMass: 80 + rng.Float64()*900,
			Composition: "C6H12O6",
		}
		if i%3 == 0 {
			entries[i].RetentionTime = core.Float64(rng.Float64() * 600)
		}
	}
	return entries
}

func TestExactAdjustedMassAlwaysMatches(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	entries := randomEntries(rng, 500)
	e := newEngine(t, entries, Config{})
	adj := ionization.Default()

	for _, mode := range []core.Mode{core.ModePositive, core.ModeNegative} {
		for _, prec := range []float64{0, 0.001, 0.1} {
			for _, entry := range entries[:100] {
				mz, err := adj.Adjust(entry.NeutralMass, mode)
				require.NoError(t, err)

				table, err := e.Search(Request{Queries: queries(mz), Mode: mode, Precision: prec})
				require.NoError(t, err)
				assert.Contains(t, table.Columns().MOLID, entry.ID, "mode %v prec %v", mode, prec)
			}
		}
	}
}

func TestMatchesAgreeWithLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	entries := randomEntries(rng, 3000)
	adj := ionization.Default()

	for _, unit := range []tolerance.Unit{tolerance.Absolute, tolerance.PPM} {
		e := newEngine(t, entries, Config{Unit: unit})
		prec := 0.01
		if unit == tolerance.PPM {
			prec = 20
		}
		w := tolerance.Window{Precision: prec, Unit: unit}

		qs := make([]core.Query, 300)
		for i := range qs {
			qs[i] = core.Query{MZ: 80 + rng.Float64()*900}
		}
		table, err := e.Search(Request{Queries: qs, Mode: core.ModePositive, Precision: prec})
		require.NoError(t, err)

		var want []core.MatchRecord
		for qi, q := range qs {
			var hits []core.ReferenceEntry
			for _, entry := range entries {
				theo, _ := adj.Adjust(entry.NeutralMass, core.ModePositive)
				if w.Admits(theo, q.MZ) {
					hits = append(hits, entry)
				}
			}
			ix, err := index.Build(hits)
			require.NoError(t, err)
			for _, entry := range ix.Entries() {
				theo, _ := adj.Adjust(entry.NeutralMass, core.ModePositive)
				want = append(want, core.MatchRecord{
					QueryIndex:    qi,
					EntryID:       entry.ID,
					QueryMZ:       q.MZ,
					TheoreticalMZ: theo,
					Attribution:   "[M+H]+",
					Composition:   entry.Composition,
				})
			}
		}

		got := table.Records()
		if len(want) == 0 {
			assert.Empty(t, got)
		} else {
			assert.Equal(t, want, got, "unit %v", unit)
		}

		for _, rec := range got {
			lo, hi := w.Bounds(rec.TheoreticalMZ)
			assert.True(t, rec.QueryMZ >= lo && rec.QueryMZ <= hi)
		}
	}
}

func TestSearchIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	e := newEngine(t, randomEntries(rng, 1000), Config{})

	qs := make([]core.Query, 200)
	for i := range qs {
		qs[i] = core.Query{MZ: 80 + rng.Float64()*900}
	}
	req := Request{Queries: qs, Mode: core.ModeNegative, Precision: 0.05}

	first, err := e.Search(req)
	require.NoError(t, err)
	second, err := e.Search(req)
	require.NoError(t, err)

	assert.Equal(t, first.Records(), second.Records())
}

func TestParallelChunksMatchSequential(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	entries := randomEntries(rng, 1500)
	sequential := newEngine(t, entries, Config{})
	parallel := newEngine(t, entries, Config{Workers: 4, ChunkSize: 7})

	qs := make([]core.Query, 250)
	for i := range qs {
		qs[i] = core.Query{MZ: 80 + rng.Float64()*900}
		if i%2 == 0 {
			qs[i].RT = core.Float64(rng.Float64() * 600)
		}
	}
	req := Request{Queries: qs, Mode: core.ModePositive, Precision: 0.05, RTTolerance: core.Float64(30)}

	want, err := sequential.Search(req)
	require.NoError(t, err)
	got, err := parallel.Search(req)
	require.NoError(t, err)

	assert.Equal(t, want.Records(), got.Records())
}

func TestRowsFollowQueryOrder(t *testing.T) {
	e := newEngine(t, []core.ReferenceEntry{
		{ID: "A", NeutralMass: 100},
		{ID: "B", NeutralMass: 100.25},
		{ID: "C", NeutralMass: 200},
	}, Config{Adjuster: identityAdjuster(t)})

	table, err := e.Search(Request{Queries: queries(200, 300, 100.125), Mode: core.ModePositive, Precision: 0.125})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 2}, table.QueryIndexes())
	assert.Equal(t, []string{"C", "A", "B"}, table.Columns().MOLID)
	assert.Equal(t, []float64{200, 100.125, 100.125}, table.Columns().MZ)
}

func TestRetentionTimeFilter(t *testing.T) {
	e := newEngine(t, []core.ReferenceEntry{
		{ID: "WITH_RT", NeutralMass: 100, RetentionTime: core.Float64(120)},
		{ID: "NO_RT", NeutralMass: 100.125},
	}, Config{Adjuster: identityAdjuster(t)})

	tests := []struct {
		name  string
		query core.Query
		rtTol *float64
		want  []string
	}{
		{"inside rt window", core.Query{MZ: 100, RT: core.Float64(123)}, core.Float64(5), []string{"WITH_RT", "NO_RT"}},
		{"rt boundary", core.Query{MZ: 100, RT: core.Float64(125)}, core.Float64(5), []string{"WITH_RT", "NO_RT"}},
		{"outside rt window", core.Query{MZ: 100, RT: core.Float64(130)}, core.Float64(5), []string{"NO_RT"}},
		{"query without rt", core.Query{MZ: 100}, core.Float64(5), []string{"WITH_RT", "NO_RT"}},
		{"no rt tolerance", core.Query{MZ: 100, RT: core.Float64(900)}, nil, []string{"WITH_RT", "NO_RT"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := e.Search(Request{
				Queries:     []core.Query{tt.query},
				Mode:        core.ModePositive,
				Precision:   0.25,
				RTTolerance: tt.rtTol,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, table.Columns().MOLID)
		})
	}
}

func TestAttributionSelectsAdduct(t *testing.T) {
	const mass = 180.0634
	e := newEngine(t, []core.ReferenceEntry{
		{ID: "H", NeutralMass: mass, Composition: "C6H12O6"},
		{ID: "NA", NeutralMass: mass, Attribution: "[M+Na]+", Composition: "C6H12O6"},
		{ID: "NEG", NeutralMass: mass, Attribution: "[M-H]-", Composition: "C6H12O6"},
		{ID: "ODD", NeutralMass: mass, Attribution: "in-source fragment", Composition: "C6H12O6"},
	}, Config{})

	tests := []struct {
		name  string
		mode  core.Mode
		mz    float64
		ids   []string
		attrs []string
	}{
		{"sodium adduct", core.ModePositive, mass + core.MassNa - core.ElectronMass, []string{"NA"}, []string{"[M+Na]+"}},
		{"protonated", core.ModePositive, mass + core.ProtonMass, []string{"H", "ODD"}, []string{"[M+H]+", "[M+H]+"}},
		{"deprotonated", core.ModeNegative, mass - core.ProtonMass, []string{"H", "NEG", "ODD"}, []string{"[M-H]-", "[M-H]-", "[M-H]-"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := e.Search(Request{Queries: queries(tt.mz), Mode: tt.mode, Precision: 0.001})
			require.NoError(t, err)

			c := table.Columns()
			assert.Equal(t, tt.ids, c.MOLID)
			assert.Equal(t, tt.attrs, c.ATTR)
			for _, theo := range c.MZTHEO {
				assert.InDelta(t, tt.mz, theo, 1e-9)
			}
		})
	}
}

func TestOppositePolarityLabelNeverMatches(t *testing.T) {
	e := newEngine(t, []core.ReferenceEntry{
		{ID: "A", NeutralMass: 180.0634, Attribution: "[M-H]-"},
	}, Config{})

	for _, mz := range []float64{180.0634 + core.ProtonMass, 180.0634 - core.ProtonMass} {
		table, err := e.Search(Request{Queries: queries(mz), Mode: core.ModePositive, Precision: 0.5})
		require.NoError(t, err)
		assert.Equal(t, 0, table.Len())
	}
}

func TestMixedAdductsKeepIndexOrder(t *testing.T) {
	sodiated := 200 + core.ProtonMass - (core.MassNa - core.ElectronMass)
	e := newEngine(t, []core.ReferenceEntry{
		{ID: "P", NeutralMass: 200},
		{ID: "S", NeutralMass: sodiated, Attribution: "[M+Na]+"},
	}, Config{})

	table, err := e.Search(Request{Queries: queries(200 + core.ProtonMass), Mode: core.ModePositive, Precision: 0.01})
	require.NoError(t, err)

	c := table.Columns()
	assert.Equal(t, []string{"S", "P"}, c.MOLID)
	assert.Equal(t, []string{"[M+Na]+", "[M+H]+"}, c.ATTR)
}

func TestRetentionTimeCompatibility(t *testing.T) {
	withRT := &core.ReferenceEntry{ID: "A", NeutralMass: 100, RetentionTime: core.Float64(60)}
	noRT := &core.ReferenceEntry{ID: "B", NeutralMass: 100}

	assert.True(t, rtCompatible(core.Query{MZ: 100, RT: core.Float64(62)}, withRT, core.Float64(2)))
	assert.False(t, rtCompatible(core.Query{MZ: 100, RT: core.Float64(63)}, withRT, core.Float64(2)))
	assert.True(t, rtCompatible(core.Query{MZ: 100, RT: core.Float64(500)}, noRT, core.Float64(2)))
	assert.True(t, rtCompatible(core.Query{MZ: 100}, withRT, core.Float64(2)))
	assert.True(t, rtCompatible(core.Query{MZ: 100, RT: core.Float64(500)}, withRT, nil))
}

func TestUnresolvedLabelReportsModeRule(t *testing.T) {
	e := newEngine(t, []core.ReferenceEntry{
		{ID: "A", NeutralMass: 100, Attribution: "[M+Na]+", Composition: "C4H4O4"},
	}, Config{Adjuster: identityAdjuster(t)})

	table, err := e.Search(Request{Queries: queries(100), Mode: core.ModePositive})
	require.NoError(t, err)

	c := table.Columns()
	assert.Equal(t, []string{"[M]+"}, c.ATTR)
	assert.Equal(t, []float64{100}, c.MZTHEO)
	assert.Equal(t, []string{"C4H4O4"}, c.COMP)
}

func TestValidationErrors(t *testing.T) {
	e := newEngine(t, []core.ReferenceEntry{{ID: "A", NeutralMass: 100}}, Config{})

	tests := []struct {
		name     string
		req      Request
		sentinel error
	}{
		{"no queries", Request{Mode: core.ModePositive}, core.ErrMissingField},
		{"zero mz in batch", Request{Queries: queries(101, 0, 102), Mode: core.ModePositive}, core.ErrMissingField},
		{"NaN mz", Request{Queries: queries(math.NaN()), Mode: core.ModePositive}, core.ErrMissingField},
		{"negative precision", Request{Queries: queries(101), Mode: core.ModePositive, Precision: -0.1}, core.ErrInvalidTolerance},
		{"negative shift", Request{Queries: queries(101), Mode: core.ModePositive, Shift: -1}, core.ErrInvalidTolerance},
		{"negative rt tolerance", Request{Queries: queries(101), Mode: core.ModePositive, RTTolerance: core.Float64(-1)}, core.ErrInvalidTolerance},
		{"no mode", Request{Queries: queries(101)}, core.ErrUnsupportedMode},
		{"unknown mode", Request{Queries: queries(101), Mode: core.Mode(9)}, core.ErrUnsupportedMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := e.Search(tt.req)
			require.Error(t, err)
			assert.Nil(t, table)
			assert.True(t, errors.Is(err, tt.sentinel), "got %v", err)
		})
	}
}

func TestMissingFieldNamesQuery(t *testing.T) {
	e := newEngine(t, []core.ReferenceEntry{{ID: "A", NeutralMass: 100}}, Config{})

	_, err := e.Search(Request{Queries: queries(101, -3), Mode: core.ModePositive})

	var mfe *core.MissingFieldError
	require.True(t, errors.As(err, &mfe))
	assert.Equal(t, core.FieldMZ, mfe.Field)
	assert.Equal(t, 1, mfe.Index)
}

func TestIndexUnavailable(t *testing.T) {
	e, err := NewEngine(index.NewSnapshot(), Config{Unit: tolerance.Absolute})
	require.NoError(t, err)

	_, err = e.Search(Request{Queries: queries(101), Mode: core.ModePositive})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrIndexUnavailable))
}

func TestBindStates(t *testing.T) {
	e := newEngine(t, []core.ReferenceEntry{{ID: "A", NeutralMass: 100}}, Config{})

	c := &call{req: Request{Queries: queries(101), Mode: core.ModePositive}}
	require.NoError(t, e.bind(c))
	assert.Equal(t, StateInputBound, c.state)

	c = &call{req: Request{Queries: queries(0), Mode: core.ModePositive}}
	require.Error(t, e.bind(c))
	assert.Equal(t, StateFailed, c.state)
	assert.Equal(t, "FAILED", c.state.String())
}

func TestNewEngineRequiresUnit(t *testing.T) {
	_, err := NewEngine(index.NewSnapshot(), Config{})
	assert.True(t, errors.Is(err, core.ErrInvalidTolerance))

	_, err = NewEngine(nil, Config{Unit: tolerance.PPM})
	assert.Error(t, err)
}

func TestSearchAll(t *testing.T) {
	e := newEngine(t, []core.ReferenceEntry{
		{ID: "A", NeutralMass: 100},
		{ID: "B", NeutralMass: 200},
	}, Config{Adjuster: identityAdjuster(t)})

	reqs := []Request{
		{Queries: queries(100), Mode: core.ModePositive},
		{Queries: queries(200), Mode: core.ModeNegative},
		{Queries: queries(300), Mode: core.ModePositive},
	}

	tables, err := e.SearchAll(context.Background(), reqs, 2)
	require.NoError(t, err)
	require.Len(t, tables, 3)
	assert.Equal(t, []string{"A"}, tables[0].Columns().MOLID)
	assert.Equal(t, []string{"B"}, tables[1].Columns().MOLID)
	assert.Equal(t, 0, tables[2].Len())

	reqs = append(reqs, Request{Queries: queries(100)})
	_, err = e.SearchAll(context.Background(), reqs, 2)
	assert.True(t, errors.Is(err, core.ErrUnsupportedMode))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.SearchAll(ctx, reqs[:1], 1)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSnapshotSwapDuringSearches(t *testing.T) {
	snap := index.NewSnapshot()
	_, err := snap.Rebuild([]core.ReferenceEntry{{ID: "OLD", NeutralMass: 100}})
	require.NoError(t, err)

	e, err := NewEngine(snap, Config{Unit: tolerance.Absolute, Adjuster: identityAdjuster(t)})
	require.NoError(t, err)

	req := Request{Queries: queries(100), Mode: core.ModePositive}
	before, err := e.Search(req)
	require.NoError(t, err)

	_, err = snap.Rebuild([]core.ReferenceEntry{{ID: "NEW", NeutralMass: 100}})
	require.NoError(t, err)

	after, err := e.Search(req)
	require.NoError(t, err)

	assert.Equal(t, []string{"OLD"}, before.Columns().MOLID)
	assert.Equal(t, []string{"NEW"}, after.Columns().MOLID)
}
