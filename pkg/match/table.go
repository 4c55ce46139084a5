package match

import "github.com/ChrisMcGann/msdb/pkg/core"

// Table accumulates match records column by column. All columns always have
// the same length; row i of every column describes one record.
type Table struct {
	queryIndex []int
	molID      []string
	mz         []float64
	mzTheo     []float64
	attr       []string
	comp       []string

	indexVersion uint64
}

// Columns is a copy of the output columns of a Table.
type Columns struct {
	MOLID  []string  `json:"MOLID" yaml:"MOLID"`
	MZ     []float64 `json:"MZ" yaml:"MZ"`
	MZTHEO []float64 `json:"MZTHEO" yaml:"MZTHEO"`
	ATTR   []string  `json:"ATTR" yaml:"ATTR"`
	COMP   []string  `json:"COMP" yaml:"COMP"`
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// Append adds one record as a new row.
func (t *Table) Append(r core.MatchRecord) {
	t.queryIndex = append(t.queryIndex, r.QueryIndex)
	t.molID = append(t.molID, r.EntryID)
	t.mz = append(t.mz, r.QueryMZ)
	t.mzTheo = append(t.mzTheo, r.TheoreticalMZ)
	t.attr = append(t.attr, r.Attribution)
	t.comp = append(t.comp, r.Composition)
}

// IndexVersion returns the version of the index the table was searched
// against, or 0 for a table not produced by an Engine.
func (t *Table) IndexVersion() uint64 {
	return t.indexVersion
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.molID)
}

// Record returns row i.
func (t *Table) Record(i int) core.MatchRecord {
	return core.MatchRecord{
		QueryIndex:    t.queryIndex[i],
		EntryID:       t.molID[i],
		QueryMZ:       t.mz[i],
		TheoreticalMZ: t.mzTheo[i],
		Attribution:   t.attr[i],
		Composition:   t.comp[i],
	}
}

// Records returns every row in order.
func (t *Table) Records() []core.MatchRecord {
	out := make([]core.MatchRecord, t.Len())
	for i := range out {
		out[i] = t.Record(i)
	}
	return out
}

// QueryIndexes returns, for each row, the position of its query in the request.
func (t *Table) QueryIndexes() []int {
	return append([]int{}, t.queryIndex...)
}

// MatchedQueries returns the number of distinct queries with at least one row.
func (t *Table) MatchedQueries() int {
	n := 0
	for i, qi := range t.queryIndex {
		if i == 0 || qi != t.queryIndex[i-1] {
			n++
		}
	}
	return n
}

// Columns returns a copy of the output columns. An empty table yields empty,
// non-nil columns.
func (t *Table) Columns() Columns {
	return Columns{
		MOLID:  append([]string{}, t.molID...),
		MZ:     append([]float64{}, t.mz...),
		MZTHEO: append([]float64{}, t.mzTheo...),
		ATTR:   append([]string{}, t.attr...),
		COMP:   append([]string{}, t.comp...),
	}
}

// Map returns the columns keyed by field name (MOLID, MZ, MZTHEO, ATTR, COMP).
func (t *Table) Map() map[string]any {
	c := t.Columns()
	return map[string]any{
		core.FieldMOLID.String():  c.MOLID,
		core.FieldMZ.String():     c.MZ,
		core.FieldMZTHEO.String(): c.MZTHEO,
		core.FieldATTR.String():   c.ATTR,
		core.FieldCOMP.String():   c.COMP,
	}
}

func (t *Table) appendTable(other *Table) {
	t.queryIndex = append(t.queryIndex, other.queryIndex...)
	t.molID = append(t.molID, other.molID...)
	t.mz = append(t.mz, other.mz...)
	t.mzTheo = append(t.mzTheo, other.mzTheo...)
	t.attr = append(t.attr, other.attr...)
	t.comp = append(t.comp, other.comp...)
}
