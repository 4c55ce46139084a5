// Package index provides an immutable, mass-sorted index over reference
// entries answering inclusive neutral-mass range queries.
package index

import (
	"fmt"
	"sort"

	"github.com/ChrisMcGann/msdb/pkg/core"
)

// Index holds reference entries sorted by neutral mass, ties broken by ID.
// It is never mutated after Build and may be shared between goroutines.
type Index struct {
	entries      []core.ReferenceEntry
	masses       []float64
	attributions []string
	version      uint64 // set when published by a Snapshot
}

// Build validates entries and returns a new index over a copy of them.
func Build(entries []core.ReferenceEntry) (*Index, error) {
	sorted := make([]core.ReferenceEntry, len(entries))
	copy(sorted, entries)

	seen := make(map[string]struct{}, len(sorted))
	for i := range sorted {
		if err := sorted[i].Validate(); err != nil {
			return nil, err
		}
		if _, ok := seen[sorted[i].ID]; ok {
			return nil, fmt.Errorf("duplicate reference entry identifier '%s'", sorted[i].ID)
		}
		seen[sorted[i].ID] = struct{}{}
	}

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].NeutralMass != sorted[j].NeutralMass {
			return sorted[i].NeutralMass < sorted[j].NeutralMass
		}
		return sorted[i].ID < sorted[j].ID
	})

	masses := make([]float64, len(sorted))
	labels := make(map[string]struct{})
	for i := range sorted {
		masses[i] = sorted[i].NeutralMass
		if a := sorted[i].Attribution; a != "" {
			labels[a] = struct{}{}
		}
	}
	attributions := make([]string, 0, len(labels))
	for a := range labels {
		attributions = append(attributions, a)
	}
	sort.Strings(attributions)

	return &Index{entries: sorted, masses: masses, attributions: attributions}, nil
}

// Len returns the number of indexed entries.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Range returns the entries with lo <= NeutralMass <= hi in ascending mass
// order. The returned slice aliases the index and must not be modified.
func (ix *Index) Range(lo, hi float64) []core.ReferenceEntry {
	if lo > hi {
		return nil
	}
	start := sort.SearchFloat64s(ix.masses, lo)
	end := sort.Search(len(ix.masses), func(i int) bool {
		return ix.masses[i] > hi
	})
	if start >= end {
		return nil
	}
	return ix.entries[start:end:end]
}

// Entries returns all entries in index order. The slice must not be modified.
func (ix *Index) Entries() []core.ReferenceEntry {
	return ix.entries[:len(ix.entries):len(ix.entries)]
}

// Version returns the Snapshot version under which the index was published,
// or 0 for an index that was never published.
func (ix *Index) Version() uint64 {
	return ix.version
}

// Attributions returns the distinct non-empty attribution labels of the
// indexed entries in sorted order. The slice must not be modified.
func (ix *Index) Attributions() []string {
	return ix.attributions
}

// MassRange returns the smallest and largest indexed neutral mass.
func (ix *Index) MassRange() (lo, hi float64, ok bool) {
	if len(ix.masses) == 0 {
		return 0, 0, false
	}
	return ix.masses[0], ix.masses[len(ix.masses)-1], true
}
