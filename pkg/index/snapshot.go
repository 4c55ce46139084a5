package index

import (
	"sync/atomic"

	"github.com/ChrisMcGann/msdb/pkg/core"
)

// Snapshot publishes the current Index to concurrent readers. Readers never
// lock; Rebuild builds a fresh Index and swaps it in atomically, so searches
// already running keep the Index they loaded.
type Snapshot struct {
	current atomic.Pointer[Index]
	version atomic.Uint64
}

// NewSnapshot returns an empty holder. Load fails until Store or Rebuild.
func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// Load returns the current index.
func (s *Snapshot) Load() (*Index, error) {
	ix := s.current.Load()
	if ix == nil {
		return nil, &core.IndexUnavailableError{Reason: "reference index has not been built"}
	}
	return ix, nil
}

// Store publishes ix, replacing the previous index.
func (s *Snapshot) Store(ix *Index) {
	s.publish(ix)
}

// publish stores a copy of ix stamped with the next version and returns it.
// The copy shares the immutable entry slices.
func (s *Snapshot) publish(ix *Index) *Index {
	stamped := *ix
	stamped.version = s.version.Add(1)
	s.current.Store(&stamped)
	return &stamped
}

// Rebuild builds an index from entries and publishes it. On error the
// previous index stays current. The returned index carries its version.
func (s *Snapshot) Rebuild(entries []core.ReferenceEntry) (*Index, error) {
	ix, err := Build(entries)
	if err != nil {
		return nil, err
	}
	return s.publish(ix), nil
}

// Invalidate drops the current index; subsequent Loads fail.
func (s *Snapshot) Invalidate() {
	s.current.Store(nil)
	s.version.Add(1)
}

// Version counts the publications so far.
func (s *Snapshot) Version() uint64 {
	return s.version.Load()
}
