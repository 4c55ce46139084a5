package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChrisMcGann/msdb/pkg/core"
)

func writeLibrary(t *testing.T, entries []core.ReferenceEntry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.db")

	w, err := NewWriter(path, "test library")
	require.NoError(t, err)
	for i := range entries {
		require.NoError(t, w.WriteEntry(&entries[i]))
	}
	assert.Equal(t, len(entries), w.Count())
	require.NoError(t, w.Finalize())
	require.NoError(t, w.Close())

	return path
}

func TestWriteAndLoadEntries(t *testing.T) {
	path := writeLibrary(t, []core.ReferenceEntry{
		{ID: "PF2", Name: "fructose", NeutralMass: 180.0634, Composition: "C6H12O6", Attribution: "[M+H]+", SourceFile: "lib.msp", SourceFormat: "msp"},
		{ID: "PF1", Name: "alanine", NeutralMass: 89.0477, Composition: "C3H7NO2", RetentionTime: core.Float64(1.5)},
	})

	entries, err := LoadEntries(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "PF1", entries[0].ID)
	require.NotNil(t, entries[0].RetentionTime)
	assert.Equal(t, 1.5, *entries[0].RetentionTime)
	assert.Equal(t, "sqlite", entries[0].SourceFormat)

	assert.Equal(t, "PF2", entries[1].ID)
	assert.Equal(t, "fructose", entries[1].Name)
	assert.Equal(t, 180.0634, entries[1].NeutralMass)
	assert.Equal(t, "C6H12O6", entries[1].Composition)
	assert.Equal(t, "[M+H]+", entries[1].Attribution)
	assert.Equal(t, "lib.msp", entries[1].SourceFile)
	assert.Nil(t, entries[1].RetentionTime)
}

func TestSummary(t *testing.T) {
	path := writeLibrary(t, []core.ReferenceEntry{
		{ID: "A", NeutralMass: 100, Attribution: "[M+H]+", RetentionTime: core.Float64(10)},
		{ID: "B", NeutralMass: 250, Attribution: "[M+H]+"},
		{ID: "C", NeutralMass: 400},
	})

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	sum, err := s.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Entries)
	assert.Equal(t, 1, sum.WithRT)
	assert.Equal(t, 100.0, sum.MinMass)
	assert.Equal(t, 400.0, sum.MaxMass)
	assert.Equal(t, map[string]int{"[M+H]+": 2, "": 1}, sum.Attributions)
	assert.Equal(t, "test library", sum.Description)
	assert.NotEmpty(t, sum.CreationDate)
}

func TestWriterRejectsInvalidAndDuplicateEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	w, err := NewWriter(path, "")
	require.NoError(t, err)
	defer w.Close()

	assert.Error(t, w.WriteEntry(&core.ReferenceEntry{ID: "A"}))

	require.NoError(t, w.WriteEntry(&core.ReferenceEntry{ID: "A", NeutralMass: 100}))
	assert.Error(t, w.WriteEntry(&core.ReferenceEntry{ID: "A", NeutralMass: 200}))
	assert.Equal(t, 1, w.Count())
}

func TestCloseWithoutFinalizeDiscardsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.db")
	w, err := NewWriter(path, "")
	require.NoError(t, err)
	require.NoError(t, w.WriteEntry(&core.ReferenceEntry{ID: "A", NeutralMass: 100}))
	require.NoError(t, w.Close())

	entries, err := LoadEntries(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenMissingDatabase(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.db"))
	assert.Error(t, err)
}
