package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ChrisMcGann/msdb/pkg/core"
)

// Store reads reference entries from a library database written by Writer.
type Store struct {
	db   *sql.DB
	path string
}

// Summary describes the contents of a library database.
type Summary struct {
	Entries          int
	WithRT           int
	MinMass, MaxMass float64
	Attributions     map[string]int
	Description      string
	CreationDate     string
}

// Open opens a library database read-only.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Entries loads every reference entry ordered by neutral mass.
func (s *Store) Entries(ctx context.Context) ([]core.ReferenceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT Identifier, Name, Formula, NeutralMass, RetentionTime,
		       PrecursorIonType, SourceFile
		FROM CompoundTable
		ORDER BY NeutralMass, Identifier
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []core.ReferenceEntry
	for rows.Next() {
		var (
			e                      core.ReferenceEntry
			name, formula, ionType sql.NullString
			sourceFile             sql.NullString
			rt                     sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &name, &formula, &e.NeutralMass, &rt, &ionType, &sourceFile); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.Name = name.String
		e.Composition = formula.String
		e.Attribution = ionType.String
		e.SourceFile = sourceFile.String
		e.SourceFormat = "sqlite"
		if rt.Valid {
			e.RetentionTime = core.Float64(rt.Float64)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entries: %w", err)
	}

	return entries, nil
}

// Summary computes library statistics.
func (s *Store) Summary(ctx context.Context) (*Summary, error) {
	sum := &Summary{Attributions: make(map[string]int)}

	var minMass, maxMass sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(RetentionTime), MIN(NeutralMass), MAX(NeutralMass)
		FROM CompoundTable
	`).Scan(&sum.Entries, &sum.WithRT, &minMass, &maxMass)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize entries: %w", err)
	}
	sum.MinMass = minMass.Float64
	sum.MaxMass = maxMass.Float64

	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(PrecursorIonType, ''), COUNT(*)
		FROM CompoundTable
		GROUP BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count attributions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("failed to scan attribution: %w", err)
		}
		sum.Attributions[label] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var desc, created sql.NullString
	err = s.db.QueryRowContext(ctx, `
		SELECT Description, CreationDate FROM HeaderTable ORDER BY rowid DESC LIMIT 1
	`).Scan(&desc, &created)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	sum.Description = desc.String
	sum.CreationDate = created.String

	return sum, nil
}

// LoadEntries opens path, reads all entries and closes the database.
func LoadEntries(ctx context.Context, path string) ([]core.ReferenceEntry, error) {
	s, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Entries(ctx)
}
