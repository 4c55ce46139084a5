// Package sqlite provides SQLite storage for compound reference libraries
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ChrisMcGann/msdb/pkg/core"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// Date format for HeaderTable (ISO 8601)
	headerDateFormat = "2006-01-02"
	// Date format for MaintenanceTable (space-separated)
	maintenanceDateFormat = "2006 01 02"

	schemaVersion = 1
)

const schema = `
	CREATE TABLE IF NOT EXISTS CompoundTable (
		CompoundId INTEGER PRIMARY KEY,
		Identifier TEXT NOT NULL UNIQUE,
		Name TEXT,
		Formula TEXT,
		NeutralMass DOUBLE NOT NULL,
		RetentionTime DOUBLE,
		PrecursorIonType TEXT,
		SourceFile TEXT,
		SourceFormat TEXT
	);

	CREATE INDEX IF NOT EXISTS CompoundNeutralMass ON CompoundTable (NeutralMass);

	CREATE TABLE IF NOT EXISTS HeaderTable (
		version INTEGER NOT NULL DEFAULT 0,
		CreationDate TEXT,
		LastModifiedDate TEXT,
		Description TEXT,
		EntryCount INTEGER
	);

	CREATE TABLE IF NOT EXISTS MaintenanceTable (
		CreationDate TEXT,
		NoofCompoundsModified INTEGER,
		Description TEXT
	);
	`

// Writer handles writing reference entries to SQLite database files
type Writer struct {
	db          *sql.DB
	tx          *sql.Tx
	outputPath  string
	description string
	entryStmt   *sql.Stmt
	count       int
	closed      bool
}

// NewWriter creates a new SQLite writer. All entries are written in a single
// transaction committed by Finalize.
func NewWriter(outputPath, description string) (*Writer, error) {
	db, err := sql.Open("sqlite3", outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	w := &Writer{
		db:          db,
		outputPath:  outputPath,
		description: description,
	}

	if err := w.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	if err := w.prepareStatements(); err != nil {
		db.Close()
		return nil, err
	}

	return w, nil
}

// createTables creates the required database schema
func (w *Writer) createTables() error {
	_, err := w.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

// prepareStatements opens the import transaction and prepares the insert
func (w *Writer) prepareStatements() error {
	var err error

	w.tx, err = w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	w.entryStmt, err = w.tx.Prepare(`
		INSERT INTO CompoundTable (
			Identifier, Name, Formula, NeutralMass, RetentionTime,
			PrecursorIonType, SourceFile, SourceFormat
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		w.tx.Rollback()
		return fmt.Errorf("failed to prepare entry statement: %w", err)
	}

	return nil
}

// WriteEntry writes a single reference entry to the database
func (w *Writer) WriteEntry(entry *core.ReferenceEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	// Handle optional retention time
	var rt interface{} = nil
	if entry.RetentionTime != nil {
		rt = *entry.RetentionTime
	}

	_, err := w.entryStmt.Exec(
		entry.ID,           // Identifier
		entry.Name,         // Name
		entry.Composition,  // Formula
		entry.NeutralMass,  // NeutralMass
		rt,                 // RetentionTime
		entry.Attribution,  // PrecursorIonType
		entry.SourceFile,   // SourceFile
		entry.SourceFormat, // SourceFormat
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry %s: %w", entry.ID, err)
	}

	w.count++
	return nil
}

// Count returns the number of entries written so far
func (w *Writer) Count() int {
	return w.count
}

// Finalize commits the entries, writes the header and maintenance tables and
// closes the database
func (w *Writer) Finalize() error {
	if w.closed {
		return nil
	}
	w.closed = true

	now := time.Now()

	// Write HeaderTable
	_, err := w.tx.Exec(`
		INSERT INTO HeaderTable (version, CreationDate, LastModifiedDate, Description, EntryCount)
		VALUES (?, ?, ?, ?, ?)
	`, schemaVersion, now.Format(headerDateFormat), now.Format(headerDateFormat), w.description, w.count)
	if err != nil {
		w.abort()
		return fmt.Errorf("failed to insert header: %w", err)
	}

	// Write MaintenanceTable
	_, err = w.tx.Exec(`
		INSERT INTO MaintenanceTable (CreationDate, NoofCompoundsModified, Description)
		VALUES (?, ?, ?)
	`, now.Format(maintenanceDateFormat), w.count, "import")
	if err != nil {
		w.abort()
		return fmt.Errorf("failed to insert maintenance: %w", err)
	}

	// Close prepared statement
	if w.entryStmt != nil {
		w.entryStmt.Close()
	}

	if err := w.tx.Commit(); err != nil {
		w.db.Close()
		return fmt.Errorf("failed to commit entries: %w", err)
	}

	// Close database
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

// abort rolls back the import and closes the database
func (w *Writer) abort() {
	if w.entryStmt != nil {
		w.entryStmt.Close()
	}
	w.tx.Rollback()
	w.db.Close()
}

// Close discards uncommitted entries if Finalize was not called
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.abort()
	return nil
}
