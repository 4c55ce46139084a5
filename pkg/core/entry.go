// Package core provides the data model and validation logic for reference
// entries, peak queries and match records used by msdb.
package core

import (
	"fmt"
	"math"
	"strings"
)

// ReferenceEntry represents a single compound of the reference library.
type ReferenceEntry struct {
	// Required fields
	ID          string  // Unique identifier
	NeutralMass float64 // Theoretical neutral monoisotopic mass

	// Optional metadata
	Name          string
	RetentionTime *float64 // RT in the library's time unit
	Attribution   string   // Ionized species label (e.g., "[M+H]+")
	Composition   string   // Elemental formula

	// Internal tracking
	SourceFile   string
	SourceFormat string // msp, sqlite
}

// Query represents one observed peak to annotate.
type Query struct {
	MZ float64  // Observed m/z, required
	RT *float64 // Observed retention time, optional
}

// MatchRecord describes one reference entry admitted for one query.
type MatchRecord struct {
	QueryIndex    int
	EntryID       string
	QueryMZ       float64 // Original query m/z
	TheoreticalMZ float64 // Adjusted theoretical m/z used in the comparison
	Attribution   string
	Composition   string
}

// Mode is the ionization polarity shared by all queries of one search.
type Mode int

const (
	ModePositive Mode = iota + 1
	ModeNegative
)

func (m Mode) String() string {
	switch m {
	case ModePositive:
		return "positive"
	case ModeNegative:
		return "negative"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Valid reports whether m is one of the supported polarities.
func (m Mode) Valid() bool {
	return m == ModePositive || m == ModeNegative
}

// ParseMode converts a user-facing mode name to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pos", "positive", "+":
		return ModePositive, nil
	case "neg", "negative", "-":
		return ModeNegative, nil
	default:
		return 0, &UnsupportedModeError{Mode: s}
	}
}

// Field names a column of peak lists and result tables.
type Field int

const (
	FieldMOLID Field = iota
	FieldMZ
	FieldMZTHEO
	FieldATTR
	FieldCOMP
	FieldRT
)

var fieldNames = [...]string{
	FieldMOLID:  "MOLID",
	FieldMZ:     "MZ",
	FieldMZTHEO: "MZTHEO",
	FieldATTR:   "ATTR",
	FieldCOMP:   "COMP",
	FieldRT:     "RT",
}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// OutputFields lists the result table columns in output order.
var OutputFields = []Field{FieldMOLID, FieldMZ, FieldMZTHEO, FieldATTR, FieldCOMP}

// ValidationError represents an error found during entry validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// Validate checks that an entry meets all requirements for indexing.
func (e *ReferenceEntry) Validate() error {
	var errs []string

	if e.ID == "" {
		errs = append(errs, "identifier is required")
	}
	if math.IsNaN(e.NeutralMass) || math.IsInf(e.NeutralMass, 0) {
		errs = append(errs, "neutral mass must be finite")
	} else if e.NeutralMass <= 0 {
		errs = append(errs, "neutral mass must be positive")
	}
	if e.RetentionTime != nil {
		rt := *e.RetentionTime
		if math.IsNaN(rt) || math.IsInf(rt, 0) || rt < 0 {
			errs = append(errs, "retention time must be finite and non-negative")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "ReferenceEntry " + e.ID,
			Message: strings.Join(errs, "; "),
		}
	}

	return nil
}

// HasRetentionTime reports whether the entry carries a retention time.
func (e *ReferenceEntry) HasRetentionTime() bool {
	return e.RetentionTime != nil
}

// Label returns the entry name in format "Name (ID)", or the ID alone
func (e *ReferenceEntry) Label() string {
	if e.Name == "" {
		return e.ID
	}
	return fmt.Sprintf("%s (%s)", e.Name, e.ID)
}

// ValidMZ reports whether the query carries a usable m/z value.
func (q Query) ValidMZ() bool {
	return !math.IsNaN(q.MZ) && !math.IsInf(q.MZ, 0) && q.MZ > 0
}

// Float64 returns a pointer to v, for optional fields.
func Float64(v float64) *float64 {
	return &v
}
