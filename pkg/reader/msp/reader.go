// Package msp provides streaming readers for MSP (NIST/MoNA) format compound libraries
package msp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/msdb/pkg/core"
)

// Reader provides streaming access to MSP format files
type Reader struct {
	scanner      *bufio.Scanner
	lineNum      int
	entryNum     int
	currentEntry *core.ReferenceEntry
	err          error
}

// NewReader creates a new MSP reader
func NewReader(r io.Reader) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	return &Reader{
		scanner: scanner,
	}
}

// Next advances to the next entry. Returns false when no more entries or error.
func (r *Reader) Next() bool {
	r.currentEntry = nil

	entry, err := r.readEntry()
	if err != nil {
		if err != io.EOF {
			r.err = err
		}
		return false
	}

	r.currentEntry = entry
	return true
}

// Entry returns the current entry
func (r *Reader) Entry() *core.ReferenceEntry {
	return r.currentEntry
}

// Err returns any error encountered during reading
func (r *Reader) Err() error {
	return r.err
}

// readEntry reads a single compound record from the MSP file. Records are
// separated by blank lines; peak lists are skipped.
func (r *Reader) readEntry() (*core.ReferenceEntry, error) {
	entry := &core.ReferenceEntry{
		SourceFormat: "msp",
	}

	started := false
	inPeaks := false

	for r.scanner.Scan() {
		r.lineNum++
		line := strings.TrimSpace(r.scanner.Text())

		// Skip empty lines between entries
		if line == "" {
			if started {
				return r.finish(entry)
			}
			continue
		}
		started = true

		if inPeaks {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("line %d: expected 'Key: value', got '%s'", r.lineNum, line)
		}
		value = strings.TrimSpace(value)

		switch normalizeKey(key) {
		case "name":
			entry.Name = value
		case "db#", "id", "accession", "compoundid":
			entry.ID = value
		case "formula":
			entry.Composition = value
		case "exactmass", "monoisotopicmass":
			mass, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid exact mass '%s': %w", r.lineNum, value, err)
			}
			entry.NeutralMass = mass
		case "mw":
			// Skip MW, it is usually the nominal mass
		case "precursortype", "adduct":
			entry.Attribution = value
		case "retentiontime", "rt", "rtinseconds":
			rt, err := parseRetentionTime(value)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", r.lineNum, err)
			}
			entry.RetentionTime = &rt
		case "numpeaks":
			inPeaks = true
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	// If we have a partially read entry, return it
	if started {
		return r.finish(entry)
	}

	return nil, io.EOF
}

// finish fills derived fields once a record is complete
func (r *Reader) finish(entry *core.ReferenceEntry) (*core.ReferenceEntry, error) {
	r.entryNum++

	if entry.ID == "" {
		entry.ID = fmt.Sprintf("MSP%06d", r.entryNum)
	}

	// Calculate neutral mass from formula when no exact mass is given
	if entry.NeutralMass == 0 && entry.Composition != "" {
		mass, err := core.CalculateFormulaMass(entry.Composition)
		if err != nil {
			return nil, fmt.Errorf("line %d: entry %s: %w", r.lineNum, entry.ID, err)
		}
		entry.NeutralMass = mass
	}

	return entry, nil
}

// normalizeKey lowercases a header key and removes spaces and underscores
func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	key = strings.ReplaceAll(key, " ", "")
	return strings.ReplaceAll(key, "_", "")
}

// parseRetentionTime parses values like "5.32" or "5.32 min"
func parseRetentionTime(value string) (float64, error) {
	fields := strings.Fields(value)
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty retention time")
	}
	rt, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid retention time '%s': %w", value, err)
	}
	return rt, nil
}
