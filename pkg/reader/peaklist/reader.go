// Package peaklist reads observed peaks (m/z and optional retention time)
// from CSV or TSV files with a header line.
package peaklist

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ChrisMcGann/msdb/pkg/core"
)

// Column names accepted for each field, compared case-insensitively.
var (
	mzColumns = []string{"mz", "m/z", "mass", "precursormz"}
	rtColumns = []string{"rt", "retentiontime", "retention_time", "rtinseconds"}
)

// Read parses a peak list. The delimiter (tab, comma or semicolon) is
// detected from the header line. A missing m/z column or an empty m/z cell
// yields a *core.MissingFieldError.
func Read(r io.Reader) ([]core.Query, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(4096)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	cr := csv.NewReader(br)
	cr.Comma = detectDelimiter(string(header))
	cr.Comment = '#'
	// A tab counts as leading space, so trimming would swallow empty TSV cells.
	cr.TrimLeadingSpace = cr.Comma != '\t'
	cr.FieldsPerRecord = -1

	columns, err := cr.Read()
	if err == io.EOF {
		return nil, &core.MissingFieldError{Field: core.FieldMZ, Index: -1}
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	mzCol := findColumn(columns, mzColumns)
	if mzCol < 0 {
		return nil, &core.MissingFieldError{Field: core.FieldMZ, Index: -1}
	}
	rtCol := findColumn(columns, rtColumns)

	var queries []core.Query
	for row := 0; ; row++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row+1, err)
		}

		mzStr := cell(record, mzCol)
		if mzStr == "" {
			return nil, &core.MissingFieldError{Field: core.FieldMZ, Index: row}
		}
		mz, err := strconv.ParseFloat(mzStr, 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid m/z value '%s': %w", row+1, mzStr, err)
		}

		q := core.Query{MZ: mz}
		if rtCol >= 0 {
			if rtStr := cell(record, rtCol); rtStr != "" {
				rt, err := strconv.ParseFloat(rtStr, 64)
				if err != nil {
					return nil, fmt.Errorf("row %d: invalid retention time '%s': %w", row+1, rtStr, err)
				}
				q.RT = &rt
			}
		}
		queries = append(queries, q)
	}

	return queries, nil
}

func detectDelimiter(sample string) rune {
	var line string
	for _, l := range strings.Split(sample, "\n") {
		l = strings.TrimSpace(l)
		if l != "" && !strings.HasPrefix(l, "#") {
			line = l
			break
		}
	}
	switch {
	case strings.Contains(line, "\t"):
		return '\t'
	case strings.Contains(line, ";"):
		return ';'
	default:
		return ','
	}
}

func findColumn(columns []string, names []string) int {
	for i, c := range columns {
		c = strings.ToLower(strings.TrimSpace(c))
		for _, name := range names {
			if c == name {
				return i
			}
		}
	}
	return -1
}

func cell(record []string, col int) string {
	if col >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[col])
}
