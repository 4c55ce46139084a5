// Package table writes match result tables as TSV, JSON or YAML
package table

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/ChrisMcGann/msdb/pkg/core"
	"github.com/ChrisMcGann/msdb/pkg/match"
)

// Format selects the output encoding
type Format string

const (
	FormatTSV  Format = "tsv"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an output format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTSV, FormatJSON, FormatYAML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("invalid output format '%s', must be tsv, json, or yaml", s)
	}
}

// Write encodes t to w. Digits > 0 rounds the m/z columns in TSV output.
func Write(w io.Writer, t *match.Table, format Format, digits int) error {
	switch format {
	case FormatTSV:
		return writeTSV(w, t, digits)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(t.Columns()); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(t.Columns()); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeTSV(w io.Writer, t *match.Table, digits int) error {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'

	header := make([]string, len(core.OutputFields))
	for i, f := range core.OutputFields {
		header[i] = f.String()
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	c := t.Columns()
	for i := range c.MOLID {
		row := []string{
			c.MOLID[i],
			formatMass(c.MZ[i], digits),
			formatMass(c.MZTHEO[i], digits),
			c.ATTR[i],
			c.COMP[i],
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatMass(v float64, digits int) string {
	if digits > 0 {
		v = core.RoundFloat(v, digits)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
