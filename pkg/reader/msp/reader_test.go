package msp

import (
	"math"
	"strings"
	"testing"
)

const library = `Name: Glucose
DB#: PF000001
Formula: C6H12O6
ExactMass: 180.06339
Precursor_type: [M+H]+
Retention_time: 2.5 min
Num Peaks: 2
85.03 100
127.04 45

Name: Alanine
Formula: C3H7NO2
MW: 89
Num Peaks: 1
44.05 999; 90.05 20;

Name: Unknown thing
ID: X1
ExactMass: 250.5
`

func TestReader(t *testing.T) {
	r := NewReader(strings.NewReader(library))

	var names []string
	for r.Next() {
		names = append(names, r.Entry().Name)
		entry := r.Entry()

		switch entry.Name {
		case "Glucose":
			if entry.ID != "PF000001" {
				t.Errorf("Expected ID PF000001, got %s", entry.ID)
			}
			if entry.NeutralMass != 180.06339 {
				t.Errorf("Expected mass 180.06339, got %f", entry.NeutralMass)
			}
			if entry.Attribution != "[M+H]+" {
				t.Errorf("Expected attribution [M+H]+, got %s", entry.Attribution)
			}
			if entry.RetentionTime == nil || *entry.RetentionTime != 2.5 {
				t.Errorf("Expected RT 2.5, got %v", entry.RetentionTime)
			}
		case "Alanine":
			if entry.ID != "MSP000002" {
				t.Errorf("Expected generated ID MSP000002, got %s", entry.ID)
			}
			// Computed from formula, MW is ignored
			if math.Abs(entry.NeutralMass-89.0477) > 0.0001 {
				t.Errorf("Expected mass 89.0477, got %f", entry.NeutralMass)
			}
			if entry.RetentionTime != nil {
				t.Errorf("Expected no RT, got %v", *entry.RetentionTime)
			}
		case "Unknown thing":
			if entry.ID != "X1" || entry.NeutralMass != 250.5 {
				t.Errorf("Unexpected entry %+v", entry)
			}
		}

		if entry.SourceFormat != "msp" {
			t.Errorf("Expected source format msp, got %s", entry.SourceFormat)
		}
	}

	if err := r.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("Expected 3 entries, got %d: %v", len(names), names)
	}
}

func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"bad exact mass", "Name: A\nExactMass: abc\n"},
		{"bad retention time", "Name: A\nRT: soon\n"},
		{"missing colon", "Name: A\nthis is not a header\n"},
		{"bad formula", "Name: A\nFormula: C6Qq\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(strings.NewReader(tt.input))
			for r.Next() {
			}
			if r.Err() == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestReaderEmpty(t *testing.T) {
	r := NewReader(strings.NewReader("\n\n"))
	if r.Next() {
		t.Error("Expected no entries")
	}
	if r.Err() != nil {
		t.Errorf("Expected no error, got %v", r.Err())
	}
}
