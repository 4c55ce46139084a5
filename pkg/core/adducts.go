// Package core provides adduct parsing and management
package core

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Adduct describes how a neutral molecule M becomes an observed ion:
// m/z = (M*Multiplier + Mass) / |Charge|.
type Adduct struct {
	Name       string  // Label such as "[M+H]+"
	Mass       float64 // Mass added to the (multiplied) neutral mass, electrons included
	Charge     int     // Signed charge; its sign gives the polarity
	Multiplier int     // Number of molecules in the ion, 1 for monomers
}

// Polarity returns the ionization mode implied by the adduct charge.
func (a Adduct) Polarity() Mode {
	if a.Charge < 0 {
		return ModeNegative
	}
	return ModePositive
}

// MZ converts a neutral mass to the m/z of this ion.
func (a Adduct) MZ(neutral float64) float64 {
	return (neutral*float64(a.Multiplier) + a.Mass) / math.Abs(float64(a.Charge))
}

// Neutral converts an observed m/z back to the neutral mass of M.
func (a Adduct) Neutral(mz float64) float64 {
	return (mz*math.Abs(float64(a.Charge)) - a.Mass) / float64(a.Multiplier)
}

// Validate checks that the adduct can be applied.
func (a Adduct) Validate() error {
	if a.Name == "" {
		return &ValidationError{Field: "Adduct", Message: "name is required"}
	}
	if a.Charge == 0 {
		return &ValidationError{Field: "Adduct " + a.Name, Message: "charge must be non-zero"}
	}
	if a.Multiplier <= 0 {
		return &ValidationError{Field: "Adduct " + a.Name, Message: "multiplier must be positive"}
	}
	if math.IsNaN(a.Mass) || math.IsInf(a.Mass, 0) {
		return &ValidationError{Field: "Adduct " + a.Name, Message: "mass must be finite"}
	}
	return nil
}

// AdductDatabase stores adduct definitions
type AdductDatabase struct {
	adducts map[string]Adduct // name -> adduct
}

// NewAdductDatabase creates an empty adduct database
func NewAdductDatabase() *AdductDatabase {
	return &AdductDatabase{
		adducts: make(map[string]Adduct),
	}
}

// LoadFromCSV loads adducts from a CSV file (format: name,mass,charge[,multiplier])
func (db *AdductDatabase) LoadFromCSV(r io.Reader) error {
	scanner := bufio.NewScanner(r)

	// Skip header line
	scanner.Scan()

	lineNum := 1
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 3 {
			return fmt.Errorf("line %d: invalid format, expected at least 3 comma-separated fields", lineNum)
		}

		name := strings.TrimSpace(parts[0])
		massStr := strings.TrimSpace(parts[1])
		chargeStr := strings.TrimSpace(parts[2])

		mass, err := strconv.ParseFloat(massStr, 64)
		if err != nil {
			return fmt.Errorf("line %d: invalid mass value '%s': %w", lineNum, massStr, err)
		}

		charge, err := strconv.Atoi(chargeStr)
		if err != nil {
			return fmt.Errorf("line %d: invalid charge value '%s': %w", lineNum, chargeStr, err)
		}

		multiplier := 1
		if len(parts) > 3 && strings.TrimSpace(parts[3]) != "" {
			multStr := strings.TrimSpace(parts[3])
			multiplier, err = strconv.Atoi(multStr)
			if err != nil {
				return fmt.Errorf("line %d: invalid multiplier value '%s': %w", lineNum, multStr, err)
			}
		}

		a := Adduct{Name: name, Mass: mass, Charge: charge, Multiplier: multiplier}
		if err := a.Validate(); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
		db.adducts[name] = a
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading CSV: %w", err)
	}

	return nil
}

// Get returns the adduct registered under name
func (db *AdductDatabase) Get(name string) (Adduct, bool) {
	a, ok := db.adducts[name]
	return a, ok
}

// Add adds or updates an adduct
func (db *AdductDatabase) Add(a Adduct) {
	if a.Multiplier == 0 {
		a.Multiplier = 1
	}
	db.adducts[a.Name] = a
}

// Names returns the registered adduct names in sorted order
func (db *AdductDatabase) Names() []string {
	names := make([]string, 0, len(db.adducts))
	for name := range db.adducts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultAdductDatabase returns an AdductDatabase pre-loaded with common ESI adducts
func DefaultAdductDatabase() *AdductDatabase {
	db := NewAdductDatabase()

	// Positive mode
	db.Add(Adduct{Name: "[M+H]+", Mass: ProtonMass, Charge: 1})
	db.Add(Adduct{Name: "[M+Na]+", Mass: MassNa - ElectronMass, Charge: 1})
	db.Add(Adduct{Name: "[M+K]+", Mass: MassK - ElectronMass, Charge: 1})
	db.Add(Adduct{Name: "[M+NH4]+", Mass: MassN + 4*MassH - ElectronMass, Charge: 1})
	db.Add(Adduct{Name: "[M+H-H2O]+", Mass: ProtonMass - 2*MassH - MassO, Charge: 1})
	db.Add(Adduct{Name: "[M+2H]2+", Mass: 2 * ProtonMass, Charge: 2})
	db.Add(Adduct{Name: "[2M+H]+", Mass: ProtonMass, Charge: 1, Multiplier: 2})
	db.Add(Adduct{Name: "[M]+", Mass: -ElectronMass, Charge: 1})

	// Negative mode
	db.Add(Adduct{Name: "[M-H]-", Mass: -ProtonMass, Charge: -1})
	db.Add(Adduct{Name: "[M+Cl]-", Mass: MassCl + ElectronMass, Charge: -1})
	db.Add(Adduct{Name: "[M+FA-H]-", Mass: MassC + 2*MassH + 2*MassO - ProtonMass, Charge: -1})
	db.Add(Adduct{Name: "[M-H-H2O]-", Mass: -ProtonMass - 2*MassH - MassO, Charge: -1})
	db.Add(Adduct{Name: "[M-2H]2-", Mass: -2 * ProtonMass, Charge: -2})
	db.Add(Adduct{Name: "[2M-H]-", Mass: -ProtonMass, Charge: -1, Multiplier: 2})
	db.Add(Adduct{Name: "[M]-", Mass: ElectronMass, Charge: -1})

	return db
}
