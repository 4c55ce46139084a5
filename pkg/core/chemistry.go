// Package core provides chemistry calculations for compound mass calculations
package core

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"unicode"
)

// Atomic masses (monoisotopic)
const (
	MassH  = 1.0078250321
	MassC  = 12.0000000000
	MassN  = 14.0030740052
	MassO  = 15.9949146221
	MassS  = 31.9720706900
	MassP  = 30.9737615100
	MassF  = 18.9984032000
	MassCl = 34.9688527100
	MassBr = 78.9183376000
	MassI  = 126.9044680000
	MassNa = 22.9897692809
	MassK  = 38.9637069000
	MassSi = 27.9769265325
	MassSe = 79.9165213000

	// Proton mass for charge calculations
	ProtonMass = 1.00727646688

	ElectronMass = 0.00054857990946
)

// ElementMasses maps element symbols to their most abundant isotope mass
var ElementMasses = map[string]float64{
	"H":  MassH,
	"C":  MassC,
	"N":  MassN,
	"O":  MassO,
	"S":  MassS,
	"P":  MassP,
	"F":  MassF,
	"Cl": MassCl,
	"Br": MassBr,
	"I":  MassI,
	"Na": MassNa,
	"K":  MassK,
	"Si": MassSi,
	"Se": MassSe,
}

// Composition stores elemental composition as symbol -> atom count
type Composition map[string]int

// ParseFormula parses a flat elemental formula such as "C6H12O6" or "C2H3Cl".
// Parentheses, isotopes and charges are not supported.
func ParseFormula(formula string) (Composition, error) {
	comp := make(Composition)
	runes := []rune(formula)

	for i := 0; i < len(runes); {
		r := runes[i]
		if unicode.IsSpace(r) {
			i++
			continue
		}
		if !unicode.IsUpper(r) {
			return nil, fmt.Errorf("invalid formula '%s': unexpected '%c' at %d", formula, r, i)
		}

		symbol := string(r)
		i++
		if i < len(runes) && unicode.IsLower(runes[i]) {
			symbol += string(runes[i])
			i++
		}
		if _, ok := ElementMasses[symbol]; !ok {
			return nil, fmt.Errorf("invalid formula '%s': unknown element '%s'", formula, symbol)
		}

		count := 0
		for i < len(runes) && unicode.IsDigit(runes[i]) {
			count = count*10 + int(runes[i]-'0')
			i++
		}
		if count == 0 {
			count = 1
		}
		comp[symbol] += count
	}

	if len(comp) == 0 {
		return nil, fmt.Errorf("invalid formula '%s': no elements", formula)
	}

	return comp, nil
}

// Mass returns the monoisotopic mass of the composition. Elements are summed
// in symbol order so the result does not depend on map iteration.
func (c Composition) Mass() float64 {
	mass := 0.0
	for _, symbol := range slices.Sorted(maps.Keys(c)) {
		mass += float64(c[symbol]) * ElementMasses[symbol]
	}
	return mass
}

// CalculateFormulaMass computes the neutral monoisotopic mass of a formula
func CalculateFormulaMass(formula string) (float64, error) {
	comp, err := ParseFormula(formula)
	if err != nil {
		return 0, err
	}
	return comp.Mass(), nil
}

// RoundFloat rounds a float to n decimal places
func RoundFloat(val float64, precision int) float64 {
	ratio := math.Pow(10, float64(precision))
	return math.Round(val*ratio) / ratio
}
