// Package tolerance computes the admissible m/z interval around a
// theoretical mass under a shift + precision policy.
package tolerance

import (
	"fmt"
	"math"
	"strings"

	"github.com/ChrisMcGann/msdb/pkg/core"
)

// Unit declares how Shift and Precision are interpreted.
type Unit int

const (
	// Absolute interprets shift and precision as mass deltas.
	Absolute Unit = iota + 1
	// PPM interprets shift and precision as parts per million of the
	// theoretical mass.
	PPM
)

func (u Unit) String() string {
	switch u {
	case Absolute:
		return "absolute"
	case PPM:
		return "ppm"
	default:
		return fmt.Sprintf("Unit(%d)", int(u))
	}
}

// ParseUnit converts a configuration value to a Unit.
func ParseUnit(s string) (Unit, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "absolute", "abs", "da", "dalton":
		return Absolute, nil
	case "ppm", "relative":
		return PPM, nil
	default:
		return 0, fmt.Errorf("unknown tolerance unit %q, must be absolute or ppm", s)
	}
}

// Window is the shift + precision policy applied to every comparison.
type Window struct {
	Shift     float64
	Precision float64
	Unit      Unit
}

// Validate rejects negative or non-finite parameters and unknown units.
func (w Window) Validate() error {
	if bad(w.Shift) {
		return &core.InvalidToleranceError{Param: "shift", Value: w.Shift}
	}
	if bad(w.Precision) {
		return &core.InvalidToleranceError{Param: "precision", Value: w.Precision}
	}
	if w.Unit != Absolute && w.Unit != PPM {
		return &core.InvalidToleranceError{Param: "unit " + w.Unit.String(), Value: float64(w.Unit)}
	}
	return nil
}

func bad(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0) || v < 0
}

func (w Window) deltas(theo float64) (shift, delta float64) {
	if w.Unit == PPM {
		return theo * w.Shift * 1e-6, theo * w.Precision * 1e-6
	}
	return w.Shift, w.Precision
}

// Bounds returns the inclusive interval of query values admitted for theo.
func (w Window) Bounds(theo float64) (lo, hi float64) {
	shift, delta := w.deltas(theo)
	center := theo + shift
	return center - delta, center + delta
}

// Admits reports whether query falls inside the window of theo, boundaries
// included.
func (w Window) Admits(theo, query float64) bool {
	lo, hi := w.Bounds(theo)
	return query >= lo && query <= hi
}

// Inverse returns the range of theoretical masses whose window contains
// query. Rounding may move the edges by an ulp, so callers confirm
// candidates with Admits.
func (w Window) Inverse(query float64) (lo, hi float64) {
	if w.Unit == PPM {
		lowFactor := 1 + (w.Shift+w.Precision)*1e-6
		highFactor := 1 + (w.Shift-w.Precision)*1e-6
		lo = query / lowFactor
		if highFactor <= 0 {
			return lo, math.Inf(1)
		}
		return lo, query / highFactor
	}
	return query - w.Shift - w.Precision, query - w.Shift + w.Precision
}
