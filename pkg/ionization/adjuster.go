// Package ionization converts neutral theoretical masses into the m/z
// expected for an ionization mode, and back.
package ionization

import (
	"fmt"

	"github.com/ChrisMcGann/msdb/pkg/core"
)

// Default adduct rule names per mode.
const (
	DefaultPositive = "[M+H]+"
	DefaultNegative = "[M-H]-"
)

// Adjuster applies one adduct rule per ionization mode. An adjuster built
// from a database also resolves entry attribution labels to adducts.
type Adjuster struct {
	positive core.Adduct
	negative core.Adduct
	adducts  *core.AdductDatabase
}

// NewAdjuster creates an adjuster from explicit rules. The positive rule must
// carry a positive charge and the negative rule a negative one.
func NewAdjuster(positive, negative core.Adduct) (*Adjuster, error) {
	for _, a := range []core.Adduct{positive, negative} {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("invalid adduct rule: %w", err)
		}
	}
	if positive.Polarity() != core.ModePositive {
		return nil, fmt.Errorf("adduct %s cannot be used for positive mode", positive.Name)
	}
	if negative.Polarity() != core.ModeNegative {
		return nil, fmt.Errorf("adduct %s cannot be used for negative mode", negative.Name)
	}
	return &Adjuster{positive: positive, negative: negative}, nil
}

// FromDatabase creates an adjuster from adduct names registered in db.
func FromDatabase(db *core.AdductDatabase, positive, negative string) (*Adjuster, error) {
	pos, ok := db.Get(positive)
	if !ok {
		return nil, fmt.Errorf("unknown adduct '%s'", positive)
	}
	neg, ok := db.Get(negative)
	if !ok {
		return nil, fmt.Errorf("unknown adduct '%s'", negative)
	}
	adj, err := NewAdjuster(pos, neg)
	if err != nil {
		return nil, err
	}
	adj.adducts = db
	return adj, nil
}

// Default returns the proton adduct/loss adjuster.
func Default() *Adjuster {
	adj, err := FromDatabase(core.DefaultAdductDatabase(), DefaultPositive, DefaultNegative)
	if err != nil {
		panic(err)
	}
	return adj
}

// Rule returns the adduct applied for mode.
func (a *Adjuster) Rule(mode core.Mode) (core.Adduct, error) {
	if !mode.Valid() {
		return core.Adduct{}, &core.UnsupportedModeError{Mode: mode.String()}
	}
	if mode == core.ModeNegative {
		return a.negative, nil
	}
	return a.positive, nil
}

// Resolve returns the adduct named by an attribution label. Labels are only
// resolved by adjusters built with FromDatabase; unknown labels and adducts
// that cannot be applied report false.
func (a *Adjuster) Resolve(label string) (core.Adduct, bool) {
	if a.adducts == nil || label == "" {
		return core.Adduct{}, false
	}
	adduct, ok := a.adducts.Get(label)
	if !ok || adduct.Validate() != nil {
		return core.Adduct{}, false
	}
	return adduct, true
}

// Adjust converts a neutral mass to the m/z expected in mode.
func (a *Adjuster) Adjust(neutral float64, mode core.Mode) (float64, error) {
	rule, err := a.Rule(mode)
	if err != nil {
		return 0, err
	}
	return rule.MZ(neutral), nil
}

// Neutral converts an m/z observed in mode back to a neutral mass.
func (a *Adjuster) Neutral(mz float64, mode core.Mode) (float64, error) {
	rule, err := a.Rule(mode)
	if err != nil {
		return 0, err
	}
	return rule.Neutral(mz), nil
}
