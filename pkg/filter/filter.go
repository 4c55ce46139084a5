// Package filter provides reference entry filtering and normalization functions
package filter

import (
	"strings"

	"github.com/ChrisMcGann/msdb/pkg/core"
)

// Config holds filtering configuration
type Config struct {
	MinMass      float64  // Keep only entries with neutral mass >= MinMass (0 = no lower bound)
	MaxMass      float64  // Keep only entries with neutral mass <= MaxMass (0 = no upper bound)
	Attributions []string // Keep only entries with these attribution labels (nil = all)
	RequireRT    bool     // Keep only entries carrying a retention time
	RTOffset     float64  // Added to every retention time (e.g., to align gradients)
}

// Apply applies all configured filters to a list of entries and returns the
// entries that were kept. The input slice is not modified.
func (c *Config) Apply(entries []core.ReferenceEntry) []core.ReferenceEntry {
	kept := make([]core.ReferenceEntry, 0, len(entries))

	for _, entry := range entries {
		if !c.Keep(&entry) {
			continue
		}

		// Apply retention time offset if configured
		if c.RTOffset != 0 && entry.HasRetentionTime() {
			rt := *entry.RetentionTime + c.RTOffset
			entry.RetentionTime = &rt
		}

		kept = append(kept, entry)
	}

	return kept
}

// Keep reports whether a single entry passes all configured filters
func (c *Config) Keep(entry *core.ReferenceEntry) bool {
	if c.MinMass > 0 && entry.NeutralMass < c.MinMass {
		return false
	}
	if c.MaxMass > 0 && entry.NeutralMass > c.MaxMass {
		return false
	}
	if c.RequireRT && !entry.HasRetentionTime() {
		return false
	}
	if len(c.Attributions) > 0 && !matchesAttribution(entry.Attribution, c.Attributions) {
		return false
	}
	return true
}

// matchesAttribution checks if a label matches any of the allowed attributions
func matchesAttribution(label string, allowed []string) bool {
	if label == "" {
		return false
	}

	for _, a := range allowed {
		if strings.EqualFold(normalizeAttribution(label), normalizeAttribution(a)) {
			return true
		}
	}
	return false
}

// normalizeAttribution strips brackets and whitespace so that "M+H" and
// "[M+H]+" compare equal.
func normalizeAttribution(label string) string {
	label = strings.TrimSpace(label)
	label = strings.TrimLeft(label, "[")
	if idx := strings.LastIndex(label, "]"); idx >= 0 {
		label = label[:idx]
	}
	return strings.ReplaceAll(label, " ", "")
}

// RemoveInvalidEntries removes entries that fail validation and returns the
// number of entries removed
func RemoveInvalidEntries(entries []core.ReferenceEntry) ([]core.ReferenceEntry, int) {
	var filtered []core.ReferenceEntry
	removed := 0
	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			removed++
			continue
		}
		filtered = append(filtered, entry)
	}
	return filtered, removed
}

// DeduplicateByID keeps the first entry for every identifier and returns the
// number of duplicates dropped
func DeduplicateByID(entries []core.ReferenceEntry) ([]core.ReferenceEntry, int) {
	seen := make(map[string]struct{}, len(entries))
	var filtered []core.ReferenceEntry
	dropped := 0
	for _, entry := range entries {
		if _, ok := seen[entry.ID]; ok {
			dropped++
			continue
		}
		seen[entry.ID] = struct{}{}
		filtered = append(filtered, entry)
	}
	return filtered, dropped
}
