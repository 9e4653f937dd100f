package models

import "strings"

// SeverityLevel is a normalised ticket severity. Tickets store whatever
// the scanner reported; SeverityLevel is only used to rank and filter.
type SeverityLevel string

const (
	SeverityCritical SeverityLevel = "critical"
	SeverityHigh     SeverityLevel = "high"
	SeverityMedium   SeverityLevel = "medium"
	SeverityLow      SeverityLevel = "low"
	SeverityInfo     SeverityLevel = "info"
	SeverityUnknown  SeverityLevel = "unknown"
)

// Weight returns a numeric weight for sorting (higher = more severe).
func (s SeverityLevel) Weight() int {
	switch s {
	case SeverityCritical:
		return 5
	case SeverityHigh:
		return 4
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// severityAliases maps scanner vocabularies onto SeverityLevel.
var severityAliases = map[string]SeverityLevel{
	"critical":   SeverityCritical,
	"high":       SeverityHigh,
	"error":      SeverityHigh,
	"medium":     SeverityMedium,
	"moderate":   SeverityMedium,
	"warning":    SeverityMedium,
	"low":        SeverityLow,
	"info":       SeverityInfo,
	"negligible": SeverityInfo,
}

// MapSeverity normalises a scanner-specific severity string.
func MapSeverity(raw string) SeverityLevel {
	if lvl, ok := severityAliases[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return lvl
	}
	return SeverityUnknown
}

// SeveritiesAtLeast returns every raw spelling, lowercased, whose level is
// at least min. Unknown min matches nothing.
func SeveritiesAtLeast(min SeverityLevel) []string {
	floor := min.Weight()
	if floor == 0 {
		return nil
	}
	var out []string
	for raw, lvl := range severityAliases {
		if lvl.Weight() >= floor {
			out = append(out, raw)
		}
	}
	return out
}
