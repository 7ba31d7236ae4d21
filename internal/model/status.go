package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ResultStatus is the verdict of one dataset analysis.
type ResultStatus string

const (
	StatusNoHitGreen  ResultStatus = "NO-HIT-GREEN"
	StatusNoHitYellow ResultStatus = "NO-HIT-YELLOW"
	StatusHitGreen    ResultStatus = "HIT-GREEN"
	StatusHitYellow   ResultStatus = "HIT-YELLOW"
	StatusHitRed      ResultStatus = "HIT-RED"
	StatusTimeout     ResultStatus = "TIMEOUT"
	StatusError       ResultStatus = "ERROR"
)

// ParseResultStatus converts a configured status string into a ResultStatus.
// Both "HIT-RED" and "HIT_RED" spellings are accepted.
func ParseResultStatus(s string) (ResultStatus, error) {
	norm := ResultStatus(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "_", "-")))
	switch norm {
	case StatusNoHitGreen, StatusNoHitYellow, StatusHitGreen, StatusHitYellow,
		StatusHitRed, StatusTimeout, StatusError:
		return norm, nil
	default:
		return "", eris.Errorf("model: unknown result status %q", s)
	}
}

// IsHit reports whether the status is one of the hit variants.
func (s ResultStatus) IsHit() bool {
	return s == StatusHitGreen || s == StatusHitYellow || s == StatusHitRed
}

// IsNoHit reports whether the status is one of the no-hit variants.
func (s ResultStatus) IsNoHit() bool {
	return s == StatusNoHitGreen || s == StatusNoHitYellow
}

// IsTerminal reports whether the query stage aborted (timeout or error).
func (s ResultStatus) IsTerminal() bool {
	return s == StatusTimeout || s == StatusError
}
