package liveness

import "fmt"

// Known prediction tags.
const (
	TagReal    = "REAL"
	TagSpoof   = "SPOOF"
	TagUnknown = "UNKNOWN"
)

type Severity int

const (
	SeverityNeutral Severity = iota
	SeverityPositive
	SeverityNegative
)

func (s Severity) String() string {
	switch s {
	case SeverityPositive:
		return "positive"
	case SeverityNegative:
		return "negative"
	default:
		return "neutral"
	}
}

// Color is the badge background used for the severity.
func (s Severity) Color() string {
	switch s {
	case SeverityPositive:
		return "#28a745"
	case SeverityNegative:
		return "#dc3545"
	default:
		return "#ffc107"
	}
}

// SeverityForTag maps any tag to exactly one severity.
func SeverityForTag(tag string) Severity {
	switch tag {
	case TagReal:
		return SeverityPositive
	case TagSpoof:
		return SeverityNegative
	default:
		return SeverityNeutral
	}
}

// Verdict is the display projection of a successful response.
type Verdict struct {
	Tag        string
	Severity   Severity
	Confidence float64
}

// DisplayedConfidence renders the confidence as a percentage, e.g. "97.00%".
func (v Verdict) DisplayedConfidence() string {
	return fmt.Sprintf("%.2f%%", v.Confidence*100)
}
