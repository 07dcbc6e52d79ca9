package domain

import (
	"strings"
	"time"
)

// Comparison is how an alert compares the observed value against its threshold.
type Comparison string

const (
	ComparisonGreaterThan Comparison = "GREATER_THAN"
	ComparisonLessThan    Comparison = "LESS_THAN"
	ComparisonEquals      Comparison = "EQUALS"
)

// SupportedComparisons lists the valid comparison operators.
var SupportedComparisons = []Comparison{ComparisonGreaterThan, ComparisonLessThan, ComparisonEquals}

func (c Comparison) IsValid() bool {
	switch c {
	case ComparisonGreaterThan, ComparisonLessThan, ComparisonEquals:
		return true
	}
	return false
}

// Matches applies the comparison. ok is false for an unrecognised operator.
func (c Comparison) Matches(value, threshold float64) (matched bool, ok bool) {
	switch c {
	case ComparisonGreaterThan:
		return value > threshold, true
	case ComparisonLessThan:
		return value < threshold, true
	case ComparisonEquals:
		return value == threshold, true
	default:
		return false, false
	}
}

// Phrase renders the operator for humans, e.g. "GREATER THAN".
func (c Comparison) Phrase() string {
	return strings.Replace(string(c), "_", " ", 1)
}

// AlertRule is a user-defined condition evaluated against each new snapshot.
// A rule with TriggeredAt set is never evaluated again until reset.
type AlertRule struct {
	ID          string     `json:"id"`
	UserEmail   string     `json:"userEmail"`
	Mint        string     `json:"mint"`
	Parameter   string     `json:"parameter"`
	Comparison  Comparison `json:"comparison"`
	Threshold   float64    `json:"threshold"`
	IsActive    bool       `json:"isActive"`
	TriggeredAt *time.Time `json:"triggeredAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// TriggeredAlert pairs a rule whose condition was met with the observed value.
type TriggeredAlert struct {
	Rule  AlertRule
	Value float64
}
