package budget

import (
	"fmt"
	"time"

	"github.com/pario-ai/quotaguard/pkg/models"
)

// Thresholds is the number of calls each priority must leave unspent.
// A request is admitted only while remaining quota is strictly greater than
// its tier's threshold.
type Thresholds struct {
	Critical int `yaml:"critical" json:"critical"`
	High     int `yaml:"high" json:"high"`
	Medium   int `yaml:"medium" json:"medium"`
	Low      int `yaml:"low" json:"low"`
}

// DefaultThresholds returns critical=0, high=5, medium=10, low=15.
func DefaultThresholds() Thresholds {
	return Thresholds{Critical: 0, High: 5, Medium: 10, Low: 15}
}

// Validate requires non-negative thresholds ordered from critical to low.
func (t Thresholds) Validate() error {
	if t.Critical < 0 {
		return fmt.Errorf("critical threshold must be >= 0, got %d", t.Critical)
	}
	if t.Critical > t.High || t.High > t.Medium || t.Medium > t.Low {
		return fmt.Errorf("thresholds must satisfy critical <= high <= medium <= low, got %d/%d/%d/%d",
			t.Critical, t.High, t.Medium, t.Low)
	}
	return nil
}

// For returns the threshold of p. An unknown priority is a programming
// error and panics.
func (t Thresholds) For(p models.Priority) int {
	switch p {
	case models.PriorityCritical:
		return t.Critical
	case models.PriorityHigh:
		return t.High
	case models.PriorityMedium:
		return t.Medium
	case models.PriorityLow:
		return t.Low
	}
	panic(fmt.Sprintf("budget: unknown priority %q", p))
}

// Admit decides whether a request of priority p may spend quota. Denial is
// an ordinary outcome, not an error.
func Admit(s models.BudgetState, p models.Priority, t Thresholds, now time.Time) bool {
	s = RolloverIfDue(s, now)
	if s.AdminOverride {
		return true
	}
	return s.Remaining() > t.For(p)
}
