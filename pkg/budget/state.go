package budget

import (
	"errors"
	"fmt"
	"time"

	"github.com/pario-ai/quotaguard/pkg/models"
)

// DefaultLimit is the daily quota given to a freshly initialised state.
const DefaultLimit = 25

// ErrLimitOutOfRange is wrapped by every ValidationError from SetLimit.
var ErrLimitOutOfRange = errors.New("daily limit out of range")

// ValidationError describes a rejected admin limit change.
type ValidationError struct {
	Limit int
	Min   int
	Max   int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("daily limit %d must be between %d and %d", e.Limit, e.Min, e.Max)
}

func (e *ValidationError) Unwrap() error { return ErrLimitOutOfRange }

// Bounds is the inclusive range an admin may set the daily limit to.
type Bounds struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// DefaultBounds returns the [25, 500] range.
func DefaultBounds() Bounds {
	return Bounds{Min: 25, Max: 500}
}

// Contains reports whether limit lies within b.
func (b Bounds) Contains(limit int) bool {
	return limit >= b.Min && limit <= b.Max
}

// NextReset returns the first UTC midnight strictly after now.
func NextReset(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}

// NewState returns the default state for a store with no record.
func NewState(limit int, now time.Time) models.BudgetState {
	return models.BudgetState{
		DailyLimit: limit,
		ResetAt:    NextReset(now),
	}
}

// RolloverIfDue zeroes usage and moves ResetAt forward once now has reached
// it. A state that is not due is returned unchanged.
func RolloverIfDue(s models.BudgetState, now time.Time) models.BudgetState {
	s, _ = rollover(s, now)
	return s
}

func rollover(s models.BudgetState, now time.Time) (models.BudgetState, bool) {
	if now.Before(s.ResetAt) {
		return s, false
	}
	s.CurrentUsage = 0
	s.ResetAt = NextReset(now)
	return s, true
}

// RecordUsage adds cost to the current usage. It does not consult the limit.
func RecordUsage(s models.BudgetState, cost int) models.BudgetState {
	s.CurrentUsage += cost
	return s
}

// SetLimit returns s with a new daily limit, or a *ValidationError and s
// unchanged when limit falls outside b.
func SetLimit(s models.BudgetState, limit int, b Bounds) (models.BudgetState, error) {
	if !b.Contains(limit) {
		return s, &ValidationError{Limit: limit, Min: b.Min, Max: b.Max}
	}
	s.DailyLimit = limit
	return s, nil
}

// SetOverride returns s with the admin override switched to enabled.
func SetOverride(s models.BudgetState, enabled bool) models.BudgetState {
	s.AdminOverride = enabled
	return s
}
