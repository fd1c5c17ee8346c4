package models

import (
	"fmt"
	"strings"
	"time"
)

// Priority is the importance tier of a data request.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Priorities lists every tier from most to least important.
var Priorities = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// ParsePriority converts a case-insensitive name into a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Priorities {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// BudgetState is the persisted daily quota of the metered provider.
type BudgetState struct {
	DailyLimit    int       `json:"daily_limit"`
	CurrentUsage  int       `json:"current_usage"`
	ResetAt       time.Time `json:"reset_at"`
	AdminOverride bool      `json:"admin_override"`
	UpdatedAt     time.Time `json:"updated_at,omitempty"`
}

// Remaining returns the unspent quota, which may be negative while an
// override is active.
func (s BudgetState) Remaining() int {
	return s.DailyLimit - s.CurrentUsage
}

// UsageStats is the read model of a budget state.
type UsageStats struct {
	Limit         int       `json:"limit"`
	Used          int       `json:"used"`
	Remaining     int       `json:"remaining"`
	PercentUsed   float64   `json:"percent_used"`
	ResetAt       time.Time `json:"reset_at"`
	AdminOverride bool      `json:"admin_override"`
	Degraded      bool      `json:"degraded,omitempty"`
}

// StatsFor derives UsageStats from a state. Remaining is clamped at zero.
func StatsFor(s BudgetState) UsageStats {
	remaining := s.Remaining()
	if remaining < 0 {
		remaining = 0
	}
	var pct float64
	if s.DailyLimit > 0 {
		pct = float64(s.CurrentUsage*100) / float64(s.DailyLimit)
	}
	return UsageStats{
		Limit:         s.DailyLimit,
		Used:          s.CurrentUsage,
		Remaining:     remaining,
		PercentUsed:   pct,
		ResetAt:       s.ResetAt,
		AdminOverride: s.AdminOverride,
	}
}
