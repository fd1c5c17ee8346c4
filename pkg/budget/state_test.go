package budget

import (
	"errors"
	"testing"
	"time"

	"github.com/pario-ai/quotaguard/pkg/models"
)

func TestNextReset(t *testing.T) {
	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC), time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
		{time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		// 01:00 in UTC+5 is still the previous UTC day.
		{time.Date(2024, 3, 11, 1, 0, 0, 0, time.FixedZone("x", 5*3600)), time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := NextReset(tt.now); !got.Equal(tt.want) {
			t.Errorf("NextReset(%v) = %v, want %v", tt.now, got, tt.want)
		}
	}
}

func TestNewStateDefaults(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	s := NewState(DefaultLimit, now)
	if s.DailyLimit != 25 || s.CurrentUsage != 0 || s.AdminOverride {
		t.Errorf("unexpected defaults: %+v", s)
	}
	if !s.ResetAt.Equal(time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected reset: %v", s.ResetAt)
	}
}

func TestRolloverNotDue(t *testing.T) {
	reset := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	s := models.BudgetState{DailyLimit: 25, CurrentUsage: 7, ResetAt: reset}
	got := RolloverIfDue(s, reset.Add(-time.Second))
	if got.CurrentUsage != 7 || !got.ResetAt.Equal(reset) {
		t.Errorf("state changed before reset: %+v", got)
	}
}

func TestRolloverDue(t *testing.T) {
	reset := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	s := models.BudgetState{DailyLimit: 25, CurrentUsage: 25, ResetAt: reset, AdminOverride: true}

	got := RolloverIfDue(s, reset)
	if got.CurrentUsage != 0 {
		t.Errorf("expected usage reset, got %d", got.CurrentUsage)
	}
	if !got.ResetAt.Equal(reset.Add(24 * time.Hour)) {
		t.Errorf("expected next midnight, got %v", got.ResetAt)
	}
	if !got.AdminOverride || got.DailyLimit != 25 {
		t.Errorf("rollover touched other fields: %+v", got)
	}
}

func TestRolloverSkipsMissedDays(t *testing.T) {
	reset := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	s := models.BudgetState{DailyLimit: 25, CurrentUsage: 3, ResetAt: reset}
	now := time.Date(2024, 3, 14, 10, 0, 0, 0, time.UTC)

	got := RolloverIfDue(s, now)
	if !got.ResetAt.Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("expected reset strictly after now, got %v", got.ResetAt)
	}
}

func TestRolloverIdempotent(t *testing.T) {
	reset := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	for _, offset := range []time.Duration{0, time.Minute, 5 * time.Hour, 72 * time.Hour} {
		s := models.BudgetState{DailyLimit: 40, CurrentUsage: 39, ResetAt: reset}
		now := reset.Add(offset)
		once := RolloverIfDue(s, now)
		twice := RolloverIfDue(once, now)
		if once.CurrentUsage != twice.CurrentUsage || !once.ResetAt.Equal(twice.ResetAt) {
			t.Errorf("offset %v: once %+v, twice %+v", offset, once, twice)
		}
	}
}

func TestRecordUsageIgnoresLimit(t *testing.T) {
	s := models.BudgetState{DailyLimit: 25, CurrentUsage: 25}
	got := RecordUsage(s, 3)
	if got.CurrentUsage != 28 {
		t.Errorf("expected 28, got %d", got.CurrentUsage)
	}
	if s.CurrentUsage != 25 {
		t.Error("input state was mutated")
	}
}

func TestSetLimitBounds(t *testing.T) {
	s := models.BudgetState{DailyLimit: 25}
	b := DefaultBounds()

	for _, bad := range []int{10, 24, 501} {
		got, err := SetLimit(s, bad, b)
		if err == nil {
			t.Fatalf("limit %d: expected error", bad)
		}
		if !errors.Is(err, ErrLimitOutOfRange) {
			t.Errorf("limit %d: expected ErrLimitOutOfRange, got %v", bad, err)
		}
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Limit != bad {
			t.Errorf("limit %d: expected *ValidationError, got %T", bad, err)
		}
		if got.DailyLimit != 25 {
			t.Errorf("limit %d: state changed to %d", bad, got.DailyLimit)
		}
	}

	for _, good := range []int{25, 100, 500} {
		got, err := SetLimit(s, good, b)
		if err != nil {
			t.Fatalf("limit %d: %v", good, err)
		}
		if got.DailyLimit != good {
			t.Errorf("expected %d, got %d", good, got.DailyLimit)
		}
	}
}

func TestSetOverride(t *testing.T) {
	s := SetOverride(models.BudgetState{}, true)
	if !s.AdminOverride {
		t.Error("expected override on")
	}
	if SetOverride(s, false).AdminOverride {
		t.Error("expected override off")
	}
}
