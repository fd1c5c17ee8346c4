package budget

import (
	"testing"
	"time"

	"github.com/pario-ai/quotaguard/pkg/models"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func stateWith(limit, used int) models.BudgetState {
	return models.BudgetState{DailyLimit: limit, CurrentUsage: used, ResetAt: NextReset(testNow)}
}

func TestAdmitScenarios(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		name  string
		state models.BudgetState
		want  map[models.Priority]bool
	}{
		{
			name:  "remaining 5",
			state: stateWith(25, 20),
			want: map[models.Priority]bool{
				models.PriorityCritical: true,
				models.PriorityHigh:     false,
				models.PriorityMedium:   false,
				models.PriorityLow:      false,
			},
		},
		{
			name:  "remaining 20",
			state: stateWith(25, 5),
			want: map[models.Priority]bool{
				models.PriorityCritical: true,
				models.PriorityHigh:     true,
				models.PriorityMedium:   true,
				models.PriorityLow:      true,
			},
		},
		{
			name:  "exhausted",
			state: stateWith(25, 25),
			want: map[models.Priority]bool{
				models.PriorityCritical: false,
				models.PriorityHigh:     false,
				models.PriorityMedium:   false,
				models.PriorityLow:      false,
			},
		},
		{
			name:  "limit below highest threshold",
			state: stateWith(10, 0),
			want: map[models.Priority]bool{
				models.PriorityCritical: true,
				models.PriorityHigh:     true,
				models.PriorityMedium:   false,
				models.PriorityLow:      false,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for p, want := range tt.want {
				if got := Admit(tt.state, p, th, testNow); got != want {
					t.Errorf("Admit(%s) = %v, want %v", p, got, want)
				}
			}
		})
	}
}

func TestAdmitLimitAtHighestThresholdOnlyCritical(t *testing.T) {
	th := Thresholds{Critical: 0, High: 25, Medium: 25, Low: 25}
	s := stateWith(25, 0)
	if !Admit(s, models.PriorityCritical, th, testNow) {
		t.Error("critical should be admitted")
	}
	for _, p := range []models.Priority{models.PriorityHigh, models.PriorityMedium, models.PriorityLow} {
		if Admit(s, p, th, testNow) {
			t.Errorf("%s should be denied when limit <= threshold", p)
		}
	}
	s.AdminOverride = true
	if !Admit(s, models.PriorityLow, th, testNow) {
		t.Error("override should admit low")
	}
}

func TestAdmitOverrideBypass(t *testing.T) {
	s := stateWith(25, 40)
	s.AdminOverride = true
	for _, p := range models.Priorities {
		if !Admit(s, p, DefaultThresholds(), testNow) {
			t.Errorf("override should admit %s with usage over limit", p)
		}
	}
}

func TestAdmitAppliesRollover(t *testing.T) {
	s := models.BudgetState{DailyLimit: 25, CurrentUsage: 25, ResetAt: testNow.Add(-time.Minute)}
	if !Admit(s, models.PriorityLow, DefaultThresholds(), testNow) {
		t.Error("expected admission after rollover")
	}
}

func TestAdmitMonotonic(t *testing.T) {
	th := DefaultThresholds()
	for used := 0; used <= 30; used++ {
		s := stateWith(25, used)
		// Priorities is ordered most to least important; once one tier is
		// denied every less important tier must be denied too.
		denied := false
		for _, p := range models.Priorities {
			ok := Admit(s, p, th, testNow)
			if denied && ok {
				t.Fatalf("used=%d: %s admitted after a more important tier was denied", used, p)
			}
			if !ok {
				denied = true
			}
		}
	}
}

func TestThresholdsValidate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
	bad := []Thresholds{
		{Critical: -1, High: 5, Medium: 10, Low: 15},
		{Critical: 0, High: 10, Medium: 5, Low: 15},
		{Critical: 0, High: 5, Medium: 20, Low: 15},
	}
	for _, th := range bad {
		if err := th.Validate(); err == nil {
			t.Errorf("expected error for %+v", th)
		}
	}
}

func TestThresholdsForUnknownPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	DefaultThresholds().For("urgent")
}
