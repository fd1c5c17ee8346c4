package memory

import (
	"context"
	"testing"
	"time"

	"github.com/pario-ai/quotaguard/pkg/models"
)

func TestLoadSave(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, found, err := s.Load(ctx); err != nil || found {
		t.Fatalf("expected empty store, found=%v err=%v", found, err)
	}

	want := models.BudgetState{DailyLimit: 30, CurrentUsage: 2, ResetAt: time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)}
	if err := s.Save(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, found, err := s.Load(ctx)
	if err != nil || !found {
		t.Fatalf("expected state, found=%v err=%v", found, err)
	}
	if got.DailyLimit != 30 || got.CurrentUsage != 2 || !got.ResetAt.Equal(want.ResetAt) {
		t.Errorf("unexpected state %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt set")
	}
}
