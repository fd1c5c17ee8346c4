// Package memory keeps the budget state in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pario-ai/quotaguard/pkg/models"
)

// Store is a budget.Store that lives and dies with the process.
type Store struct {
	mu    sync.Mutex
	state models.BudgetState
	found bool
}

// New returns an empty Store.
func New() *Store { return &Store{} }

// Load returns the saved state, if any.
func (s *Store) Load(context.Context) (models.BudgetState, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.found, nil
}

// Save replaces the state.
func (s *Store) Save(_ context.Context, st models.BudgetState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.UpdatedAt = time.Now().UTC()
	s.state = st
	s.found = true
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
