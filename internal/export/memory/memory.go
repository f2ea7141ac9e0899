package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"goalpost/internal/core"
)

// Store keeps exported progress rows in memory. Used by tests and for
// running the export worker without Google credentials.
type Store struct {
	mu   sync.Mutex
	rows []core.ProgressReport
}

func New() *Store {
	return &Store{}
}

// Append stores the report and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, r core.ProgressReport) (string, error) {
	if r.GoalID == 0 {
		return "", errors.New("progress report has no goal id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, r)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// List returns a copy of the stored reports in append order.
func (s *Store) List(_ context.Context) ([]core.ProgressReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]core.ProgressReport(nil), s.rows...)
	return out, nil
}
