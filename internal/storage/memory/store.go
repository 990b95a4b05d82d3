package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/XIAA25/queueing-system-home-arcade/internal/domain"
)

// Store keeps the serialized aggregate in memory. State round-trips through
// JSON on every save so loading behaves exactly like a process restart.
// Used for development deployments and tests.
type Store struct {
	mu   sync.Mutex
	data []byte
}

// New returns an empty in-memory store.
func New() *Store {
	return &Store{}
}

// Save serializes and retains the full state.
func (s *Store) Save(ctx context.Context, st *domain.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

// Load decodes the last saved state, or returns nil when nothing was saved.
func (s *Store) Load(ctx context.Context) (*domain.State, error) {
	s.mu.Lock()
	data := s.data
	s.mu.Unlock()
	if data == nil {
		return nil, nil
	}
	var st domain.State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decoding state: %w", err)
	}
	return &st, nil
}
