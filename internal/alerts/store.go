package alerts

import (
	"context"
	"sync"
)

// Store keeps alerts newest first.
type Store interface {
	// Insert places a at the head.
	Insert(ctx context.Context, a Alert) error
	// Resolve marks id resolved and returns the stored alert and whether it
	// changed state. found is false when id is unknown.
	Resolve(ctx context.Context, id string) (a Alert, found, changed bool, err error)
	// Delete removes id and returns the removed alert.
	Delete(ctx context.Context, id string) (a Alert, found bool, err error)
	// List returns every alert, newest first.
	List(ctx context.Context) ([]Alert, error)
	// Count returns the number of alerts.
	Count(ctx context.Context) (int, error)
}

// MemoryStore is the default ephemeral Store. A restart starts it empty.
type MemoryStore struct {
	mu     sync.RWMutex
	alerts []Alert
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, Alert{})
	copy(s.alerts[1:], s.alerts)
	s.alerts[0] = a
	return nil
}

func (s *MemoryStore) Resolve(_ context.Context, id string) (Alert, bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			changed := !s.alerts[i].Resolved
			s.alerts[i].Resolved = true
			return s.alerts[i], true, changed, nil
		}
	}
	return Alert{}, false, false, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) (Alert, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.alerts {
		if a.ID == id {
			s.alerts = append(s.alerts[:i], s.alerts[i+1:]...)
			return a, true, nil
		}
	}
	return Alert{}, false, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Alert, len(s.alerts))
	copy(out, s.alerts)
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts), nil
}
