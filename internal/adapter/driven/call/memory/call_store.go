package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Wyydra/yacall/internal/core/domain"
)

// CallStore implements port.CallStore with a mutex-guarded map.
type CallStore struct {
	mu    sync.RWMutex
	calls map[domain.CallID]*domain.Call
}

func NewCallStore() *CallStore {
	return &CallStore{
		calls: make(map[domain.CallID]*domain.Call),
	}
}

func (s *CallStore) Insert(call *domain.Call) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calls[call.ID]; ok {
		return fmt.Errorf("call %s already exists: %w", call.ID, domain.ErrInvalidState)
	}
	s.calls[call.ID] = call.Clone()
	return nil
}

func (s *CallStore) Get(id domain.CallID) (*domain.Call, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	call, ok := s.calls[id]
	if !ok {
		return nil, fmt.Errorf("call %s: %w", id, domain.ErrCallNotFound)
	}
	return call.Clone(), nil
}

func (s *CallStore) Update(id domain.CallID, fn func(call *domain.Call) error) (*domain.Call, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.calls[id]
	if !ok {
		return nil, fmt.Errorf("call %s: %w", id, domain.ErrCallNotFound)
	}
	work := current.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.Revision = current.Revision + 1
	s.calls[id] = work
	return work.Clone(), nil
}

func (s *CallStore) Delete(id domain.CallID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.calls[id]; !ok {
		return false
	}
	delete(s.calls, id)
	return true
}

// List returns copies of all calls, oldest first.
func (s *CallStore) List() []*domain.Call {
	s.mu.RLock()
	out := make([]*domain.Call, 0, len(s.calls))
	for _, c := range s.calls {
		out = append(out, c.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Time.Created == out[j].Time.Created {
			return out[i].ID < out[j].ID
		}
		return out[i].Time.Created < out[j].Time.Created
	})
	return out
}
