package memory

import (
	"context"
	"sync"

	"telegram-group-subscription/internal/domain/ports/repository"
)

var _ repository.ProcessedEventStore = (*EventSet)(nil)

// EventSet remembers processed webhook ids. When it grows past capacity the
// oldest half is forgotten.
type EventSet struct {
	mu       sync.Mutex
	capacity int
	order    []string
	seen     map[string]struct{}
}

func NewEventSet(capacity int) *EventSet {
	if capacity < 2 {
		capacity = 10000
	}
	return &EventSet{capacity: capacity, seen: make(map[string]struct{}, capacity)}
}

func (e *EventSet) Seen(ctx context.Context, id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.seen[id]
	return ok, nil
}

func (e *EventSet) Mark(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.seen[id]; ok {
		return nil
	}
	e.seen[id] = struct{}{}
	e.order = append(e.order, id)
	if len(e.order) > e.capacity {
		keep := e.capacity / 2
		evicted := e.order[:len(e.order)-keep]
		for _, old := range evicted {
			delete(e.seen, old)
		}
		e.order = append([]string(nil), e.order[len(e.order)-keep:]...)
	}
	return nil
}

func (e *EventSet) Len(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.order), nil
}
