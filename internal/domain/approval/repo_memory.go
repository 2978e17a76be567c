package approval

import (
	"context"
	"sync"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
	"github.com/hospitalnet/agenda/pkg/pagination"
)

// MemoryRepo keeps approval state in process.
type MemoryRepo struct {
	mu       sync.RWMutex
	statuses map[int64]Status
	events   map[int64][]*Event
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		statuses: make(map[int64]Status),
		events:   make(map[int64][]*Event),
	}
}

// Register adds a professional to the registry with the given status.
func (m *MemoryRepo) Register(id int64, s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[id] = s
}

func (m *MemoryRepo) GetStatus(_ context.Context, id int64) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[id]
	if !ok {
		return "", apperr.UnknownProfessional(id)
	}
	return s, nil
}

func (m *MemoryRepo) SetStatus(_ context.Context, ev *Event) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from, ok := m.statuses[ev.ProfessionalID]
	if !ok {
		return "", apperr.UnknownProfessional(ev.ProfessionalID)
	}
	ev.From = from
	m.statuses[ev.ProfessionalID] = ev.To
	cp := *ev
	m.events[ev.ProfessionalID] = append(m.events[ev.ProfessionalID], &cp)
	return from, nil
}

func (m *MemoryRepo) History(_ context.Context, id int64, limit, offset int) ([]*Event, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.statuses[id]; !ok {
		return nil, 0, apperr.UnknownProfessional(id)
	}
	all := m.events[id]
	page := pagination.Window(all, pagination.Params{Limit: limit, Offset: offset})
	out := make([]*Event, len(page))
	for i, ev := range page {
		cp := *ev
		out[i] = &cp
	}
	return out, len(all), nil
}
