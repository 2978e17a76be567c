// Package directory answers existence questions about hospitals, patients and
// professionals. The registry itself is owned by another service; the
// scheduler only ever refers to those records by id.
package directory

import (
	"context"
	"sync"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
)

// Resolver confirms that referenced records exist.
type Resolver interface {
	ResolveHospital(ctx context.Context, id int64) error
	ResolvePatient(ctx context.Context, id int64) error
	ResolveProfessional(ctx context.Context, id int64) error
}

// Memory is an in-process directory for tests and STORAGE_DRIVER=memory.
type Memory struct {
	mu            sync.RWMutex
	hospitals     map[int64]struct{}
	patients      map[int64]struct{}
	professionals map[int64]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		hospitals:     make(map[int64]struct{}),
		patients:      make(map[int64]struct{}),
		professionals: make(map[int64]struct{}),
	}
}

// Seed registers ids 1..n in every table.
func (m *Memory) Seed(n int64) *Memory {
	for id := int64(1); id <= n; id++ {
		m.AddHospital(id)
		m.AddPatient(id)
		m.AddProfessional(id)
	}
	return m
}

func (m *Memory) AddHospital(ids ...int64)     { m.add(m.hospitals, ids) }
func (m *Memory) AddPatient(ids ...int64)      { m.add(m.patients, ids) }
func (m *Memory) AddProfessional(ids ...int64) { m.add(m.professionals, ids) }

func (m *Memory) add(set map[int64]struct{}, ids []int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		set[id] = struct{}{}
	}
}

func (m *Memory) has(set map[int64]struct{}, id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := set[id]
	return ok
}

func (m *Memory) ResolveHospital(_ context.Context, id int64) error {
	if !m.has(m.hospitals, id) {
		return apperr.UnknownHospital(id)
	}
	return nil
}

func (m *Memory) ResolvePatient(_ context.Context, id int64) error {
	if !m.has(m.patients, id) {
		return apperr.UnknownPatient(id)
	}
	return nil
}

func (m *Memory) ResolveProfessional(_ context.Context, id int64) error {
	if !m.has(m.professionals, id) {
		return apperr.UnknownProfessional(id)
	}
	return nil
}
