package scheduling

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
	"github.com/hospitalnet/agenda/pkg/pagination"
)

// MemoryStore keeps templates, slots and bookings in process. One mutex
// guards everything, so each method is atomic with respect to every other.
// It is meant for tests and single-replica development.
type MemoryStore struct {
	mu        sync.Mutex
	templates map[uuid.UUID]*Template
	slots     map[uuid.UUID]*Slot
	slotKeys  map[string]uuid.UUID
	bookings  map[uuid.UUID]*Booking
	events    map[uuid.UUID][]*BookingEvent
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		templates: make(map[uuid.UUID]*Template),
		slots:     make(map[uuid.UUID]*Slot),
		slotKeys:  make(map[string]uuid.UUID),
		bookings:  make(map[uuid.UUID]*Booking),
		events:    make(map[uuid.UUID][]*BookingEvent),
		now:       time.Now,
	}
}

func (m *MemoryStore) Templates() TemplateRepository { return memTemplates{m} }
func (m *MemoryStore) Slots() SlotRepository         { return memSlots{m} }
func (m *MemoryStore) Bookings() BookingRepository   { return memBookings{m} }

func (m *MemoryStore) stamp() time.Time { return m.now().UTC() }

// =========== Templates ===========

type memTemplates struct{ *MemoryStore }

func cloneTemplate(t *Template) *Template {
	cp := *t
	cp.ActiveDays = append([]Weekday(nil), t.ActiveDays...)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		blocks := t.Days.ForWeekday(wd)
		if blocks == nil {
			continue
		}
		copied := make([]TimeBlock, len(blocks))
		for i, b := range blocks {
			b.Rooms = append([]string(nil), b.Rooms...)
			copied[i] = b
		}
		cp.Days.Set(wd, copied...)
	}
	return &cp
}

func (r memTemplates) Create(_ context.Context, t *Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[t.ID]; ok {
		return apperr.Validation("template %s already exists", t.ID)
	}
	t.CreatedAt = r.stamp()
	t.UpdatedAt = t.CreatedAt
	r.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (r memTemplates) GetByID(_ context.Context, id uuid.UUID) (*Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[id]
	if !ok {
		return nil, apperr.NotFound("template %s not found", id)
	}
	return cloneTemplate(t), nil
}

func (r memTemplates) Update(_ context.Context, t *Template) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.templates[t.ID]
	if !ok {
		return apperr.NotFound("template %s not found", t.ID)
	}
	t.HospitalID = cur.HospitalID
	t.CreatedAt = cur.CreatedAt
	t.UpdatedAt = r.stamp()
	r.templates[t.ID] = cloneTemplate(t)
	return nil
}

func (r memTemplates) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.templates[id]; !ok {
		return apperr.NotFound("template %s not found", id)
	}
	delete(r.templates, id)
	for _, s := range r.slots {
		if s.TemplateID != nil && *s.TemplateID == id {
			s.TemplateID = nil
		}
	}
	return nil
}

func (r memTemplates) ListByHospital(_ context.Context, hospitalID int64, limit, offset int) ([]*Template, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*Template
	for _, t := range r.templates {
		if t.HospitalID == hospitalID {
			all = append(all, cloneTemplate(t))
		}
	}
	slices.SortFunc(all, func(a, b *Template) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return pagination.Window(all, pagination.Params{Limit: limit, Offset: offset}), len(all), nil
}

func compareIDs(a, b uuid.UUID) int {
	return slices.Compare(a[:], b[:])
}

// =========== Slots ===========

type memSlots struct{ *MemoryStore }

func (r memSlots) put(s *Slot) {
	s.CreatedAt = r.stamp()
	s.UpdatedAt = s.CreatedAt
	if s.Rooms == nil {
		s.Rooms = []string{}
	}
	if s.Professionals == nil {
		s.Professionals = []int64{}
	}
	r.slots[s.ID] = s.clone()
	r.slotKeys[s.NaturalKey()] = s.ID
}

func (r memSlots) InsertMissing(_ context.Context, slots iter.Seq[*Slot]) (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var created, skipped int
	for s := range slots {
		if _, taken := r.slotKeys[s.NaturalKey()]; taken {
			skipped++
			continue
		}
		r.put(s)
		created++
	}
	return created, skipped, nil
}

func (r memSlots) Create(_ context.Context, s *Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.slotKeys[s.NaturalKey()]; taken {
		return apperr.Validation("hospital %d already has a %s slot at %s", s.HospitalID, s.Service, s.StartsAt.Format(time.RFC3339))
	}
	r.put(s)
	return nil
}

func (r memSlots) GetByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, apperr.NotFound("slot %s not found", id)
	}
	return s.clone(), nil
}

func (r memSlots) Search(_ context.Context, f SlotFilter, limit, offset int) ([]*Slot, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*Slot
	for _, s := range r.slots {
		if f.matches(s) {
			all = append(all, s.clone())
		}
	}
	slices.SortFunc(all, func(a, b *Slot) int {
		if c := a.StartsAt.Compare(b.StartsAt); c != 0 {
			return c
		}
		if a.Service != b.Service {
			if a.Service < b.Service {
				return -1
			}
			return 1
		}
		return compareIDs(a.ID, b.ID)
	})
	return pagination.Window(all, pagination.Params{Limit: limit, Offset: offset}), len(all), nil
}

func (r memSlots) SetProfessionals(_ context.Context, id uuid.UUID, professionals []int64) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, apperr.NotFound("slot %s not found", id)
	}
	s.Professionals = append([]int64{}, professionals...)
	s.UpdatedAt = r.stamp()
	return s.clone(), nil
}

// =========== Bookings ===========

type memBookings struct{ *MemoryStore }

func (r memBookings) takeSeat(slotID uuid.UUID) (*Slot, error) {
	s, ok := r.slots[slotID]
	if !ok {
		return nil, apperr.NotFound("slot %s not found", slotID)
	}
	if s.Remaining <= 0 {
		return nil, apperr.SlotFull("slot %s has no remaining capacity", slotID)
	}
	return s, nil
}

func (r memBookings) record(ev *BookingEvent) {
	if ev != nil {
		cp := *ev
		r.events[ev.BookingID] = append(r.events[ev.BookingID], &cp)
	}
}

func (r memBookings) insert(b *Booking, ev *BookingEvent) {
	b.Version = 1
	b.CreatedAt = r.stamp()
	b.UpdatedAt = b.CreatedAt
	r.bookings[b.ID] = b.clone()
	r.record(ev)
}

func (r memBookings) Reserve(_ context.Context, b *Booking, ev *BookingEvent) error {
	if b.SlotID == nil {
		return apperr.Validation("reservation needs a slot")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.bookings[b.ID]; dup {
		return apperr.Validation("booking %s already exists", b.ID)
	}
	s, err := r.takeSeat(*b.SlotID)
	if err != nil {
		return err
	}
	s.Remaining--
	s.UpdatedAt = r.stamp()
	r.insert(b, ev)
	return nil
}

func (r memBookings) Create(_ context.Context, b *Booking, ev *BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.bookings[b.ID]; dup {
		return apperr.Validation("booking %s already exists", b.ID)
	}
	if b.SlotID != nil {
		if _, ok := r.slots[*b.SlotID]; !ok {
			return apperr.Validation("create booking: referenced row does not exist")
		}
	}
	r.insert(b, ev)
	return nil
}

func (r memBookings) GetByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	return b.clone(), nil
}

func (r memBookings) Save(_ context.Context, b *Booking, seat SeatChange, ev *BookingEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.bookings[b.ID]
	if !ok {
		return apperr.NotFound("booking %s not found", b.ID)
	}
	if cur.Version != b.Version {
		return apperr.StorageConflict(nil, "booking %s changed concurrently", b.ID)
	}

	var slot *Slot
	if seat != SeatKeep {
		if b.SlotID == nil {
			return apperr.Validation("booking %s has no slot", b.ID)
		}
		var err error
		switch seat {
		case SeatTake:
			slot, err = r.takeSeat(*b.SlotID)
		case SeatRelease:
			var found bool
			slot, found = r.slots[*b.SlotID]
			if !found || slot.Remaining >= slot.Capacity {
				err = apperr.Internal(fmt.Errorf("slot %s: nothing to release", *b.SlotID), "capacity accounting mismatch")
			}
		}
		if err != nil {
			return err
		}
	}

	now := r.stamp()
	if slot != nil {
		if seat == SeatTake {
			slot.Remaining--
		} else {
			slot.Remaining++
		}
		slot.UpdatedAt = now
	}
	b.Version++
	b.CreatedAt = cur.CreatedAt
	b.UpdatedAt = now
	r.bookings[b.ID] = b.clone()
	r.record(ev)
	return nil
}

func (r memBookings) Delete(_ context.Context, b *Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.bookings[b.ID]
	if !ok {
		return apperr.NotFound("booking %s not found", b.ID)
	}
	if cur.Version != b.Version {
		return apperr.StorageConflict(nil, "booking %s changed concurrently", b.ID)
	}
	if cur.HoldsSeat {
		slot, found := r.slots[*cur.SlotID]
		if !found || slot.Remaining >= slot.Capacity {
			return apperr.Internal(fmt.Errorf("slot %s: nothing to release", *cur.SlotID), "capacity accounting mismatch")
		}
		slot.Remaining++
		slot.UpdatedAt = r.stamp()
	}
	delete(r.bookings, b.ID)
	delete(r.events, b.ID)
	return nil
}

func (r memBookings) VoidSlot(_ context.Context, slotID uuid.UUID, actor, reason string, at time.Time) ([]*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[slotID]
	if !ok {
		return nil, apperr.NotFound("slot %s not found", slotID)
	}

	var cancelled []*Booking
	for _, b := range r.bookings {
		if b.SlotID == nil || *b.SlotID != slotID {
			continue
		}
		if !b.Status.Terminal() {
			from := b.Status
			b.Status = StatusCancelled
			b.HoldsSeat = false
			b.Version++
			b.UpdatedAt = at
			r.record(&BookingEvent{
				ID: uuid.New(), BookingID: b.ID, From: from, To: StatusCancelled,
				Actor: actor, Reason: reason, OccurredAt: at,
			})
			cancelled = append(cancelled, b.clone())
		}
		b.SlotID = nil
		b.HoldsSeat = false
	}
	delete(r.slots, slotID)
	delete(r.slotKeys, s.NaturalKey())

	slices.SortFunc(cancelled, func(a, b *Booking) int { return compareIDs(a.ID, b.ID) })
	return cancelled, nil
}

func (r memBookings) Search(_ context.Context, f BookingFilter, limit, offset int) ([]*Booking, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*Booking
	for _, b := range r.bookings {
		if f.matches(b) {
			all = append(all, b.clone())
		}
	}
	slices.SortFunc(all, func(a, b *Booking) int {
		c := a.ScheduledAt.Compare(b.ScheduledAt)
		if c == 0 {
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if f.NewestFirst {
			c = -c
		}
		if c != 0 {
			return c
		}
		return compareIDs(a.ID, b.ID)
	})
	return pagination.Window(all, pagination.Params{Limit: limit, Offset: offset}), len(all), nil
}

func (r memBookings) Events(_ context.Context, bookingID uuid.UUID) ([]*BookingEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[bookingID]; !ok {
		return nil, apperr.NotFound("booking %s not found", bookingID)
	}
	out := make([]*BookingEvent, len(r.events[bookingID]))
	for i, ev := range r.events[bookingID] {
		cp := *ev
		out[i] = &cp
	}
	return out, nil
}
