package scheduling

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"
)

type TemplateRepository interface {
	Create(ctx context.Context, t *Template) error
	GetByID(ctx context.Context, id uuid.UUID) (*Template, error)
	Update(ctx context.Context, t *Template) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByHospital(ctx context.Context, hospitalID int64, limit, offset int) ([]*Template, int, error)
}

type SlotRepository interface {
	// InsertMissing stores every slot whose natural key is free and leaves
	// existing slots untouched. The whole sequence is one atomic unit.
	InsertMissing(ctx context.Context, slots iter.Seq[*Slot]) (created, skipped int, err error)
	// Create stores s and fails with a validation error on a natural key
	// collision.
	Create(ctx context.Context, s *Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)
	Search(ctx context.Context, f SlotFilter, limit, offset int) ([]*Slot, int, error)
	SetProfessionals(ctx context.Context, id uuid.UUID, professionals []int64) (*Slot, error)
}

// BookingRepository is the only code that touches remaining capacity. Each
// method is one atomic unit: either every row it names changes or none do.
type BookingRepository interface {
	// Reserve takes one seat on b.SlotID and inserts b. A slot with no
	// remaining capacity yields SlotFull and nothing is written.
	Reserve(ctx context.Context, b *Booking, ev *BookingEvent) error
	// Create inserts b without touching any slot.
	Create(ctx context.Context, b *Booking, ev *BookingEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	// Save writes b if its stored version still equals b.Version, applying
	// seat to the slot in the same unit, and bumps b.Version. A stale
	// version yields StorageConflict.
	Save(ctx context.Context, b *Booking, seat SeatChange, ev *BookingEvent) error
	// Delete removes b if its stored version still equals b.Version. A
	// booking holding a seat gives it back in the same unit.
	Delete(ctx context.Context, b *Booking) error
	// VoidSlot cancels every open booking on the slot, releasing their
	// seats, records an event per booking and deletes the slot.
	VoidSlot(ctx context.Context, slotID uuid.UUID, actor, reason string, at time.Time) ([]*Booking, error)
	Search(ctx context.Context, f BookingFilter, limit, offset int) ([]*Booking, int, error)
	Events(ctx context.Context, bookingID uuid.UUID) ([]*BookingEvent, error)
}
