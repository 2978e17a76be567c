package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
)

// Engine books patients into slots. It is the only caller of the seat
// taking and releasing paths in BookingRepository.
type Engine struct {
	slots    SlotRepository
	bookings BookingRepository
	dir      Directory
	gate     ApprovalGate
	retry    RetryPolicy
	logger   zerolog.Logger
	now      func() time.Time
}

func NewEngine(slots SlotRepository, bookings BookingRepository, dir Directory, gate ApprovalGate,
	retry RetryPolicy, logger zerolog.Logger) *Engine {
	return &Engine{
		slots:    slots,
		bookings: bookings,
		dir:      dir,
		gate:     gate,
		retry:    retry,
		logger:   logger,
		now:      time.Now,
	}
}

func (e *Engine) event(b *Booking, from Status, actor, reason string) *BookingEvent {
	return &BookingEvent{
		ID:         uuid.New(),
		BookingID:  b.ID,
		From:       from,
		To:         b.Status,
		Actor:      actor,
		Reason:     reason,
		OccurredAt: e.now().UTC(),
	}
}

type ReserveRequest struct {
	PatientID int64       `json:"patient_id" validate:"required,gt=0"`
	SlotID    uuid.UUID   `json:"slot_id" validate:"required"`
	Kind      ServiceType `json:"kind" validate:"omitempty,oneof=consultation exam"`
	Priority  string      `json:"priority" validate:"max=50"`
	Location  string      `json:"location" validate:"max=200"`
	Notes     string      `json:"notes" validate:"max=2000"`
}

// Reserve takes one seat on the slot and creates a scheduled booking for
// it. When the slot is full nothing is written and SlotFull is returned.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest, actor string) (*Booking, error) {
	if req.SlotID == uuid.Nil {
		return nil, apperr.Validation("slot_id is required")
	}
	var b *Booking
	err := e.retry.run(ctx, e.logger, "reserve", func() error {
		slot, err := e.slots.GetByID(ctx, req.SlotID)
		if err != nil {
			return err
		}
		kind := req.Kind
		if kind == "" {
			kind = slot.Service
		}
		if kind != slot.Service {
			return apperr.Validation("slot %s offers %s, not %s", slot.ID, slot.Service, kind)
		}
		if err := e.dir.ResolvePatient(ctx, req.PatientID); err != nil {
			return err
		}
		slotID := slot.ID
		b = &Booking{
			ID:          uuid.New(),
			Kind:        kind,
			PatientID:   req.PatientID,
			HospitalID:  slot.HospitalID,
			SlotID:      &slotID,
			ScheduledAt: slot.StartsAt,
			Priority:    req.Priority,
			Location:    req.Location,
			Notes:       req.Notes,
			Status:      StatusScheduled,
			HoldsSeat:   true,
		}
		return e.bookings.Reserve(ctx, b, e.event(b, "", actor, "reserved"))
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info().
		Str("booking_id", b.ID.String()).
		Str("slot_id", req.SlotID.String()).
		Int64("patient_id", b.PatientID).
		Msg("seat reserved")
	return b, nil
}

type RequestBooking struct {
	PatientID   int64       `json:"patient_id" validate:"required,gt=0"`
	HospitalID  int64       `json:"hospital_id" validate:"omitempty,gt=0"`
	Kind        ServiceType `json:"kind" validate:"required,oneof=consultation exam"`
	ScheduledAt time.Time   `json:"scheduled_at"`
	SlotID      *uuid.UUID  `json:"slot_id"`
	Priority    string      `json:"priority" validate:"max=50"`
	Location    string      `json:"location" validate:"max=200"`
	Notes       string      `json:"notes" validate:"max=2000"`
}

// Request records a booking that does not hold a seat yet. It may name a
// slot, in which case moving it to scheduled takes the seat.
func (e *Engine) Request(ctx context.Context, req RequestBooking, actor string) (*Booking, error) {
	if !req.Kind.Valid() {
		return nil, apperr.Validation("kind must be consultation or exam")
	}
	b := &Booking{
		ID:          uuid.New(),
		Kind:        req.Kind,
		PatientID:   req.PatientID,
		HospitalID:  req.HospitalID,
		ScheduledAt: req.ScheduledAt,
		Priority:    req.Priority,
		Location:    req.Location,
		Notes:       req.Notes,
		Status:      StatusRequested,
	}
	if req.SlotID != nil {
		slot, err := e.slots.GetByID(ctx, *req.SlotID)
		if err != nil {
			return nil, err
		}
		if b.HospitalID == 0 {
			b.HospitalID = slot.HospitalID
		}
		if b.HospitalID != slot.HospitalID {
			return nil, apperr.Validation("slot %s belongs to hospital %d", slot.ID, slot.HospitalID)
		}
		if slot.Service != b.Kind {
			return nil, apperr.Validation("slot %s offers %s, not %s", slot.ID, slot.Service, b.Kind)
		}
		if b.ScheduledAt.IsZero() {
			b.ScheduledAt = slot.StartsAt
		}
		slotID := slot.ID
		b.SlotID = &slotID
	}
	if b.HospitalID == 0 {
		return nil, apperr.Validation("hospital_id is required")
	}
	if b.ScheduledAt.IsZero() {
		return nil, apperr.Validation("scheduled_at is required")
	}
	if err := e.dir.ResolveHospital(ctx, b.HospitalID); err != nil {
		return nil, err
	}
	if err := e.dir.ResolvePatient(ctx, b.PatientID); err != nil {
		return nil, err
	}
	if err := e.bookings.Create(ctx, b, e.event(b, "", actor, "requested")); err != nil {
		return nil, err
	}
	e.logger.Info().Str("booking_id", b.ID.String()).Int64("patient_id", b.PatientID).Msg("booking requested")
	return b, nil
}

// Assign puts an approved professional on a scheduled booking, or replaces
// the professional on an assigned one.
func (e *Engine) Assign(ctx context.Context, bookingID uuid.UUID, professionalID int64, actor string) (*Booking, error) {
	var b *Booking
	var from Status
	err := e.retry.run(ctx, e.logger, "assign", func() error {
		var err error
		b, err = e.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		if !canAssign(b.Status) {
			return apperr.InvalidTransition("booking %s is %s, only scheduled or assigned bookings can be assigned", b.ID, b.Status.Label(b.Kind))
		}
		if err := eligible(ctx, e.dir, e.gate, professionalID); err != nil {
			return err
		}
		from = b.Status
		pid := professionalID
		b.ProfessionalID = &pid
		b.Status = StatusAssigned
		return e.bookings.Save(ctx, b, SeatKeep, e.event(b, from, actor, fmt.Sprintf("professional %d", professionalID)))
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info().
		Str("booking_id", b.ID.String()).
		Int64("professional_id", professionalID).
		Str("from", string(from)).
		Msg("booking assigned")
	return b, nil
}

// Guard vets the booking a mutation is about to apply to. It runs on every
// attempt against the booking as just read, so it sees the same version
// the write is conditioned on.
type Guard func(b *Booking) error

// Transition moves a booking along its lifecycle. Cancelling a booking that
// holds a seat gives the seat back; confirming a requested booking on a
// slot takes one.
func (e *Engine) Transition(ctx context.Context, bookingID uuid.UUID, to Status, actor, reason string, guards ...Guard) (*Booking, error) {
	if !to.Valid() {
		return nil, apperr.Validation("unknown status %q", to)
	}
	var b *Booking
	var from Status
	var seat SeatChange
	err := e.retry.run(ctx, e.logger, "transition", func() error {
		var err error
		b, err = e.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		for _, g := range guards {
			if err := g(b); err != nil {
				return err
			}
		}
		from = b.Status
		if to == StatusAssigned {
			return apperr.InvalidTransition("bookings become assigned through assign")
		}
		if !CanTransition(from, to) {
			return apperr.InvalidTransition("booking %s cannot move from %s to %s", b.ID, from.Label(b.Kind), to.Label(b.Kind))
		}

		seat = SeatKeep
		switch {
		case from == StatusRequested && to == StatusScheduled && b.SlotID != nil:
			seat = SeatTake
			b.HoldsSeat = true
		case to == StatusCancelled && b.HoldsSeat:
			seat = SeatRelease
			b.HoldsSeat = false
		}
		b.Status = to
		return e.bookings.Save(ctx, b, seat, e.event(b, from, actor, reason))
	})
	if err != nil {
		return nil, err
	}
	ev := e.logger.Info().
		Str("booking_id", b.ID.String()).
		Str("from", string(from)).
		Str("to", string(to))
	if b.SlotID != nil {
		ev = ev.Str("slot_id", b.SlotID.String())
	}
	switch seat {
	case SeatTake:
		ev = ev.Str("seat", "taken")
	case SeatRelease:
		ev = ev.Str("seat", "released")
	}
	ev.Msg("booking transitioned")
	return b, nil
}

// ReleaseOnDelete cancels every open booking on the slot and deletes it.
// The cancelled bookings are returned.
func (e *Engine) ReleaseOnDelete(ctx context.Context, slotID uuid.UUID, reason, actor string) ([]*Booking, error) {
	if reason == "" {
		reason = "slot deleted"
	}
	var cancelled []*Booking
	err := e.retry.run(ctx, e.logger, "release_on_delete", func() error {
		var err error
		cancelled, err = e.bookings.VoidSlot(ctx, slotID, actor, reason, e.now().UTC())
		return err
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info().
		Str("slot_id", slotID.String()).
		Int("cancelled", len(cancelled)).
		Str("reason", reason).
		Msg("slot deleted")
	return cancelled, nil
}

// DeleteBooking removes a booking and its history. A booking still holding
// a seat returns it to the slot in the same unit.
func (e *Engine) DeleteBooking(ctx context.Context, bookingID uuid.UUID, actor string) (*Booking, error) {
	var b *Booking
	err := e.retry.run(ctx, e.logger, "delete_booking", func() error {
		var err error
		b, err = e.bookings.GetByID(ctx, bookingID)
		if err != nil {
			return err
		}
		return e.bookings.Delete(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	ev := e.logger.Info().
		Str("booking_id", b.ID.String()).
		Str("status", string(b.Status)).
		Str("actor", actor)
	if b.HoldsSeat {
		ev = ev.Str("slot_id", b.SlotID.String()).Str("seat", "released")
	}
	ev.Msg("booking deleted")
	return b, nil
}

// -- Reads --

func (e *Engine) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return e.bookings.GetByID(ctx, id)
}

func (e *Engine) SearchBookings(ctx context.Context, f BookingFilter, limit, offset int) ([]*Booking, int, error) {
	return e.bookings.Search(ctx, f, limit, offset)
}

// PatientBookings lists a patient's bookings, latest appointment first.
func (e *Engine) PatientBookings(ctx context.Context, patientID int64, limit, offset int) ([]*Booking, int, error) {
	if err := e.dir.ResolvePatient(ctx, patientID); err != nil {
		return nil, 0, err
	}
	return e.bookings.Search(ctx, BookingFilter{PatientID: patientID, NewestFirst: true}, limit, offset)
}

// ProfessionalBookings is the professional's worklist in appointment order.
func (e *Engine) ProfessionalBookings(ctx context.Context, professionalID int64, status Status, limit, offset int) ([]*Booking, int, error) {
	if err := e.dir.ResolveProfessional(ctx, professionalID); err != nil {
		return nil, 0, err
	}
	return e.bookings.Search(ctx, BookingFilter{ProfessionalID: professionalID, Status: status}, limit, offset)
}

// HospitalBookings lists a hospital's bookings, latest first, optionally
// narrowed to one kind or one professional.
func (e *Engine) HospitalBookings(ctx context.Context, f BookingFilter, limit, offset int) ([]*Booking, int, error) {
	if err := e.dir.ResolveHospital(ctx, f.HospitalID); err != nil {
		return nil, 0, err
	}
	f.NewestFirst = true
	return e.bookings.Search(ctx, f, limit, offset)
}

func (e *Engine) Events(ctx context.Context, bookingID uuid.UUID) ([]*BookingEvent, error) {
	return e.bookings.Events(ctx, bookingID)
}
