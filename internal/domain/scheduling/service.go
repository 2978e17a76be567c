package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
	"github.com/hospitalnet/agenda/internal/platform/lock"
)

// Directory confirms that referenced hospitals, patients and professionals
// exist.
type Directory interface {
	ResolveHospital(ctx context.Context, id int64) error
	ResolvePatient(ctx context.Context, id int64) error
	ResolveProfessional(ctx context.Context, id int64) error
}

// ApprovalGate decides whether a professional may be put to work.
type ApprovalGate interface {
	IsAssignable(ctx context.Context, id int64) (bool, error)
}

// eligible returns nil when the professional exists and is approved.
func eligible(ctx context.Context, dir Directory, gate ApprovalGate, id int64) error {
	if err := dir.ResolveProfessional(ctx, id); err != nil {
		return err
	}
	ok, err := gate.IsAssignable(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ProfessionalNotEligible(id, "not approved")
	}
	return nil
}

// Service manages templates and slots. Seat accounting lives in Engine.
type Service struct {
	templates TemplateRepository
	slots     SlotRepository
	dir       Directory
	gate      ApprovalGate
	mat       *Materializer
	locker    lock.Locker
	lockTTL   time.Duration
	logger    zerolog.Logger
}

func NewService(templates TemplateRepository, slots SlotRepository, dir Directory, gate ApprovalGate,
	mat *Materializer, locker lock.Locker, lockTTL time.Duration, logger zerolog.Logger) *Service {
	if lockTTL <= 0 {
		lockTTL = 2 * time.Minute
	}
	return &Service{
		templates: templates,
		slots:     slots,
		dir:       dir,
		gate:      gate,
		mat:       mat,
		locker:    locker,
		lockTTL:   lockTTL,
		logger:    logger,
	}
}

// Materializer exposes the date helpers used by the HTTP layer.
func (s *Service) Materializer() *Materializer { return s.mat }

// -- Templates --

func (s *Service) CreateTemplate(ctx context.Context, t *Template) error {
	if err := t.Validate(); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	if err := s.dir.ResolveHospital(ctx, t.HospitalID); err != nil {
		return err
	}
	t.ID = uuid.New()
	if err := s.templates.Create(ctx, t); err != nil {
		return err
	}
	s.logger.Info().Str("template_id", t.ID.String()).Int64("hospital_id", t.HospitalID).Msg("template created")
	return nil
}

func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*Template, error) {
	return s.templates.GetByID(ctx, id)
}

// UpdateTemplate replaces the weekly plan. Slots already materialized from
// the template are left as they are.
func (s *Service) UpdateTemplate(ctx context.Context, t *Template) error {
	cur, err := s.templates.GetByID(ctx, t.ID)
	if err != nil {
		return err
	}
	t.HospitalID = cur.HospitalID
	if err := t.Validate(); err != nil {
		return apperr.Validation("%s", err.Error())
	}
	return s.templates.Update(ctx, t)
}

func (s *Service) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	return s.templates.Delete(ctx, id)
}

func (s *Service) ListTemplates(ctx context.Context, hospitalID int64, limit, offset int) ([]*Template, int, error) {
	if err := s.dir.ResolveHospital(ctx, hospitalID); err != nil {
		return nil, 0, err
	}
	return s.templates.ListByHospital(ctx, hospitalID, limit, offset)
}

// MaterializeResult counts what a materialization wrote.
type MaterializeResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// Materialize writes the template's slots for [from, to]. Slots that already
// exist for the same hospital, service and start are skipped, so running
// the same range twice creates nothing the second time. Runs for one
// hospital are serialized through the locker.
func (s *Service) Materialize(ctx context.Context, templateID uuid.UUID, from, to time.Time) (*MaterializeResult, error) {
	t, err := s.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	seq, err := s.mat.Materialize(ctx, t, from, to)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("materialize:hospital:%d", t.HospitalID)
	release, ok, err := lock.Acquire(ctx, s.locker, key, s.lockTTL, materializeLockWait)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, apperr.StorageConflict(nil, "hospital %d is already being materialized", t.HospitalID)
	}
	defer release()

	created, skipped, err := s.slots.InsertMissing(ctx, seq)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("template_id", t.ID.String()).
		Int64("hospital_id", t.HospitalID).
		Str("from", s.mat.Day(from).Format(time.DateOnly)).
		Str("to", s.mat.Day(to).Format(time.DateOnly)).
		Int("created", created).
		Int("skipped", skipped).
		Msg("slots materialized")
	return &MaterializeResult{Created: created, Skipped: skipped}, nil
}

const materializeLockWait = 5 * time.Second

// -- Slots --

// CreateSlot adds a one-off slot outside any template.
func (s *Service) CreateSlot(ctx context.Context, sl *Slot) error {
	if !sl.Service.Valid() {
		return apperr.Validation("service must be consultation or exam")
	}
	if sl.Capacity < 0 {
		return apperr.Validation("capacity must not be negative")
	}
	if err := s.dir.ResolveHospital(ctx, sl.HospitalID); err != nil {
		return err
	}
	for _, id := range sl.Professionals {
		if err := eligible(ctx, s.dir, s.gate, id); err != nil {
			return err
		}
	}
	sl.ID = uuid.New()
	sl.StartsAt = sl.StartsAt.Truncate(time.Minute)
	if sl.EndsAt.IsZero() {
		sl.EndsAt = sl.StartsAt.Add(time.Hour)
	}
	if !sl.EndsAt.After(sl.StartsAt) {
		return apperr.InvalidRange("ends_at must be after starts_at")
	}
	sl.Remaining = sl.Capacity
	sl.TemplateID = nil
	if err := s.slots.Create(ctx, sl); err != nil {
		return err
	}
	s.logger.Info().Str("slot_id", sl.ID.String()).Int64("hospital_id", sl.HospitalID).Msg("slot created")
	return nil
}

func (s *Service) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	return s.slots.GetByID(ctx, id)
}

func (s *Service) SearchSlots(ctx context.Context, f SlotFilter, limit, offset int) ([]*Slot, int, error) {
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return nil, 0, apperr.InvalidRange("from is after to")
	}
	return s.slots.Search(ctx, f, limit, offset)
}

// SetSlotProfessionals replaces the professionals staffing a slot. Every
// one of them must be approved.
func (s *Service) SetSlotProfessionals(ctx context.Context, id uuid.UUID, professionals []int64) (*Slot, error) {
	seen := make(map[int64]bool, len(professionals))
	unique := make([]int64, 0, len(professionals))
	for _, p := range professionals {
		if seen[p] {
			continue
		}
		seen[p] = true
		if err := eligible(ctx, s.dir, s.gate, p); err != nil {
			return nil, err
		}
		unique = append(unique, p)
	}
	sl, err := s.slots.SetProfessionals(ctx, id, unique)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("slot_id", id.String()).Ints64("professionals", unique).Msg("slot staffing changed")
	return sl, nil
}
