package scheduling

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
	"github.com/hospitalnet/agenda/internal/platform/db"
)

// filter accumulates AND-ed predicates and their positional arguments.
type filter struct {
	clauses []string
	args    []interface{}
}

func (f *filter) add(clause string, arg interface{}) {
	f.args = append(f.args, arg)
	f.clauses = append(f.clauses, fmt.Sprintf(clause, len(f.args)))
}

func (f *filter) where() string {
	if len(f.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(f.clauses, " AND ")
}

// page appends LIMIT and OFFSET placeholders.
func (f *filter) page(limit, offset int) (string, []interface{}) {
	n := len(f.args)
	args := append(append([]interface{}(nil), f.args...), limit, offset)
	return fmt.Sprintf(" LIMIT $%d OFFSET $%d", n+1, n+2), args
}

// =========== Template Repository ===========

type templateRepoPG struct{ pool *pgxpool.Pool }

func NewTemplateRepoPG(pool *pgxpool.Pool) TemplateRepository { return &templateRepoPG{pool: pool} }

func (r *templateRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const templateCols = `id, hospital_id, active_days, plan, notes, created_at, updated_at`

func encodeTemplate(t *Template) ([]string, []byte, error) {
	days := make([]string, len(t.ActiveDays))
	for i, d := range t.ActiveDays {
		days[i] = d.String()
	}
	plan, err := json.Marshal(t.Days)
	if err != nil {
		return nil, nil, fmt.Errorf("encode weekly plan: %w", err)
	}
	return days, plan, nil
}

func (r *templateRepoPG) scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	var days []string
	var plan []byte
	if err := row.Scan(&t.ID, &t.HospitalID, &days, &plan, &t.Notes, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	for _, name := range days {
		d, err := ParseWeekday(name)
		if err != nil {
			return nil, apperr.Internal(err, "corrupt template active days")
		}
		t.ActiveDays = append(t.ActiveDays, d)
	}
	if err := json.Unmarshal(plan, &t.Days); err != nil {
		return nil, apperr.Internal(err, "corrupt template plan")
	}
	return &t, nil
}

func (r *templateRepoPG) Create(ctx context.Context, t *Template) error {
	days, plan, err := encodeTemplate(t)
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO schedule_templates (id, hospital_id, active_days, plan, notes)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at, updated_at`,
		t.ID, t.HospitalID, days, plan, t.Notes).Scan(&t.CreatedAt, &t.UpdatedAt)
	return db.Classify(err, "create template")
}

func (r *templateRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Template, error) {
	t, err := r.scanTemplate(r.conn(ctx).QueryRow(ctx,
		`SELECT `+templateCols+` FROM schedule_templates WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("template %s not found", id)
	}
	return t, db.Classify(err, "get template")
}

func (r *templateRepoPG) Update(ctx context.Context, t *Template) error {
	days, plan, err := encodeTemplate(t)
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE schedule_templates SET active_days=$2, plan=$3, notes=$4, updated_at=NOW()
		WHERE id = $1
		RETURNING created_at, updated_at`,
		t.ID, days, plan, t.Notes).Scan(&t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("template %s not found", t.ID)
	}
	return db.Classify(err, "update template")
}

func (r *templateRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM schedule_templates WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err, "delete template")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("template %s not found", id)
	}
	return nil
}

func (r *templateRepoPG) ListByHospital(ctx context.Context, hospitalID int64, limit, offset int) ([]*Template, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM schedule_templates WHERE hospital_id = $1`, hospitalID).Scan(&total); err != nil {
		return nil, 0, db.Classify(err, "count templates")
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+templateCols+` FROM schedule_templates
		WHERE hospital_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, hospitalID, limit, offset)
	if err != nil {
		return nil, 0, db.Classify(err, "list templates")
	}
	defer rows.Close()

	var items []*Template
	for rows.Next() {
		t, err := r.scanTemplate(rows)
		if err != nil {
			return nil, 0, db.Classify(err, "scan template")
		}
		items = append(items, t)
	}
	return items, total, rows.Err()
}

// =========== Slot Repository ===========

type slotRepoPG struct{ pool *pgxpool.Pool }

func NewSlotRepoPG(pool *pgxpool.Pool) SlotRepository { return &slotRepoPG{pool: pool} }

func (r *slotRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const slotCols = `id, hospital_id, service_type, starts_at, ends_at, rooms, professionals,
	patients_per_slot, remaining_capacity, template_id, created_at, updated_at`

const naturalKeyConstraint = "hospital_schedules_natural_key"

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var service string
	err := row.Scan(&s.ID, &s.HospitalID, &service, &s.StartsAt, &s.EndsAt, &s.Rooms, &s.Professionals,
		&s.Capacity, &s.Remaining, &s.TemplateID, &s.CreatedAt, &s.UpdatedAt)
	s.Service = ServiceType(service)
	return &s, err
}

const insertSlotSQL = `
	INSERT INTO hospital_schedules (id, hospital_id, service_type, starts_at, ends_at, rooms, professionals,
		patients_per_slot, remaining_capacity, template_id)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

func slotArgs(s *Slot) []interface{} {
	rooms, pros := s.Rooms, s.Professionals
	if rooms == nil {
		rooms = []string{}
	}
	if pros == nil {
		pros = []int64{}
	}
	return []interface{}{s.ID, s.HospitalID, string(s.Service), s.StartsAt, s.EndsAt, rooms, pros,
		s.Capacity, s.Remaining, s.TemplateID}
}

const insertBatchSize = 500

func (r *slotRepoPG) InsertMissing(ctx context.Context, slots iter.Seq[*Slot]) (int, int, error) {
	var created, skipped int
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		tx, ok := r.conn(ctx).(pgx.Tx)
		if !ok {
			return apperr.Internal(errors.New("no transaction on context"), "insert slots")
		}
		flush := func(batch *pgx.Batch) error {
			if batch.Len() == 0 {
				return nil
			}
			res := tx.SendBatch(ctx, batch)
			defer res.Close()
			for i := 0; i < batch.Len(); i++ {
				tag, err := res.Exec()
				if err != nil {
					return db.Classify(err, "insert slot")
				}
				if tag.RowsAffected() == 1 {
					created++
				} else {
					skipped++
				}
			}
			return res.Close()
		}

		batch := &pgx.Batch{}
		for s := range slots {
			batch.Queue(insertSlotSQL+` ON CONFLICT ON CONSTRAINT `+naturalKeyConstraint+` DO NOTHING`, slotArgs(s)...)
			if batch.Len() == insertBatchSize {
				if err := flush(batch); err != nil {
					return err
				}
				batch = &pgx.Batch{}
			}
		}
		return flush(batch)
	})
	if err != nil {
		return 0, 0, err
	}
	return created, skipped, nil
}

func (r *slotRepoPG) Create(ctx context.Context, s *Slot) error {
	_, err := r.conn(ctx).Exec(ctx, insertSlotSQL, slotArgs(s)...)
	if db.IsUniqueViolation(err, naturalKeyConstraint) {
		return apperr.Validation("hospital %d already has a %s slot at %s", s.HospitalID, s.Service, s.StartsAt.Format(time.RFC3339))
	}
	return db.Classify(err, "create slot")
}

func (r *slotRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	s, err := scanSlot(r.conn(ctx).QueryRow(ctx, `SELECT `+slotCols+` FROM hospital_schedules WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("slot %s not found", id)
	}
	return s, db.Classify(err, "get slot")
}

func (r *slotRepoPG) Search(ctx context.Context, sf SlotFilter, limit, offset int) ([]*Slot, int, error) {
	var f filter
	if sf.HospitalID != 0 {
		f.add("hospital_id = $%d", sf.HospitalID)
	}
	if sf.Service != "" {
		f.add("service_type = $%d", string(sf.Service))
	}
	if !sf.From.IsZero() {
		f.add("starts_at >= $%d", sf.From)
	}
	if !sf.To.IsZero() {
		f.add("starts_at < $%d", sf.To)
	}
	if sf.AvailableOnly {
		f.add("remaining_capacity > $%d", 0)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM hospital_schedules`+f.where(), f.args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(err, "count slots")
	}
	page, args := f.page(limit, offset)
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+slotCols+` FROM hospital_schedules`+f.where()+` ORDER BY starts_at, service_type, id`+page, args...)
	if err != nil {
		return nil, 0, db.Classify(err, "search slots")
	}
	defer rows.Close()

	var items []*Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, 0, db.Classify(err, "scan slot")
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *slotRepoPG) SetProfessionals(ctx context.Context, id uuid.UUID, professionals []int64) (*Slot, error) {
	if professionals == nil {
		professionals = []int64{}
	}
	s, err := scanSlot(r.conn(ctx).QueryRow(ctx, `
		UPDATE hospital_schedules SET professionals = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+slotCols, id, professionals))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("slot %s not found", id)
	}
	return s, db.Classify(err, "set slot professionals")
}

// =========== Booking Repository ===========

type bookingRepoPG struct{ pool *pgxpool.Pool }

func NewBookingRepoPG(pool *pgxpool.Pool) BookingRepository { return &bookingRepoPG{pool: pool} }

func (r *bookingRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const bookingCols = `id, kind, patient_id, professional_id, hospital_id, slot_id, scheduled_at,
	priority, location, notes, status, holds_seat, version, created_at, updated_at`

func scanBooking(row pgx.Row, extra ...interface{}) (*Booking, error) {
	var b Booking
	var kind, status string
	dest := append(extra, &b.ID, &kind, &b.PatientID, &b.ProfessionalID, &b.HospitalID, &b.SlotID,
		&b.ScheduledAt, &b.Priority, &b.Location, &b.Notes, &status, &b.HoldsSeat, &b.Version,
		&b.CreatedAt, &b.UpdatedAt)
	err := row.Scan(dest...)
	b.Kind, b.Status = ServiceType(kind), Status(status)
	return &b, err
}

// takeSeat decrements remaining capacity. The WHERE clause is the capacity
// check, so two callers racing for the last seat cannot both succeed.
func (r *bookingRepoPG) takeSeat(ctx context.Context, slotID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE hospital_schedules
		SET remaining_capacity = remaining_capacity - 1, updated_at = NOW()
		WHERE id = $1 AND remaining_capacity > 0`, slotID)
	if err != nil {
		return db.Classify(err, "take seat")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	var exists bool
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM hospital_schedules WHERE id = $1)`, slotID).Scan(&exists); err != nil {
		return db.Classify(err, "check slot")
	}
	if !exists {
		return apperr.NotFound("slot %s not found", slotID)
	}
	return apperr.SlotFull("slot %s has no remaining capacity", slotID)
}

func (r *bookingRepoPG) releaseSeat(ctx context.Context, slotID uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE hospital_schedules
		SET remaining_capacity = remaining_capacity + 1, updated_at = NOW()
		WHERE id = $1 AND remaining_capacity < patients_per_slot`, slotID)
	if err != nil {
		return db.Classify(err, "release seat")
	}
	if tag.RowsAffected() == 0 {
		return apperr.Internal(fmt.Errorf("slot %s: nothing to release", slotID), "capacity accounting mismatch")
	}
	return nil
}

func (r *bookingRepoPG) insert(ctx context.Context, b *Booking) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO bookings (id, kind, patient_id, professional_id, hospital_id, slot_id, scheduled_at,
			priority, location, notes, status, holds_seat, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		RETURNING created_at, updated_at`,
		b.ID, string(b.Kind), b.PatientID, b.ProfessionalID, b.HospitalID, b.SlotID, b.ScheduledAt,
		b.Priority, b.Location, b.Notes, string(b.Status), b.HoldsSeat, b.Version).Scan(&b.CreatedAt, &b.UpdatedAt)
	return db.Classify(err, "insert booking")
}

func (r *bookingRepoPG) recordEvent(ctx context.Context, ev *BookingEvent) error {
	if ev == nil {
		return nil
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO booking_events (id, booking_id, from_status, to_status, actor, reason, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		ev.ID, ev.BookingID, string(ev.From), string(ev.To), ev.Actor, ev.Reason, ev.OccurredAt)
	return db.Classify(err, "record booking event")
}

func (r *bookingRepoPG) Reserve(ctx context.Context, b *Booking, ev *BookingEvent) error {
	if b.SlotID == nil {
		return apperr.Validation("reservation needs a slot")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if err := r.takeSeat(ctx, *b.SlotID); err != nil {
			return err
		}
		b.Version = 1
		if err := r.insert(ctx, b); err != nil {
			return err
		}
		return r.recordEvent(ctx, ev)
	})
}

func (r *bookingRepoPG) Create(ctx context.Context, b *Booking, ev *BookingEvent) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		b.Version = 1
		if err := r.insert(ctx, b); err != nil {
			return err
		}
		return r.recordEvent(ctx, ev)
	})
}

func (r *bookingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := scanBooking(r.conn(ctx).QueryRow(ctx, `SELECT `+bookingCols+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	return b, db.Classify(err, "get booking")
}

// lockSlot takes b's slot row ahead of the booking row, the order Reserve
// and VoidSlot lock in. A slot that is gone was voided after b was read.
func (r *bookingRepoPG) lockSlot(ctx context.Context, b *Booking) error {
	if b.SlotID == nil {
		return apperr.Validation("booking %s has no slot", b.ID)
	}
	var id uuid.UUID
	err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM hospital_schedules WHERE id = $1 FOR UPDATE`, *b.SlotID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		if err := r.stale(ctx, b); err != nil {
			return err
		}
		return apperr.NotFound("slot %s not found", *b.SlotID)
	}
	return db.Classify(err, "lock slot")
}

// stale reports NotFound or StorageConflict when the stored booking no
// longer matches b.Version, and nil when it still does.
func (r *bookingRepoPG) stale(ctx context.Context, b *Booking) error {
	var version int
	err := r.conn(ctx).QueryRow(ctx, `SELECT version FROM bookings WHERE id = $1`, b.ID).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("booking %s not found", b.ID)
	}
	if err != nil {
		return db.Classify(err, "check booking version")
	}
	if version != b.Version {
		return apperr.StorageConflict(nil, "booking %s changed concurrently", b.ID)
	}
	return nil
}

func (r *bookingRepoPG) Save(ctx context.Context, b *Booking, seat SeatChange, ev *BookingEvent) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if seat != SeatKeep {
			if err := r.lockSlot(ctx, b); err != nil {
				return err
			}
		}

		// The version check comes before any capacity change so a lost race
		// surfaces as a conflict, never as an accounting error.
		err := r.conn(ctx).QueryRow(ctx, `
			UPDATE bookings SET professional_id=$3, slot_id=$4, scheduled_at=$5, priority=$6, location=$7,
				notes=$8, status=$9, holds_seat=$10, version=version+1, updated_at=NOW()
			WHERE id = $1 AND version = $2
			RETURNING version, updated_at`,
			b.ID, b.Version, b.ProfessionalID, b.SlotID, b.ScheduledAt, b.Priority, b.Location,
			b.Notes, string(b.Status), b.HoldsSeat).Scan(&b.Version, &b.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			if err := r.stale(ctx, b); err != nil {
				return err
			}
			return apperr.StorageConflict(nil, "booking %s changed concurrently", b.ID)
		}
		if err != nil {
			return db.Classify(err, "update booking")
		}

		switch seat {
		case SeatTake:
			err = r.takeSeat(ctx, *b.SlotID)
		case SeatRelease:
			err = r.releaseSeat(ctx, *b.SlotID)
		}
		if err != nil {
			return err
		}
		return r.recordEvent(ctx, ev)
	})
}

func (r *bookingRepoPG) Delete(ctx context.Context, b *Booking) error {
	return db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		if b.HoldsSeat {
			if err := r.lockSlot(ctx, b); err != nil {
				return err
			}
		}
		tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM bookings WHERE id = $1 AND version = $2`, b.ID, b.Version)
		if err != nil {
			return db.Classify(err, "delete booking")
		}
		if tag.RowsAffected() == 0 {
			if err := r.stale(ctx, b); err != nil {
				return err
			}
			return apperr.StorageConflict(nil, "booking %s changed concurrently", b.ID)
		}
		if b.HoldsSeat {
			return r.releaseSeat(ctx, *b.SlotID)
		}
		return nil
	})
}

func (r *bookingRepoPG) VoidSlot(ctx context.Context, slotID uuid.UUID, actor, reason string, at time.Time) ([]*Booking, error) {
	var cancelled []*Booking
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var id uuid.UUID
		err := r.conn(ctx).QueryRow(ctx, `SELECT id FROM hospital_schedules WHERE id = $1 FOR UPDATE`, slotID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("slot %s not found", slotID)
		}
		if err != nil {
			return db.Classify(err, "lock slot")
		}

		rows, err := r.conn(ctx).Query(ctx, `
			WITH live AS (
				SELECT id, status FROM bookings
				WHERE slot_id = $1 AND status NOT IN ('completed', 'cancelled', 'no_show')
				ORDER BY id
				FOR UPDATE
			)
			UPDATE bookings b SET status = 'cancelled', holds_seat = FALSE, version = b.version + 1, updated_at = $2
			FROM live
			WHERE b.id = live.id
			RETURNING live.status, b.id, b.kind, b.patient_id, b.professional_id, b.hospital_id, b.slot_id,
				b.scheduled_at, b.priority, b.location, b.notes, b.status, b.holds_seat, b.version,
				b.created_at, b.updated_at`, slotID, at)
		if err != nil {
			return db.Classify(err, "cancel slot bookings")
		}
		var froms []Status
		for rows.Next() {
			var from string
			b, err := scanBooking(rows, &from)
			if err != nil {
				rows.Close()
				return db.Classify(err, "scan cancelled booking")
			}
			froms = append(froms, Status(from))
			cancelled = append(cancelled, b)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return db.Classify(err, "cancel slot bookings")
		}

		batch := &pgx.Batch{}
		for i, b := range cancelled {
			batch.Queue(`
				INSERT INTO booking_events (id, booking_id, from_status, to_status, actor, reason, occurred_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				uuid.New(), b.ID, string(froms[i]), string(StatusCancelled), actor, reason, at)
		}
		// Finished bookings may still count a seat; it goes away with the slot.
		batch.Queue(`UPDATE bookings SET holds_seat = FALSE WHERE slot_id = $1 AND holds_seat`, slotID)
		batch.Queue(`DELETE FROM hospital_schedules WHERE id = $1`, slotID)
		tx, ok := r.conn(ctx).(pgx.Tx)
		if !ok {
			return apperr.Internal(errors.New("no transaction on context"), "void slot")
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return db.Classify(err, "void slot")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

func (r *bookingRepoPG) Search(ctx context.Context, bf BookingFilter, limit, offset int) ([]*Booking, int, error) {
	var f filter
	if bf.PatientID != 0 {
		f.add("patient_id = $%d", bf.PatientID)
	}
	if bf.ProfessionalID != 0 {
		f.add("professional_id = $%d", bf.ProfessionalID)
	}
	if bf.HospitalID != 0 {
		f.add("hospital_id = $%d", bf.HospitalID)
	}
	if bf.SlotID != nil {
		f.add("slot_id = $%d", *bf.SlotID)
	}
	if bf.Status != "" {
		f.add("status = $%d", string(bf.Status))
	}
	if bf.Kind != "" {
		f.add("kind = $%d", string(bf.Kind))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM bookings`+f.where(), f.args...).Scan(&total); err != nil {
		return nil, 0, db.Classify(err, "count bookings")
	}
	order := ` ORDER BY scheduled_at, created_at, id`
	if bf.NewestFirst {
		order = ` ORDER BY scheduled_at DESC, created_at DESC, id`
	}
	page, args := f.page(limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+bookingCols+` FROM bookings`+f.where()+order+page, args...)
	if err != nil {
		return nil, 0, db.Classify(err, "search bookings")
	}
	defer rows.Close()

	var items []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, db.Classify(err, "scan booking")
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *bookingRepoPG) Events(ctx context.Context, bookingID uuid.UUID) ([]*BookingEvent, error) {
	if _, err := r.GetByID(ctx, bookingID); err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, booking_id, from_status, to_status, actor, reason, occurred_at
		FROM booking_events WHERE booking_id = $1
		ORDER BY occurred_at, id`, bookingID)
	if err != nil {
		return nil, db.Classify(err, "list booking events")
	}
	defer rows.Close()

	var items []*BookingEvent
	for rows.Next() {
		var ev BookingEvent
		var from, to string
		if err := rows.Scan(&ev.ID, &ev.BookingID, &from, &to, &ev.Actor, &ev.Reason, &ev.OccurredAt); err != nil {
			return nil, db.Classify(err, "scan booking event")
		}
		ev.From, ev.To = Status(from), Status(to)
		items = append(items, &ev)
	}
	return items, rows.Err()
}
