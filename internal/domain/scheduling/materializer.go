package scheduling

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
)

// HospitalResolver confirms a hospital exists.
type HospitalResolver interface {
	ResolveHospital(ctx context.Context, id int64) error
}

// Materializer expands templates into concrete hourly slots. Dates are read
// as calendar days in loc and each block's start is wall clock time there.
type Materializer struct {
	hospitals HospitalResolver
	loc       *time.Location
	maxDays   int
}

func NewMaterializer(hospitals HospitalResolver, loc *time.Location, maxDays int) *Materializer {
	if loc == nil {
		loc = time.UTC
	}
	return &Materializer{hospitals: hospitals, loc: loc, maxDays: maxDays}
}

// Day truncates t to midnight of its calendar date in the materializer's
// location.
func (m *Materializer) Day(t time.Time) time.Time {
	y, mo, d := t.In(m.loc).Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, m.loc)
}

// ParseDate reads a YYYY-MM-DD date in the materializer's location.
func (m *Materializer) ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(time.DateOnly, s, m.loc)
	if err != nil {
		return time.Time{}, apperr.Validation("invalid date %q, want YYYY-MM-DD", s)
	}
	return d, nil
}

// Materialize checks the request and returns the slots for every active day
// in [from, to], both inclusive. Nothing is generated until the sequence is
// ranged over, and every range starts from the beginning with fresh ids.
func (m *Materializer) Materialize(ctx context.Context, t *Template, from, to time.Time) (iter.Seq[*Slot], error) {
	from, to = m.Day(from), m.Day(to)
	if from.After(to) {
		return nil, apperr.InvalidRange("from %s is after to %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}
	if days := daysBetween(from, to) + 1; m.maxDays > 0 && days > m.maxDays {
		return nil, apperr.InvalidRange("range covers %d days, at most %d allowed", days, m.maxDays)
	}
	if err := t.Validate(); err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	if err := m.hospitals.ResolveHospital(ctx, t.HospitalID); err != nil {
		return nil, err
	}

	plan := t.Days
	active := make(map[time.Weekday]bool, len(t.ActiveDays))
	for _, d := range t.ActiveDays {
		active[time.Weekday(d)] = true
	}
	templateID := t.ID
	hospitalID := t.HospitalID

	return func(yield func(*Slot) bool) {
		for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
			if !active[day.Weekday()] {
				continue
			}
			y, mo, d := day.Date()
			for _, b := range plan.ForWeekday(day.Weekday()) {
				for h := 0; h < b.hours(); h++ {
					start := time.Date(y, mo, d, b.Start.Hour+h, b.Start.Minute, 0, 0, m.loc)
					s := &Slot{
						ID:            uuid.New(),
						HospitalID:    hospitalID,
						Service:       b.Service,
						StartsAt:      start,
						EndsAt:        start.Add(time.Hour),
						Rooms:         append([]string(nil), b.Rooms...),
						Professionals: []int64{},
						Capacity:      b.SeatsPerHour,
						Remaining:     b.SeatsPerHour,
					}
					if templateID != uuid.Nil {
						id := templateID
						s.TemplateID = &id
					}
					if !yield(s) {
						return
					}
				}
			}
		}
	}, nil
}

// daysBetween counts calendar days, immune to DST length changes.
func daysBetween(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
