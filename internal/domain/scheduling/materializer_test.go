package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hospitalnet/agenda/internal/domain/directory"
	"github.com/hospitalnet/agenda/internal/platform/apperr"
)

// 2024-03-04 is a Monday.
var firstMonday = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func newTestMaterializer() *Materializer {
	dir := directory.NewMemory()
	dir.AddHospital(1)
	return NewMaterializer(dir, time.UTC, 31)
}

func collect(t *testing.T, m *Materializer, tpl *Template, from, to time.Time) []*Slot {
	t.Helper()
	seq, err := m.Materialize(context.Background(), tpl, from, to)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	var out []*Slot
	for s := range seq {
		out = append(out, s)
	}
	return out
}

func TestMaterialize_SevenHourMonday(t *testing.T) {
	m := newTestMaterializer()
	tpl := monday(TimeBlock{Start: Clock{9, 0}, Hours: 7, Service: Consultation, SeatsPerHour: 3, Rooms: []string{"A1"}})
	tpl.ID = uuid.New()

	slots := collect(t, m, tpl, firstMonday, firstMonday)
	if len(slots) != 7 {
		t.Fatalf("expected 7 slots, got %d", len(slots))
	}
	for i, s := range slots {
		wantStart := firstMonday.Add(time.Duration(9+i) * time.Hour)
		if !s.StartsAt.Equal(wantStart) {
			t.Errorf("slot %d starts %s, want %s", i, s.StartsAt, wantStart)
		}
		if s.EndsAt.Sub(s.StartsAt) != time.Hour {
			t.Errorf("slot %d is not one hour long", i)
		}
		if s.Capacity != 3 || s.Remaining != 3 {
			t.Errorf("slot %d capacity %d/%d, want 3/3", i, s.Remaining, s.Capacity)
		}
		if s.TemplateID == nil || *s.TemplateID != tpl.ID {
			t.Errorf("slot %d not linked to template", i)
		}
		if s.Service != Consultation || s.HospitalID != 1 {
			t.Errorf("slot %d has wrong service or hospital", i)
		}
	}
	if last := slots[6].StartsAt.Hour(); last != 15 {
		t.Errorf("expected last slot at 15:00, got %d:00", last)
	}
}

func TestMaterialize_OnlyActiveDays(t *testing.T) {
	m := newTestMaterializer()
	tpl := monday(TimeBlock{Start: Clock{8, 0}, Hours: 2, Service: Exam, SeatsPerHour: 1})

	// Two full weeks hold two Mondays.
	slots := collect(t, m, tpl, firstMonday, firstMonday.AddDate(0, 0, 13))
	if len(slots) != 4 {
		t.Fatalf("expected 4 slots, got %d", len(slots))
	}
	for _, s := range slots {
		if s.StartsAt.Weekday() != time.Monday {
			t.Errorf("slot on %s", s.StartsAt.Weekday())
		}
	}
}

func TestMaterialize_Restartable(t *testing.T) {
	m := newTestMaterializer()
	tpl := monday(TimeBlock{Start: Clock{9, 0}, Hours: 3, Service: Consultation, SeatsPerHour: 2})
	seq, err := m.Materialize(context.Background(), tpl, firstMonday, firstMonday)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}

	var first, second []*Slot
	for s := range seq {
		first = append(first, s)
	}
	for s := range seq {
		second = append(second, s)
	}
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 slots per pass, got %d and %d", len(first), len(second))
	}
	if first[0].NaturalKey() != second[0].NaturalKey() {
		t.Error("expected both passes to produce the same slots")
	}

	// Stopping early is allowed.
	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Errorf("expected early break after 1, got %d", n)
	}
}

func TestMaterialize_WallClockInLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	dir := directory.NewMemory()
	dir.AddHospital(1)
	m := NewMaterializer(dir, loc, 31)
	tpl := monday(TimeBlock{Start: Clock{9, 0}, Service: Consultation, SeatsPerHour: 1})

	day := time.Date(2024, 3, 4, 0, 0, 0, 0, loc)
	slots := collect(t, m, tpl, day, day)
	if len(slots) != 1 {
		t.Fatalf("expected 1 slot, got %d", len(slots))
	}
	if got := slots[0].StartsAt.In(loc).Hour(); got != 9 {
		t.Errorf("expected 09:00 local, got %d", got)
	}
	if got := slots[0].StartsAt.UTC().Hour(); got != 12 {
		t.Errorf("expected 12:00 UTC, got %d", got)
	}
}

func TestMaterialize_Errors(t *testing.T) {
	m := newTestMaterializer()
	valid := monday(TimeBlock{Start: Clock{9, 0}, Service: Consultation, SeatsPerHour: 1})

	unknown := monday(TimeBlock{Start: Clock{9, 0}, Service: Consultation, SeatsPerHour: 1})
	unknown.HospitalID = 99

	invalid := monday(TimeBlock{Start: Clock{23, 0}, Hours: 2, Service: Consultation, SeatsPerHour: 1})

	tests := []struct {
		name     string
		tpl      *Template
		from, to time.Time
		want     error
	}{
		{"from after to", valid, firstMonday.AddDate(0, 0, 1), firstMonday, apperr.ErrInvalidRange},
		{"range too long", valid, firstMonday, firstMonday.AddDate(0, 0, 31), apperr.ErrInvalidRange},
		{"unknown hospital", unknown, firstMonday, firstMonday, apperr.ErrUnknownHospital},
		{"invalid template", invalid, firstMonday, firstMonday, apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Materialize(context.Background(), tt.tpl, tt.from, tt.to)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	// The longest allowed range is fine.
	if _, err := m.Materialize(context.Background(), valid, firstMonday, firstMonday.AddDate(0, 0, 30)); err != nil {
		t.Errorf("expected 31 days to be accepted, got %v", err)
	}
}
