package scheduling

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ServiceType is what a slot or booking is for.
type ServiceType string

const (
	Consultation ServiceType = "consultation"
	Exam         ServiceType = "exam"
)

func (s ServiceType) Valid() bool {
	return s == Consultation || s == Exam
}

// Clock is a wall clock time of day in minute precision.
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil || len(s) != 5 {
		return Clock{}, fmt.Errorf("invalid time of day %q, want HH:MM", s)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Weekday is time.Weekday spelled as a lowercase English name on the wire.
type Weekday time.Weekday

var weekdayNames = [...]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range weekdayNames {
		if name == s || name[:3] == s {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

func (d Weekday) String() string {
	if d < 0 || int(d) >= len(weekdayNames) {
		return fmt.Sprintf("weekday(%d)", int(d))
	}
	return weekdayNames[d]
}

func (d Weekday) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Weekday) UnmarshalText(b []byte) error {
	parsed, err := ParseWeekday(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TimeBlock is a run of hourly slots starting at Start.
type TimeBlock struct {
	Start        Clock       `json:"start"`
	Hours        int         `json:"hours,omitempty"`
	Service      ServiceType `json:"service"`
	SeatsPerHour int         `json:"seats_per_hour"`
	Rooms        []string    `json:"rooms,omitempty"`
}

// hours treats an unset duration as one hour.
func (b TimeBlock) hours() int {
	if b.Hours <= 0 {
		return 1
	}
	return b.Hours
}

// WeeklyPlan holds the blocks for each day of the week.
type WeeklyPlan struct {
	Monday    []TimeBlock `json:"monday,omitempty"`
	Tuesday   []TimeBlock `json:"tuesday,omitempty"`
	Wednesday []TimeBlock `json:"wednesday,omitempty"`
	Thursday  []TimeBlock `json:"thursday,omitempty"`
	Friday    []TimeBlock `json:"friday,omitempty"`
	Saturday  []TimeBlock `json:"saturday,omitempty"`
	Sunday    []TimeBlock `json:"sunday,omitempty"`
}

func (p *WeeklyPlan) day(d time.Weekday) *[]TimeBlock {
	switch d {
	case time.Monday:
		return &p.Monday
	case time.Tuesday:
		return &p.Tuesday
	case time.Wednesday:
		return &p.Wednesday
	case time.Thursday:
		return &p.Thursday
	case time.Friday:
		return &p.Friday
	case time.Saturday:
		return &p.Saturday
	case time.Sunday:
		return &p.Sunday
	}
	return nil
}

func (p *WeeklyPlan) ForWeekday(d time.Weekday) []TimeBlock {
	if blocks := p.day(d); blocks != nil {
		return *blocks
	}
	return nil
}

func (p *WeeklyPlan) Set(d time.Weekday, blocks ...TimeBlock) {
	if ptr := p.day(d); ptr != nil {
		*ptr = blocks
	}
}

// Template is a hospital's recurring weekly availability.
type Template struct {
	ID         uuid.UUID  `json:"id"`
	HospitalID int64      `json:"hospital_id"`
	ActiveDays []Weekday  `json:"active_days"`
	Days       WeeklyPlan `json:"days"`
	Notes      string     `json:"notes,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (t *Template) IsActive(d time.Weekday) bool {
	for _, a := range t.ActiveDays {
		if time.Weekday(a) == d {
			return true
		}
	}
	return false
}

// Validate checks the template's internal consistency. It does not touch
// the directory.
func (t *Template) Validate() error {
	if t.HospitalID <= 0 {
		return fmt.Errorf("hospital_id is required")
	}
	seen := make(map[Weekday]bool, len(t.ActiveDays))
	for _, d := range t.ActiveDays {
		if d < 0 || d > 6 {
			return fmt.Errorf("invalid active day %d", int(d))
		}
		if seen[d] {
			return fmt.Errorf("active day %s listed twice", d)
		}
		seen[d] = true
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		blocks := t.Days.ForWeekday(wd)
		if len(blocks) > 0 && !t.IsActive(wd) {
			return fmt.Errorf("%s has time blocks but is not an active day", Weekday(wd))
		}
		for i, b := range blocks {
			if err := b.validate(); err != nil {
				return fmt.Errorf("%s block %d: %w", Weekday(wd), i, err)
			}
		}
	}
	return nil
}

func (b TimeBlock) validate() error {
	if !b.Service.Valid() {
		return fmt.Errorf("service must be consultation or exam, got %q", b.Service)
	}
	if b.SeatsPerHour < 0 {
		return fmt.Errorf("seats_per_hour must not be negative")
	}
	if b.Hours < 0 {
		return fmt.Errorf("hours must be positive")
	}
	if b.Start.Hour < 0 || b.Start.Hour > 23 || b.Start.Minute < 0 || b.Start.Minute > 59 {
		return fmt.Errorf("invalid start %s", b.Start)
	}
	if b.Start.Minutes()+b.hours()*60 > 24*60 {
		return fmt.Errorf("block starting %s for %dh runs past midnight", b.Start, b.hours())
	}
	return nil
}

// Slot is one concrete bookable hour.
type Slot struct {
	ID            uuid.UUID   `json:"id"`
	HospitalID    int64       `json:"hospital_id"`
	Service       ServiceType `json:"service"`
	StartsAt      time.Time   `json:"starts_at"`
	EndsAt        time.Time   `json:"ends_at"`
	Rooms         []string    `json:"rooms"`
	Professionals []int64     `json:"professionals"`
	Capacity      int         `json:"capacity"`
	Remaining     int         `json:"remaining_capacity"`
	TemplateID    *uuid.UUID  `json:"template_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Reserved is the number of seats currently held against the slot.
func (s *Slot) Reserved() int { return s.Capacity - s.Remaining }

// NaturalKey identifies a slot independently of its id.
func (s *Slot) NaturalKey() string {
	return fmt.Sprintf("%d|%s|%d", s.HospitalID, s.Service, s.StartsAt.UTC().Unix())
}

// Booking is a consultation or an exam for one patient.
type Booking struct {
	ID             uuid.UUID   `json:"id"`
	Kind           ServiceType `json:"kind"`
	PatientID      int64       `json:"patient_id"`
	ProfessionalID *int64      `json:"professional_id"`
	HospitalID     int64       `json:"hospital_id"`
	SlotID         *uuid.UUID  `json:"slot_id"`
	ScheduledAt    time.Time   `json:"scheduled_at"`
	Priority       string      `json:"priority,omitempty"`
	Location       string      `json:"location,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	Status         Status      `json:"status"`
	HoldsSeat      bool        `json:"holds_seat"`
	Version        int         `json:"version"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// BookingView adds the display label for the booking's kind.
type BookingView struct {
	*Booking
	StatusLabel string `json:"status_label"`
}

func (b *Booking) View() BookingView {
	return BookingView{Booking: b, StatusLabel: b.Status.Label(b.Kind)}
}

func (b *Booking) clone() *Booking {
	cp := *b
	if b.ProfessionalID != nil {
		id := *b.ProfessionalID
		cp.ProfessionalID = &id
	}
	if b.SlotID != nil {
		id := *b.SlotID
		cp.SlotID = &id
	}
	return &cp
}

func (s *Slot) clone() *Slot {
	cp := *s
	cp.Rooms = append([]string(nil), s.Rooms...)
	cp.Professionals = append([]int64(nil), s.Professionals...)
	if s.TemplateID != nil {
		id := *s.TemplateID
		cp.TemplateID = &id
	}
	return &cp
}

// BookingEvent is one status change in a booking's audit trail.
type BookingEvent struct {
	ID         uuid.UUID `json:"id"`
	BookingID  uuid.UUID `json:"booking_id"`
	From       Status    `json:"from,omitempty"`
	To         Status    `json:"to"`
	Actor      string    `json:"actor"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SlotFilter narrows slot listings. Zero values match everything.
type SlotFilter struct {
	HospitalID    int64
	Service       ServiceType
	From          time.Time
	To            time.Time
	AvailableOnly bool
}

func (f SlotFilter) matches(s *Slot) bool {
	if f.HospitalID != 0 && s.HospitalID != f.HospitalID {
		return false
	}
	if f.Service != "" && s.Service != f.Service {
		return false
	}
	if !f.From.IsZero() && s.StartsAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !s.StartsAt.Before(f.To) {
		return false
	}
	if f.AvailableOnly && s.Remaining <= 0 {
		return false
	}
	return true
}

// BookingFilter narrows booking listings.
type BookingFilter struct {
	PatientID      int64
	ProfessionalID int64
	HospitalID     int64
	SlotID         *uuid.UUID
	Status         Status
	Kind           ServiceType
	// NewestFirst orders by scheduled_at descending.
	NewestFirst bool
}

func (f BookingFilter) matches(b *Booking) bool {
	if f.PatientID != 0 && b.PatientID != f.PatientID {
		return false
	}
	if f.ProfessionalID != 0 && (b.ProfessionalID == nil || *b.ProfessionalID != f.ProfessionalID) {
		return false
	}
	if f.HospitalID != 0 && b.HospitalID != f.HospitalID {
		return false
	}
	if f.SlotID != nil && (b.SlotID == nil || *b.SlotID != *f.SlotID) {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if f.Kind != "" && b.Kind != f.Kind {
		return false
	}
	return true
}
