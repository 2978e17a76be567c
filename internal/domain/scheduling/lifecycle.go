package scheduling

import (
	"fmt"
	"strings"
)

// Status is a booking's position in its lifecycle.
type Status string

const (
	StatusRequested Status = "requested"
	StatusScheduled Status = "scheduled"
	StatusAssigned  Status = "assigned"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// transitions lists every edge a caller may request through Transition.
// Moving into assigned goes through Assign instead.
var transitions = map[Status][]Status{
	StatusRequested: {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusCancelled},
	StatusAssigned:  {StatusCompleted, StatusCancelled, StatusNoShow},
}

// examLabels is how exams present the lifecycle.
var examLabels = map[Status]string{
	StatusRequested: "pendente",
	StatusScheduled: "pendente",
	StatusAssigned:  "atribuido",
	StatusCompleted: "concluido",
	StatusCancelled: "cancelado",
	StatusNoShow:    "ausente",
}

// examInput maps the exam vocabulary back. A pending exam already has a
// date, so pendente reads as scheduled.
var examInput = map[string]Status{
	"pendente":  StatusScheduled,
	"atribuido": StatusAssigned,
	"concluido": StatusCompleted,
	"cancelado": StatusCancelled,
	"ausente":   StatusNoShow,
}

func (s Status) Valid() bool {
	switch s {
	case StatusRequested, StatusScheduled, StatusAssigned, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

// Label renders s in the vocabulary used for kind.
func (s Status) Label(kind ServiceType) string {
	if kind == Exam {
		if l, ok := examLabels[s]; ok {
			return l
		}
	}
	return string(s)
}

// ParseStatus accepts either vocabulary.
func ParseStatus(raw string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if s := Status(v); s.Valid() {
		return s, nil
	}
	if s, ok := examInput[v]; ok {
		return s, nil
	}
	return "", fmt.Errorf("unknown booking status %q", raw)
}

// CanTransition reports whether Transition may move a booking from one
// status to the other.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// canAssign reports whether Assign may act on a booking in s. Assigned
// bookings can be reassigned.
func canAssign(s Status) bool {
	return s == StatusScheduled || s == StatusAssigned
}

// UnmarshalText lets request bodies carry either vocabulary.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// SeatChange is what a booking update does to its slot's capacity.
type SeatChange int

const (
	SeatKeep SeatChange = iota
	SeatTake
	SeatRelease
)
