package approval

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is a professional's approval state.
type Status string

const (
	Pending  Status = "pending"
	Approved Status = "approved"
	Rejected Status = "rejected"
)

// The registry stores statuses in Portuguese.
var storedNames = map[Status]string{
	Pending:  "pendente",
	Approved: "aprovado",
	Rejected: "rejeitado",
}

// transitions lists the permitted moves. Administrators may override any
// decision, so every edge is present, self-loops included.
var transitions = map[Status]map[Status]bool{
	Pending:  {Pending: true, Approved: true, Rejected: true},
	Approved: {Pending: true, Approved: true, Rejected: true},
	Rejected: {Pending: true, Approved: true, Rejected: true},
}

func (s Status) Valid() bool {
	_, ok := storedNames[s]
	return ok
}

// Stored returns the registry column value.
func (s Status) Stored() string {
	return storedNames[s]
}

// ParseStatus accepts either vocabulary.
func ParseStatus(v string) (Status, error) {
	if s := Status(v); s.Valid() {
		return s, nil
	}
	for s, name := range storedNames {
		if name == v {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown approval status %q", v)
}

func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// Event is one row of the approval audit trail.
type Event struct {
	ID             uuid.UUID `json:"id"`
	ProfessionalID int64     `json:"professional_id"`
	From           Status    `json:"from"`
	To             Status    `json:"to"`
	Actor          string    `json:"actor"`
	Reason         string    `json:"reason,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// StatusView is the response for GET /professionals/:id/approval.
type StatusView struct {
	ProfessionalID  int64  `json:"professional_id"`
	Status          Status `json:"status"`
	Assignable      bool   `json:"assignable"`
	Authenticatable bool   `json:"authenticatable"`
}
