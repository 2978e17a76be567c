package approval

import (
	"context"
)

type Repository interface {
	GetStatus(ctx context.Context, professionalID int64) (Status, error)
	// SetStatus writes ev.To and appends ev to the history in one atomic
	// step, returning the status it replaced. ev.From is filled in.
	SetStatus(ctx context.Context, ev *Event) (Status, error)
	History(ctx context.Context, professionalID int64, limit, offset int) ([]*Event, int, error)
}
