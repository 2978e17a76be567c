package approval

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
)

// Gate is the only writer of professional approval state and the authority
// other components ask before letting a professional work or sign in.
type Gate struct {
	repo   Repository
	logger zerolog.Logger
	now    func() time.Time
}

func NewGate(repo Repository, logger zerolog.Logger) *Gate {
	return &Gate{repo: repo, logger: logger, now: time.Now}
}

func (g *Gate) Approve(ctx context.Context, id int64, actor, reason string) (*Event, error) {
	return g.move(ctx, id, Approved, actor, reason)
}

func (g *Gate) Reject(ctx context.Context, id int64, actor, reason string) (*Event, error) {
	return g.move(ctx, id, Rejected, actor, reason)
}

func (g *Gate) ResetToPending(ctx context.Context, id int64, actor, reason string) (*Event, error) {
	return g.move(ctx, id, Pending, actor, reason)
}

// move applies the transition. Re-applying the current status succeeds and
// is still recorded.
func (g *Gate) move(ctx context.Context, id int64, to Status, actor, reason string) (*Event, error) {
	current, err := g.repo.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(current, to) {
		return nil, apperr.InvalidTransition("approval cannot move from %s to %s", current, to)
	}

	ev := &Event{
		ID:             uuid.New(),
		ProfessionalID: id,
		To:             to,
		Actor:          actor,
		Reason:         reason,
		OccurredAt:     g.now().UTC(),
	}
	if _, err := g.repo.SetStatus(ctx, ev); err != nil {
		return nil, err
	}

	g.logger.Info().
		Int64("professional_id", id).
		Str("from", string(ev.From)).
		Str("to", string(ev.To)).
		Str("actor", actor).
		Msg("professional approval changed")
	return ev, nil
}

func (g *Gate) Status(ctx context.Context, id int64) (Status, error) {
	return g.repo.GetStatus(ctx, id)
}

// IsAssignable reports whether the professional may be put on a slot or a
// booking. Unknown professionals are an error.
func (g *Gate) IsAssignable(ctx context.Context, id int64) (bool, error) {
	s, err := g.repo.GetStatus(ctx, id)
	if err != nil {
		return false, err
	}
	return s == Approved, nil
}

// IsAuthenticatable mirrors IsAssignable. A token for a professional no
// longer in the registry is simply not authenticatable.
func (g *Gate) IsAuthenticatable(ctx context.Context, id int64) (bool, error) {
	ok, err := g.IsAssignable(ctx, id)
	if errors.Is(err, apperr.ErrUnknownProfessional) {
		return false, nil
	}
	return ok, err
}

func (g *Gate) View(ctx context.Context, id int64) (*StatusView, error) {
	s, err := g.repo.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		ProfessionalID:  id,
		Status:          s,
		Assignable:      s == Approved,
		Authenticatable: s == Approved,
	}, nil
}

func (g *Gate) History(ctx context.Context, id int64, limit, offset int) ([]*Event, int, error) {
	return g.repo.History(ctx, id, limit, offset)
}
