package approval

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
	"github.com/hospitalnet/agenda/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) scanStatus(row pgx.Row, id int64) (Status, error) {
	var stored string
	if err := row.Scan(&stored); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", apperr.UnknownProfessional(id)
		}
		return "", db.Classify(err, "read approval status")
	}
	s, err := ParseStatus(stored)
	if err != nil {
		return "", apperr.Internal(err, "corrupt approval status")
	}
	return s, nil
}

func (r *repoPG) GetStatus(ctx context.Context, id int64) (Status, error) {
	return r.scanStatus(r.conn(ctx).QueryRow(ctx, `SELECT status FROM profissionais WHERE id = $1`, id), id)
}

func (r *repoPG) SetStatus(ctx context.Context, ev *Event) (Status, error) {
	var from Status
	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var err error
		from, err = r.scanStatus(r.conn(ctx).QueryRow(ctx,
			`SELECT status FROM profissionais WHERE id = $1 FOR UPDATE`, ev.ProfessionalID), ev.ProfessionalID)
		if err != nil {
			return err
		}
		ev.From = from

		if _, err := r.conn(ctx).Exec(ctx,
			`UPDATE profissionais SET status = $2 WHERE id = $1`, ev.ProfessionalID, ev.To.Stored()); err != nil {
			return db.Classify(err, "update approval status")
		}
		if _, err := r.conn(ctx).Exec(ctx, `
			INSERT INTO professional_approval_events (id, professional_id, from_status, to_status, actor, reason, occurred_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			ev.ID, ev.ProfessionalID, string(ev.From), string(ev.To), ev.Actor, ev.Reason, ev.OccurredAt); err != nil {
			return db.Classify(err, "record approval event")
		}
		return nil
	})
	return from, err
}

func (r *repoPG) History(ctx context.Context, id int64, limit, offset int) ([]*Event, int, error) {
	if _, err := r.GetStatus(ctx, id); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM professional_approval_events WHERE professional_id = $1`, id).Scan(&total); err != nil {
		return nil, 0, db.Classify(err, "count approval events")
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, professional_id, from_status, to_status, actor, reason, occurred_at
		FROM professional_approval_events
		WHERE professional_id = $1
		ORDER BY occurred_at, id
		LIMIT $2 OFFSET $3`, id, limit, offset)
	if err != nil {
		return nil, 0, db.Classify(err, "list approval events")
	}
	defer rows.Close()

	var items []*Event
	for rows.Next() {
		var ev Event
		var from, to string
		if err := rows.Scan(&ev.ID, &ev.ProfessionalID, &from, &to, &ev.Actor, &ev.Reason, &ev.OccurredAt); err != nil {
			return nil, 0, db.Classify(err, "scan approval event")
		}
		ev.From, ev.To = Status(from), Status(to)
		items = append(items, &ev)
	}
	return items, total, rows.Err()
}
