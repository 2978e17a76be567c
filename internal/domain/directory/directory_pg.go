package directory

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
	"github.com/hospitalnet/agenda/internal/platform/db"
)

// PG reads the registry tables shared with the registration service.
type PG struct{ pool *pgxpool.Pool }

func NewPG(pool *pgxpool.Pool) *PG { return &PG{pool: pool} }

func (d *PG) exists(ctx context.Context, query string, id int64) (bool, error) {
	var ok bool
	if err := db.Conn(ctx, d.pool).QueryRow(ctx, query, id).Scan(&ok); err != nil {
		return false, db.Classify(err, "directory lookup")
	}
	return ok, nil
}

func (d *PG) ResolveHospital(ctx context.Context, id int64) error {
	ok, err := d.exists(ctx, `SELECT EXISTS (SELECT 1 FROM hospitais WHERE id = $1)`, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.UnknownHospital(id)
	}
	return nil
}

func (d *PG) ResolvePatient(ctx context.Context, id int64) error {
	ok, err := d.exists(ctx, `SELECT EXISTS (SELECT 1 FROM pacientes WHERE id = $1)`, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.UnknownPatient(id)
	}
	return nil
}

func (d *PG) ResolveProfessional(ctx context.Context, id int64) error {
	ok, err := d.exists(ctx, `SELECT EXISTS (SELECT 1 FROM profissionais WHERE id = $1)`, id)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.UnknownProfessional(id)
	}
	return nil
}
