package directory

import (
	"context"
	"errors"
	"testing"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
)

func TestMemory_Resolve(t *testing.T) {
	ctx := context.Background()
	d := NewMemory()
	d.AddHospital(7)
	d.AddPatient(1, 2)
	d.AddProfessional(30)

	if err := d.ResolveHospital(ctx, 7); err != nil {
		t.Errorf("expected hospital 7 to resolve, got %v", err)
	}
	if err := d.ResolveHospital(ctx, 8); !errors.Is(err, apperr.ErrUnknownHospital) {
		t.Errorf("expected UNKNOWN_HOSPITAL, got %v", err)
	}
	if err := d.ResolvePatient(ctx, 2); err != nil {
		t.Errorf("expected patient 2 to resolve, got %v", err)
	}
	if err := d.ResolvePatient(ctx, 3); !errors.Is(err, apperr.ErrUnknownPatient) {
		t.Errorf("expected UNKNOWN_PATIENT, got %v", err)
	}
	if err := d.ResolveProfessional(ctx, 31); !errors.Is(err, apperr.ErrUnknownProfessional) {
		t.Errorf("expected UNKNOWN_PROFESSIONAL, got %v", err)
	}
}

func TestMemory_Seed(t *testing.T) {
	ctx := context.Background()
	d := NewMemory().Seed(3)
	for id := int64(1); id <= 3; id++ {
		if d.ResolveHospital(ctx, id) != nil || d.ResolvePatient(ctx, id) != nil || d.ResolveProfessional(ctx, id) != nil {
			t.Errorf("expected id %d seeded everywhere", id)
		}
	}
	if d.ResolveHospital(ctx, 4) == nil {
		t.Error("expected id 4 to be unknown")
	}
}
