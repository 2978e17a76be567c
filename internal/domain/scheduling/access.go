package scheduling

import (
	"context"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
	"github.com/hospitalnet/agenda/internal/platform/auth"
)

// Hospital admins reach every booking. Otherwise a patient reaches only
// their own bookings and a professional only those assigned to them.

func administers(ctx context.Context) bool {
	return auth.HasRole(ctx, auth.RoleHospitalAdmin)
}

func ownsAsPatient(ctx context.Context, patientID int64) bool {
	if !auth.HoldsRole(ctx, auth.RolePatient) {
		return false
	}
	own, ok := auth.PatientIDFromContext(ctx)
	return ok && own == patientID
}

func assignedTo(ctx context.Context, b *Booking) bool {
	if !auth.HoldsRole(ctx, auth.RoleProfessional) || b.ProfessionalID == nil {
		return false
	}
	own, ok := auth.ProfessionalIDFromContext(ctx)
	return ok && own == *b.ProfessionalID
}

// actingFor rejects a patient booking or listing on someone else's behalf.
func actingFor(ctx context.Context, patientID int64) error {
	if administers(ctx) || ownsAsPatient(ctx, patientID) {
		return nil
	}
	return apperr.Forbidden("patients can only act on their own bookings")
}

func canSee(ctx context.Context, b *Booking) error {
	if administers(ctx) || ownsAsPatient(ctx, b.PatientID) || assignedTo(ctx, b) {
		return nil
	}
	return apperr.Forbidden("booking %s is not yours", b.ID)
}

// mayWorkOn is checked by the engine against the booking it is about to
// change, so a concurrent reassignment cannot slip past it.
func mayWorkOn(ctx context.Context) Guard {
	return func(b *Booking) error {
		if administers(ctx) || assignedTo(ctx, b) {
			return nil
		}
		return apperr.Forbidden("booking %s is not assigned to you", b.ID)
	}
}

// ownWork narrows a professional's listing to their own bookings.
func ownWork(ctx context.Context, f *BookingFilter) error {
	if administers(ctx) {
		return nil
	}
	own, ok := auth.ProfessionalIDFromContext(ctx)
	if !ok || (f.ProfessionalID != 0 && f.ProfessionalID != own) {
		return apperr.Forbidden("professionals can only list their own bookings")
	}
	f.ProfessionalID = own
	return nil
}
