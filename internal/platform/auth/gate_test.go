package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type fakeChecker struct {
	approved map[int64]bool
	err      error
	calls    int
}

func (f *fakeChecker) IsAuthenticatable(ctx context.Context, id int64) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.approved[id], nil
}

func professionalRequest(id int64) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := context.WithValue(req.Context(), ProfessionalIDKey, id)
	ctx = context.WithValue(ctx, UserRolesKey, []string{RoleProfessional})
	return req.WithContext(ctx)
}

func TestProfessionalGate_Approved(t *testing.T) {
	checker := &fakeChecker{approved: map[int64]bool{7: true}}
	c := echo.New().NewContext(professionalRequest(7), httptest.NewRecorder())

	if err := ProfessionalGate(checker)(okHandler)(c); err != nil {
		t.Fatalf("expected approved professional through, got %v", err)
	}
}

func TestProfessionalGate_Pending(t *testing.T) {
	checker := &fakeChecker{approved: map[int64]bool{}}
	c := echo.New().NewContext(professionalRequest(8), httptest.NewRecorder())

	err := ProfessionalGate(checker)(okHandler)(c)
	expectStatus(t, err, http.StatusForbidden)
}

func TestProfessionalGate_NonProfessionalSkipsCheck(t *testing.T) {
	checker := &fakeChecker{}
	c := echo.New().NewContext(contextWithRoles(RolePatient), httptest.NewRecorder())

	if err := ProfessionalGate(checker)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if checker.calls != 0 {
		t.Errorf("expected no approval lookup, got %d", checker.calls)
	}
}

func TestProfessionalGate_LookupError(t *testing.T) {
	checker := &fakeChecker{err: errors.New("db down")}
	c := echo.New().NewContext(professionalRequest(9), httptest.NewRecorder())

	err := ProfessionalGate(checker)(okHandler)(c)
	expectStatus(t, err, http.StatusInternalServerError)
}

func TestProfessionalGate_RoleWithoutIdentity(t *testing.T) {
	checker := &fakeChecker{approved: map[int64]bool{}}
	c := echo.New().NewContext(contextWithRoles(RoleProfessional), httptest.NewRecorder())

	reached := false
	staff := RequireRole(RoleHospitalAdmin, RoleProfessional)(func(c echo.Context) error {
		reached = true
		return nil
	})
	err := ProfessionalGate(checker)(staff)(c)
	expectStatus(t, err, http.StatusForbidden)
	if reached {
		t.Error("staff handler reached by a professional with no identity")
	}
	if checker.calls != 0 {
		t.Errorf("expected no approval lookup, got %d", checker.calls)
	}
}

func TestProfessionalGate_AdminSkipsCheck(t *testing.T) {
	checker := &fakeChecker{}
	c := echo.New().NewContext(contextWithRoles(RoleAdmin), httptest.NewRecorder())

	if err := ProfessionalGate(checker)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHoldsRole_NotImpliedByAdmin(t *testing.T) {
	ctx := contextWithRoles(RoleAdmin).Context()
	if !HasRole(ctx, RoleProfessional) {
		t.Error("admin should satisfy HasRole")
	}
	if HoldsRole(ctx, RoleProfessional) {
		t.Error("admin should not literally hold the professional role")
	}
}
