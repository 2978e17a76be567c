package scheduling

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
	"github.com/hospitalnet/agenda/internal/platform/auth"
	"github.com/hospitalnet/agenda/internal/platform/server"
)

func newTestHandler() (*Handler, *testEnv, *echo.Echo) {
	env := newTestEnv()
	return NewHandler(env.svc, env.engine), env, server.New(zerolog.Nop())
}

func request(method, target, body string, roles ...string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if len(roles) == 0 {
		roles = []string{auth.RoleHospitalAdmin}
	}
	ctx := context.WithValue(req.Context(), auth.UserIDKey, "user-7")
	ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
	return req.WithContext(ctx)
}

func asPatient(req *http.Request, id int64) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), auth.PatientIDKey, id))
}

func asProfessional(req *http.Request, id int64) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), auth.ProfessionalIDKey, id))
}

func errorCode(t *testing.T, err error) (int, apperr.Code) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %T (%v)", err, err)
	}
	body, ok := he.Message.(apperr.Body)
	if !ok {
		return he.Code, apperr.CodeForStatus(he.Code)
	}
	return he.Code, body.Code
}

func TestHandler_CreateTemplateAndMaterialize(t *testing.T) {
	h, env, e := newTestHandler()

	body := `{"active_days":["monday"],"days":{"monday":[{"start":"09:00","hours":7,"service":"consultation","seats_per_hour":3}]}}`
	rec := httptest.NewRecorder()
	c := e.NewContext(request(http.MethodPost, "/", body), rec)
	c.SetParamNames("hospital_id")
	c.SetParamValues("1")
	if err := h.CreateTemplate(c); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var tpl Template
	if err := json.Unmarshal(rec.Body.Bytes(), &tpl); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(request(http.MethodPost, "/", `{"from":"2024-03-04","to":"2024-03-04"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(tpl.ID.String())
	if err := h.Materialize(c); err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	var res MaterializeResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Created != 7 {
		t.Errorf("expected 7 created, got %+v", res)
	}

	_, total, _ := env.svc.SearchSlots(context.Background(), SlotFilter{HospitalID: 1}, 10, 0)
	if total != 7 {
		t.Errorf("expected 7 stored slots, got %d", total)
	}
}

func TestHandler_MaterializeBadRange(t *testing.T) {
	h, env, e := newTestHandler()
	tpl := weekdayTemplate()
	if err := env.svc.CreateTemplate(context.Background(), tpl); err != nil {
		t.Fatalf("CreateTemplate: %v", err)
	}

	tests := []struct {
		name   string
		body   string
		status int
		code   apperr.Code
	}{
		{"reversed", `{"from":"2024-03-10","to":"2024-03-04"}`, http.StatusBadRequest, apperr.CodeInvalidRange},
		{"missing to", `{"from":"2024-03-10"}`, http.StatusBadRequest, apperr.CodeValidation},
		{"not a date", `{"from":"2024-03-10","to":"tomorrow"}`, http.StatusBadRequest, apperr.CodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(request(http.MethodPost, "/", tt.body), httptest.NewRecorder())
			c.SetParamNames("id")
			c.SetParamValues(tpl.ID.String())
			status, code := errorCode(t, h.Materialize(c))
			if status != tt.status || code != tt.code {
				t.Errorf("got %d %s, want %d %s", status, code, tt.status, tt.code)
			}
		})
	}
}

func TestHandler_ReserveAndFull(t *testing.T) {
	h, env, e := newTestHandler()
	s := env.slot(t, 1)
	body := `{"patient_id":1,"slot_id":"` + s.ID.String() + `"}`

	rec := httptest.NewRecorder()
	c := e.NewContext(asPatient(request(http.MethodPost, "/", body, auth.RolePatient), 1), rec)
	if err := h.Reserve(c); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var view struct {
		Status      Status `json:"status"`
		StatusLabel string `json:"status_label"`
		HoldsSeat   bool   `json:"holds_seat"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Status != StatusScheduled || !view.HoldsSeat {
		t.Errorf("unexpected response %+v", view)
	}

	c = e.NewContext(asPatient(request(http.MethodPost, "/", body, auth.RolePatient), 1), httptest.NewRecorder())
	status, code := errorCode(t, h.Reserve(c))
	if status != http.StatusConflict || code != apperr.CodeSlotFull {
		t.Errorf("expected 409 SLOT_FULL, got %d %s", status, code)
	}
}

func TestHandler_ReserveValidation(t *testing.T) {
	h, _, e := newTestHandler()
	tests := []struct {
		name string
		body string
	}{
		{"missing patient", `{"slot_id":"6f1c2b1e-8a59-4f0e-9a55-0a5d2c9b1e11"}`},
		{"unknown field", `{"patient_id":1,"slot_id":"6f1c2b1e-8a59-4f0e-9a55-0a5d2c9b1e11","vip":true}`},
		{"bad kind", `{"patient_id":1,"slot_id":"6f1c2b1e-8a59-4f0e-9a55-0a5d2c9b1e11","kind":"surgery"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := e.NewContext(request(http.MethodPost, "/", tt.body), httptest.NewRecorder())
			status, code := errorCode(t, h.Reserve(c))
			if status != http.StatusBadRequest || code != apperr.CodeValidation {
				t.Errorf("expected 400 VALIDATION_FAILED, got %d %s", status, code)
			}
		})
	}
}

func TestHandler_TransitionExamVocabulary(t *testing.T) {
	h, env, e := newTestHandler()
	s := &Slot{HospitalID: 2, Service: Exam, StartsAt: firstMonday.Add(9 * time.Hour), Capacity: 1}
	if err := env.svc.CreateSlot(context.Background(), s); err != nil {
		t.Fatalf("CreateSlot: %v", err)
	}
	b := env.reserve(t, s.ID, 3)

	rec := httptest.NewRecorder()
	c := e.NewContext(request(http.MethodPost, "/", `{"status":"cancelado","reason":"pedido do paciente"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	if err := h.Transition(c); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	var view struct {
		Status      Status `json:"status"`
		StatusLabel string `json:"status_label"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Status != StatusCancelled || view.StatusLabel != "cancelado" {
		t.Errorf("unexpected response %+v", view)
	}
	if rem := env.remaining(t, s.ID); rem != 1 {
		t.Errorf("expected seat released, remaining %d", rem)
	}

	c = e.NewContext(request(http.MethodPost, "/", `{"status":"archived"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	if status, _ := errorCode(t, h.Transition(c)); status != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown status, got %d", status)
	}
}

func TestHandler_AssignNotEligible(t *testing.T) {
	h, env, e := newTestHandler()
	s := env.slot(t, 1)
	b := env.reserve(t, s.ID, 1)

	c := e.NewContext(request(http.MethodPost, "/", `{"professional_id":2}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	status, code := errorCode(t, h.Assign(c))
	if status != http.StatusUnprocessableEntity || code != apperr.CodeProfessionalNotEligible {
		t.Errorf("expected 422 PROFESSIONAL_NOT_ELIGIBLE, got %d %s", status, code)
	}
}

func TestHandler_DeleteSlot(t *testing.T) {
	h, env, e := newTestHandler()
	s := env.slot(t, 2)
	b := env.reserve(t, s.ID, 1)

	rec := httptest.NewRecorder()
	c := e.NewContext(request(http.MethodDelete, "/?reason=maintenance", ""), rec)
	c.SetParamNames("id")
	c.SetParamValues(s.ID.String())
	if err := h.DeleteSlot(c); err != nil {
		t.Fatalf("DeleteSlot: %v", err)
	}
	var resp struct {
		Cancelled []struct {
			ID     string `json:"id"`
			Status Status `json:"status"`
		} `json:"cancelled"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Cancelled) != 1 || resp.Cancelled[0].ID != b.ID.String() || resp.Cancelled[0].Status != StatusCancelled {
		t.Errorf("unexpected response %+v", resp)
	}
	events, _ := env.engine.Events(context.Background(), b.ID)
	if events[len(events)-1].Reason != "maintenance" || events[len(events)-1].Actor != "user-7" {
		t.Errorf("unexpected cancellation event %+v", events[len(events)-1])
	}
}

func TestHandler_ListSlotsFilters(t *testing.T) {
	h, env, e := newTestHandler()
	env.slot(t, 1)
	env.slot(t, 0)

	rec := httptest.NewRecorder()
	c := e.NewContext(request(http.MethodGet, "/?hospital_id=1&from=2024-03-04&to=2024-03-04&available=true", ""), rec)
	if err := h.ListSlots(c); err != nil {
		t.Fatalf("ListSlots: %v", err)
	}
	var resp struct {
		Total int     `json:"total"`
		Data  []*Slot `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Data[0].Remaining != 1 {
		t.Errorf("expected the one open slot, got %+v", resp)
	}

	c = e.NewContext(request(http.MethodGet, "/?service=surgery", ""), httptest.NewRecorder())
	if status, _ := errorCode(t, h.ListSlots(c)); status != http.StatusBadRequest {
		t.Errorf("expected 400 for bad service, got %d", status)
	}
}

func TestHandler_ProfessionalWorklistIsOwnOnly(t *testing.T) {
	h, env, e := newTestHandler()
	s := env.slot(t, 1)
	b := env.reserve(t, s.ID, 1)
	if _, err := env.engine.Assign(context.Background(), b.ID, 1, "admin"); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(asProfessional(request(http.MethodGet, "/", "", auth.RoleProfessional), 1), rec)
	c.SetParamNames("id")
	c.SetParamValues("1")
	if err := h.ProfessionalBookings(c); err != nil {
		t.Fatalf("ProfessionalBookings: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("expected 1 booking on worklist, got %d", resp.Total)
	}

	c = e.NewContext(asProfessional(request(http.MethodGet, "/", "", auth.RoleProfessional), 3), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("1")
	if status, code := errorCode(t, h.ProfessionalBookings(c)); status != http.StatusForbidden || code != apperr.CodeForbidden {
		t.Errorf("expected 403 FORBIDDEN, got %d %s", status, code)
	}
}

func TestHandler_RoutesRequireRoles(t *testing.T) {
	h, _, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	req := request(http.MethodPost, "/api/v1/hospitals/1/templates", `{"active_days":["monday"]}`, auth.RolePatient)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for patient creating a template, got %d", rec.Code)
	}
}

func TestHandler_PatientsActOnlyForThemselves(t *testing.T) {
	h, env, e := newTestHandler()
	s := env.slot(t, 2)
	b := env.reserve(t, s.ID, 1)

	c := e.NewContext(asPatient(request(http.MethodPost, "/", `{"patient_id":1,"slot_id":"`+s.ID.String()+`"}`, auth.RolePatient), 2), httptest.NewRecorder())
	if status, code := errorCode(t, h.Reserve(c)); status != http.StatusForbidden || code != apperr.CodeForbidden {
		t.Errorf("reserve for another patient: expected 403 FORBIDDEN, got %d %s", status, code)
	}
	if rem := env.remaining(t, s.ID); rem != 1 {
		t.Errorf("expected no seat taken, remaining %d", rem)
	}

	c = e.NewContext(asPatient(request(http.MethodPost, "/", `{"patient_id":1,"kind":"exam","hospital_id":1}`, auth.RolePatient), 2), httptest.NewRecorder())
	if status, _ := errorCode(t, h.RequestBooking(c)); status != http.StatusForbidden {
		t.Errorf("request for another patient: expected 403, got %d", status)
	}

	c = e.NewContext(asPatient(request(http.MethodGet, "/", "", auth.RolePatient), 2), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("1")
	if status, _ := errorCode(t, h.PatientBookings(c)); status != http.StatusForbidden {
		t.Errorf("list another patient's bookings: expected 403, got %d", status)
	}

	for name, handle := range map[string]echo.HandlerFunc{"booking": h.GetBooking, "events": h.GetBookingEvents} {
		c = e.NewContext(asPatient(request(http.MethodGet, "/", "", auth.RolePatient), 2), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(b.ID.String())
		if status, _ := errorCode(t, handle(c)); status != http.StatusForbidden {
			t.Errorf("%s of another patient: expected 403, got %d", name, status)
		}

		rec := httptest.NewRecorder()
		c = e.NewContext(asPatient(request(http.MethodGet, "/", "", auth.RolePatient), 1), rec)
		c.SetParamNames("id")
		c.SetParamValues(b.ID.String())
		if err := handle(c); err != nil {
			t.Fatalf("own %s: %v", name, err)
		}
		if rec.Code != http.StatusOK {
			t.Errorf("own %s: expected 200, got %d", name, rec.Code)
		}
	}
}

func TestHandler_TransitionNeedsAssignment(t *testing.T) {
	h, env, e := newTestHandler()
	s := env.slot(t, 1)
	b := env.reserve(t, s.ID, 1)

	transition := func() error {
		c := e.NewContext(asProfessional(request(http.MethodPost, "/", `{"status":"cancelled"}`, auth.RoleProfessional), 1), httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues(b.ID.String())
		return h.Transition(c)
	}

	if status, code := errorCode(t, transition()); status != http.StatusForbidden || code != apperr.CodeForbidden {
		t.Fatalf("expected 403 FORBIDDEN on unassigned booking, got %d %s", status, code)
	}
	got, _ := env.engine.GetBooking(context.Background(), b.ID)
	if got.Status != StatusScheduled || env.remaining(t, s.ID) != 0 {
		t.Fatalf("booking changed by a rejected transition: %+v", got)
	}

	if _, err := env.engine.Assign(context.Background(), b.ID, 1, "admin"); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if err := transition(); err != nil {
		t.Fatalf("Transition by assigned professional: %v", err)
	}
	if rem := env.remaining(t, s.ID); rem != 1 {
		t.Errorf("expected seat released, remaining %d", rem)
	}
}

func TestHandler_ListBookingsScopedToProfessional(t *testing.T) {
	h, env, e := newTestHandler()
	s := env.slot(t, 2)
	mine := env.reserve(t, s.ID, 1)
	env.reserve(t, s.ID, 2)
	if _, err := env.engine.Assign(context.Background(), mine.ID, 1, "admin"); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(asProfessional(request(http.MethodGet, "/", "", auth.RoleProfessional), 1), rec)
	if err := h.ListBookings(c); err != nil {
		t.Fatalf("ListBookings: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
		Data  []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || resp.Data[0].ID != mine.ID.String() {
		t.Errorf("expected only the assigned booking, got %+v", resp)
	}

	c = e.NewContext(asProfessional(request(http.MethodGet, "/?professional_id=2", "", auth.RoleProfessional), 1), httptest.NewRecorder())
	if status, _ := errorCode(t, h.ListBookings(c)); status != http.StatusForbidden {
		t.Errorf("expected 403 listing another professional's bookings, got %d", status)
	}
}

func TestHandler_DeleteBooking(t *testing.T) {
	h, env, e := newTestHandler()
	s := env.slot(t, 1)
	b := env.reserve(t, s.ID, 1)

	rec := httptest.NewRecorder()
	c := e.NewContext(request(http.MethodDelete, "/", ""), rec)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	if err := h.DeleteBooking(c); err != nil {
		t.Fatalf("DeleteBooking: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
	if rem := env.remaining(t, s.ID); rem != 1 {
		t.Errorf("expected seat returned, remaining %d", rem)
	}

	c = e.NewContext(request(http.MethodDelete, "/", ""), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	if status, _ := errorCode(t, h.DeleteBooking(c)); status != http.StatusNotFound {
		t.Errorf("expected 404 on second delete, got %d", status)
	}
}

func TestHandler_DeleteBookingIsAdminOnly(t *testing.T) {
	h, env, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))
	s := env.slot(t, 1)
	b := env.reserve(t, s.ID, 1)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, asProfessional(request(http.MethodDelete, "/api/v1/bookings/"+b.ID.String(), "", auth.RoleProfessional), 1))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for professional deleting a booking, got %d", rec.Code)
	}
	if rem := env.remaining(t, s.ID); rem != 0 {
		t.Errorf("booking deleted by a non-admin, remaining %d", rem)
	}
}
