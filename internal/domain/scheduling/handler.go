package scheduling

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
	"github.com/hospitalnet/agenda/internal/platform/auth"
	"github.com/hospitalnet/agenda/pkg/pagination"
)

type Handler struct {
	svc    *Service
	engine *Engine
}

func NewHandler(svc *Service, engine *Engine) *Handler {
	return &Handler{svc: svc, engine: engine}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Reads open to any caller; booking reads are checked against ownership.
	api.GET("/slots", h.ListSlots)
	api.GET("/slots/:id", h.GetSlot)
	api.GET("/bookings/:id", h.GetBooking)
	api.GET("/bookings/:id/events", h.GetBookingEvents)
	api.GET("/patients/:id/bookings", h.PatientBookings)

	// Hospital administration
	adminGroup := api.Group("", auth.RequireRole(auth.RoleHospitalAdmin))
	adminGroup.POST("/hospitals/:hospital_id/templates", h.CreateTemplate)
	adminGroup.GET("/hospitals/:hospital_id/templates", h.ListTemplates)
	adminGroup.GET("/templates/:id", h.GetTemplate)
	adminGroup.PUT("/templates/:id", h.UpdateTemplate)
	adminGroup.DELETE("/templates/:id", h.DeleteTemplate)
	adminGroup.POST("/templates/:id/materialize", h.Materialize)
	adminGroup.POST("/slots", h.CreateSlot)
	adminGroup.PUT("/slots/:id/professionals", h.SetSlotProfessionals)
	adminGroup.DELETE("/slots/:id", h.DeleteSlot)
	adminGroup.POST("/bookings/:id/assign", h.Assign)
	adminGroup.DELETE("/bookings/:id", h.DeleteBooking)

	// Booking requests – patients and hospital admins
	bookGroup := api.Group("", auth.RequireRole(auth.RolePatient, auth.RoleHospitalAdmin))
	bookGroup.POST("/bookings/reserve", h.Reserve)
	bookGroup.POST("/bookings", h.RequestBooking)

	// Worklists and lifecycle – hospital admins and professionals
	staffGroup := api.Group("", auth.RequireRole(auth.RoleHospitalAdmin, auth.RoleProfessional))
	staffGroup.GET("/bookings", h.ListBookings)
	staffGroup.POST("/bookings/:id/transition", h.Transition)
	staffGroup.GET("/professionals/:id/bookings", h.ProfessionalBookings)
	staffGroup.GET("/hospitals/:hospital_id/bookings", h.HospitalBookings)
}

func bindValid(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	if err := c.Validate(req); err != nil {
		return apperr.ToHTTP(err)
	}
	return nil
}

func uuidParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s %q", name, c.Param(name))
	}
	return id, nil
}

func int64Param(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s %q", name, c.Param(name))
	}
	return id, nil
}

func int64Query(c echo.Context, name string) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s %q", name, raw)
	}
	return id, nil
}

func views(items []*Booking) []BookingView {
	out := make([]BookingView, len(items))
	for i, b := range items {
		out[i] = b.View()
	}
	return out
}

// -- Templates --

type templateRequest struct {
	ActiveDays []Weekday  `json:"active_days" validate:"required,min=1,max=7"`
	Days       WeeklyPlan `json:"days"`
	Notes      string     `json:"notes" validate:"max=2000"`
}

func (h *Handler) CreateTemplate(c echo.Context) error {
	hospitalID, err := int64Param(c, "hospital_id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	var req templateRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	t := &Template{HospitalID: hospitalID, ActiveDays: req.ActiveDays, Days: req.Days, Notes: req.Notes}
	if err := h.svc.CreateTemplate(c.Request().Context(), t); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (h *Handler) ListTemplates(c echo.Context) error {
	hospitalID, err := int64Param(c, "hospital_id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListTemplates(c.Request().Context(), hospitalID, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, c.Request().URL.Path))
}

func (h *Handler) GetTemplate(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	t, err := h.svc.GetTemplate(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) UpdateTemplate(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	var req templateRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	t := &Template{ID: id, ActiveDays: req.ActiveDays, Days: req.Days, Notes: req.Notes}
	if err := h.svc.UpdateTemplate(c.Request().Context(), t); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *Handler) DeleteTemplate(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if err := h.svc.DeleteTemplate(c.Request().Context(), id); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type materializeRequest struct {
	From string `json:"from" validate:"required,date"`
	To   string `json:"to" validate:"required,date"`
}

func (h *Handler) Materialize(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	var req materializeRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	m := h.svc.Materializer()
	from, err := m.ParseDate(req.From)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	to, err := m.ParseDate(req.To)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	res, err := h.svc.Materialize(c.Request().Context(), id, from, to)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

// -- Slots --

// timeBound reads a date or an RFC 3339 instant. A bare date used as an
// upper bound covers the whole day.
func (h *Handler) timeBound(raw string, upper bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := h.svc.Materializer().ParseDate(raw)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		d = d.AddDate(0, 0, 1)
	}
	return d, nil
}

func (h *Handler) ListSlots(c echo.Context) error {
	hospitalID, err := int64Query(c, "hospital_id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	f := SlotFilter{HospitalID: hospitalID, Service: ServiceType(c.QueryParam("service"))}
	if f.Service != "" && !f.Service.Valid() {
		return apperr.ToHTTP(apperr.Validation("service must be consultation or exam"))
	}
	if f.From, err = h.timeBound(c.QueryParam("from"), false); err != nil {
		return apperr.ToHTTP(err)
	}
	if f.To, err = h.timeBound(c.QueryParam("to"), true); err != nil {
		return apperr.ToHTTP(err)
	}
	if raw := c.QueryParam("available"); raw != "" {
		if f.AvailableOnly, err = strconv.ParseBool(raw); err != nil {
			return apperr.ToHTTP(apperr.Validation("available must be true or false"))
		}
	}
	pg := pagination.FromContext(c)
	items, total, err := h.svc.SearchSlots(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, c.Request().URL.Path))
}

func (h *Handler) GetSlot(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	s, err := h.svc.GetSlot(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

type createSlotRequest struct {
	HospitalID    int64       `json:"hospital_id" validate:"required,gt=0"`
	Service       ServiceType `json:"service" validate:"required,oneof=consultation exam"`
	StartsAt      time.Time   `json:"starts_at" validate:"required"`
	EndsAt        time.Time   `json:"ends_at"`
	Capacity      int         `json:"capacity" validate:"gte=0,lte=1000"`
	Rooms         []string    `json:"rooms" validate:"max=50"`
	Professionals []int64     `json:"professionals" validate:"max=50,dive,gt=0"`
}

func (h *Handler) CreateSlot(c echo.Context) error {
	var req createSlotRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	s := &Slot{
		HospitalID:    req.HospitalID,
		Service:       req.Service,
		StartsAt:      req.StartsAt,
		EndsAt:        req.EndsAt,
		Capacity:      req.Capacity,
		Rooms:         req.Rooms,
		Professionals: req.Professionals,
	}
	if err := h.svc.CreateSlot(c.Request().Context(), s); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, s)
}

type professionalsRequest struct {
	Professionals []int64 `json:"professionals" validate:"max=50,dive,gt=0"`
}

func (h *Handler) SetSlotProfessionals(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	var req professionalsRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	s, err := h.svc.SetSlotProfessionals(c.Request().Context(), id, req.Professionals)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, s)
}

type deleteSlotResponse struct {
	SlotID    uuid.UUID     `json:"slot_id"`
	Cancelled []BookingView `json:"cancelled"`
}

func (h *Handler) DeleteSlot(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	ctx := c.Request().Context()
	cancelled, err := h.engine.ReleaseOnDelete(ctx, id, c.QueryParam("reason"), auth.Actor(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, deleteSlotResponse{SlotID: id, Cancelled: views(cancelled)})
}

// -- Bookings --

func (h *Handler) Reserve(c echo.Context) error {
	var req ReserveRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := actingFor(ctx, req.PatientID); err != nil {
		return apperr.ToHTTP(err)
	}
	b, err := h.engine.Reserve(ctx, req, auth.Actor(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, b.View())
}

func (h *Handler) RequestBooking(c echo.Context) error {
	var req RequestBooking
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := actingFor(ctx, req.PatientID); err != nil {
		return apperr.ToHTTP(err)
	}
	b, err := h.engine.Request(ctx, req, auth.Actor(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusCreated, b.View())
}

func (h *Handler) GetBooking(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	ctx := c.Request().Context()
	b, err := h.engine.GetBooking(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if err := canSee(ctx, b); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b.View())
}

func (h *Handler) GetBookingEvents(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	ctx := c.Request().Context()
	b, err := h.engine.GetBooking(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	if err := canSee(ctx, b); err != nil {
		return apperr.ToHTTP(err)
	}
	events, err := h.engine.Events(ctx, id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, events)
}

func (h *Handler) DeleteBooking(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	ctx := c.Request().Context()
	if _, err := h.engine.DeleteBooking(ctx, id, auth.Actor(ctx)); err != nil {
		return apperr.ToHTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// bookingFilter reads the shared listing query parameters.
func bookingFilter(c echo.Context) (BookingFilter, error) {
	var f BookingFilter
	var err error
	if f.PatientID, err = int64Query(c, "patient_id"); err != nil {
		return f, err
	}
	if f.ProfessionalID, err = int64Query(c, "professional_id"); err != nil {
		return f, err
	}
	if f.HospitalID, err = int64Query(c, "hospital_id"); err != nil {
		return f, err
	}
	if raw := c.QueryParam("slot_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, apperr.Validation("invalid slot_id %q", raw)
		}
		f.SlotID = &id
	}
	if raw := c.QueryParam("status"); raw != "" {
		if f.Status, err = ParseStatus(raw); err != nil {
			return f, apperr.Validation("%s", err.Error())
		}
	}
	if raw := c.QueryParam("kind"); raw != "" {
		f.Kind = ServiceType(raw)
		if !f.Kind.Valid() {
			return f, apperr.Validation("kind must be consultation or exam")
		}
	}
	return f, nil
}

func (h *Handler) ListBookings(c echo.Context) error {
	f, err := bookingFilter(c)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	ctx := c.Request().Context()
	if err := ownWork(ctx, &f); err != nil {
		return apperr.ToHTTP(err)
	}
	pg := pagination.FromContext(c)
	items, total, err := h.engine.SearchBookings(ctx, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views(items), total, pg, c.Request().URL.Path))
}

type assignRequest struct {
	ProfessionalID int64 `json:"professional_id" validate:"required,gt=0"`
}

func (h *Handler) Assign(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	var req assignRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	b, err := h.engine.Assign(ctx, id, req.ProfessionalID, auth.Actor(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b.View())
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) Transition(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	var req transitionRequest
	if err := bindValid(c, &req); err != nil {
		return err
	}
	to, err := ParseStatus(req.Status)
	if err != nil {
		return apperr.ToHTTP(apperr.Validation("%s", err.Error()))
	}
	ctx := c.Request().Context()
	b, err := h.engine.Transition(ctx, id, to, auth.Actor(ctx), req.Reason, mayWorkOn(ctx))
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, b.View())
}

func (h *Handler) PatientBookings(c echo.Context) error {
	id, err := int64Param(c, "id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	ctx := c.Request().Context()
	if err := actingFor(ctx, id); err != nil {
		return apperr.ToHTTP(err)
	}
	pg := pagination.FromContext(c)
	items, total, err := h.engine.PatientBookings(ctx, id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views(items), total, pg, c.Request().URL.Path))
}

func (h *Handler) ProfessionalBookings(c echo.Context) error {
	id, err := int64Param(c, "id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	// Professionals only see their own worklist.
	ctx := c.Request().Context()
	if !auth.HasRole(ctx, auth.RoleHospitalAdmin) {
		if own, ok := auth.ProfessionalIDFromContext(ctx); !ok || own != id {
			return apperr.ToHTTP(apperr.Forbidden("professionals can only list their own bookings"))
		}
	}
	var status Status
	if raw := c.QueryParam("status"); raw != "" {
		if status, err = ParseStatus(raw); err != nil {
			return apperr.ToHTTP(apperr.Validation("%s", err.Error()))
		}
	}
	pg := pagination.FromContext(c)
	items, total, err := h.engine.ProfessionalBookings(ctx, id, status, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views(items), total, pg, c.Request().URL.Path))
}

func (h *Handler) HospitalBookings(c echo.Context) error {
	hospitalID, err := int64Param(c, "hospital_id")
	if err != nil {
		return apperr.ToHTTP(err)
	}
	f, err := bookingFilter(c)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	f.HospitalID = hospitalID
	ctx := c.Request().Context()
	if err := ownWork(ctx, &f); err != nil {
		return apperr.ToHTTP(err)
	}
	pg := pagination.FromContext(c)
	items, total, err := h.engine.HospitalBookings(ctx, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views(items), total, pg, c.Request().URL.Path))
}
