package approval

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
	"github.com/hospitalnet/agenda/internal/platform/auth"
	"github.com/hospitalnet/agenda/pkg/pagination"
)

type Handler struct {
	gate *Gate
}

func NewHandler(gate *Gate) *Handler {
	return &Handler{gate: gate}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("/professionals/:id", auth.RequireRole(auth.RoleHospitalAdmin))
	staff.POST("/approve", h.Approve)
	staff.POST("/reject", h.Reject)
	staff.POST("/reset", h.Reset)
	staff.GET("/approval", h.GetStatus)
	staff.GET("/approval/history", h.History)
}

type decisionRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func professionalID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid professional id %q", c.Param("id"))
	}
	return id, nil
}

type decision func(ctx context.Context, id int64, actor, reason string) (*Event, error)

func (h *Handler) decide(c echo.Context, apply decision) error {
	id, err := professionalID(c)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	var req decisionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return err
		}
		if err := c.Validate(&req); err != nil {
			return apperr.ToHTTP(err)
		}
	}
	ctx := c.Request().Context()
	ev, err := apply(ctx, id, auth.Actor(ctx), req.Reason)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, ev)
}

func (h *Handler) Approve(c echo.Context) error { return h.decide(c, h.gate.Approve) }

func (h *Handler) Reject(c echo.Context) error { return h.decide(c, h.gate.Reject) }

func (h *Handler) Reset(c echo.Context) error { return h.decide(c, h.gate.ResetToPending) }

func (h *Handler) GetStatus(c echo.Context) error {
	id, err := professionalID(c)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	view, err := h.gate.View(c.Request().Context(), id)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) History(c echo.Context) error {
	id, err := professionalID(c)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	pg := pagination.FromContext(c)
	items, total, err := h.gate.History(c.Request().Context(), id, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.ToHTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, c.Request().URL.Path))
}
