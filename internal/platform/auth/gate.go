package auth

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
)

// ApprovalChecker answers whether a professional may hold a session.
type ApprovalChecker interface {
	IsAuthenticatable(ctx context.Context, professionalID int64) (bool, error)
}

// ProfessionalGate rejects requests from callers holding the professional
// role unless they name an approved professional. Other callers pass
// through. The check runs on every request so a rejection takes effect
// without waiting for token expiry.
func ProfessionalGate(checker ApprovalChecker) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if !HoldsRole(ctx, RoleProfessional) {
				return next(c)
			}
			id, ok := ProfessionalIDFromContext(ctx)
			if !ok {
				return echo.NewHTTPError(http.StatusForbidden, apperr.Body{
					Code:    apperr.CodeForbidden,
					Message: "professional identity missing",
				})
			}
			allowed, err := checker.IsAuthenticatable(ctx, id)
			if err != nil {
				return apperr.ToHTTP(err)
			}
			if !allowed {
				return echo.NewHTTPError(http.StatusForbidden, apperr.Body{
					Code:    apperr.CodeForbidden,
					Message: "account pending approval",
				})
			}
			return next(c)
		}
	}
}
