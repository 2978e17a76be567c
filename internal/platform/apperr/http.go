package apperr

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"
)

// Body is the JSON shape of every error response.
type Body struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ToHTTP converts a service error into an *echo.HTTPError whose message is a
// Body. Internal causes are attached with SetInternal so the logger sees them
// but the client does not.
func ToHTTP(err error) error {
	if err == nil {
		return nil
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return echo.NewHTTPError(HTTPStatus(CodeTimeout), Body{Code: CodeTimeout, Message: "request deadline exceeded"}).SetInternal(err)
	}

	var e *Error
	if !errors.As(err, &e) {
		return echo.NewHTTPError(HTTPStatus(CodeInternal), Body{Code: CodeInternal, Message: "internal error"}).SetInternal(err)
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Code)
	}
	he = echo.NewHTTPError(HTTPStatus(e.Code), Body{Code: e.Code, Message: msg})
	if e.Err != nil {
		he.SetInternal(e.Err)
	}
	return he
}
