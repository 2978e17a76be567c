// Package server assembles the Echo instance shared by the API and tests:
// JSON codec, request validation and the error renderer.
package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
)

func New(logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = JSONSerializer{}
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler(logger)
	return e
}

// ErrorHandler renders every failure as {"code", "message"}.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if !errors.As(apperr.ToHTTP(err), &he) {
			he = echo.NewHTTPError(http.StatusInternalServerError)
		}

		body := bodyFor(he)
		if he.Code >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).Str("request_id", rid).Str("code", string(body.Code)).Msg("request failed")
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(he.Code)
		} else {
			err = c.JSON(he.Code, body)
		}
		if err != nil {
			logger.Error().Err(err).Msg("write error response")
		}
	}
}

func bodyFor(he *echo.HTTPError) apperr.Body {
	switch m := he.Message.(type) {
	case apperr.Body:
		return m
	case string:
		return apperr.Body{Code: apperr.CodeForStatus(he.Code), Message: m}
	case error:
		return apperr.Body{Code: apperr.CodeForStatus(he.Code), Message: m.Error()}
	default:
		return apperr.Body{Code: apperr.CodeForStatus(he.Code), Message: http.StatusText(he.Code)}
	}
}
