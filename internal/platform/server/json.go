package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"

	"github.com/hospitalnet/agenda/internal/platform/apperr"
)

// JSONSerializer plugs goccy/go-json into Echo's Bind and c.JSON.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(c echo.Context, i interface{}, indent string) error {
	enc := json.NewEncoder(c.Response())
	if indent != "" {
		enc.SetIndent("", indent)
	}
	return enc.Encode(i)
}

func (JSONSerializer) Deserialize(c echo.Context, i interface{}) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(i)
	if err == nil {
		return nil
	}

	var ute *json.UnmarshalTypeError
	var se *json.SyntaxError
	switch {
	case errors.As(err, &ute):
		return badRequest(fmt.Sprintf("field %s: expected %v, got %v", ute.Field, ute.Type, ute.Value), err)
	case errors.As(err, &se):
		return badRequest(fmt.Sprintf("malformed JSON at offset %d", se.Offset), err)
	default:
		return badRequest(err.Error(), err)
	}
}

func badRequest(msg string, cause error) error {
	return echo.NewHTTPError(http.StatusBadRequest,
		apperr.Body{Code: apperr.CodeValidation, Message: msg}).SetInternal(cause)
}
