package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	srverr "github.com/puzzlehunt/huntserver/cmd/server/internal/error"
	"github.com/puzzlehunt/huntserver/internal/types"
)

var (
	InternalServerError = echo.NewHTTPError(
		http.StatusInternalServerError,
		types.StringError("something went wrong"),
	)
	NotFoundError = echo.NewHTTPError(http.StatusNotFound, types.StringError("not found"))
)

// FromError turns a domain error into the HTTP error a handler returns.
//
// Validation errors are 400, policy denials 409 except not_unlocked which is 403, missing rows 404.
// Anything else is an opaque 500.
func FromError(err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}

	var ve *srverr.ValidationError
	if errors.As(err, &ve) {
		if ve.Field == "" {
			return echo.NewHTTPError(http.StatusBadRequest, types.StringError(ve.Message))
		}
		return echo.NewHTTPError(http.StatusBadRequest, types.FieldError(ve.Field, ve.Message))
	}

	var pe *srverr.PolicyError
	if errors.As(err, &pe) {
		status := http.StatusConflict
		if pe.Code == srverr.CodeNotUnlocked {
			status = http.StatusForbidden
		}
		return echo.NewHTTPError(status, types.CodedError(string(pe.Code), pe.Message))
	}

	if errors.Is(err, srverr.ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFoundError
	}

	return InternalServerError
}
