package apperr

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// GlobalErrorHandler maps the module's typed errors onto HTTP statuses:
// ValidationError is a 400, NotFoundError a 404, echo's own errors pass
// through, and anything else is logged and served as an opaque 500.
func GlobalErrorHandler() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			ve *ValidationError
			nf *NotFoundError
			he *echo.HTTPError
		)
		switch {
		case errors.As(err, &ve):
			respond(c, http.StatusBadRequest, ve.Message)
		case errors.As(err, &nf):
			respond(c, http.StatusNotFound, nf.Message)
		case errors.As(err, &he):
			respond(c, he.Code, fmt.Sprintf("%v", he.Message))
		default:
			slog.Error("unhandled request error", "error", err)
			respond(c, http.StatusInternalServerError, "internal server error")
		}
	}
}

func respond(c echo.Context, status int, msg string) {
	if err := c.JSON(status, map[string]string{"error": msg}); err != nil {
		slog.Error("could not write error response", "error", err)
	}
}
