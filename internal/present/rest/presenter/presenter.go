package presenter

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

type response struct {
	Status  string `json:"status"`
	Content any    `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, response{Status: "ok", Content: payload})
}

func BadRequest(c echo.Context, err error) error {
	slog.InfoContext(c.Request().Context(), "bad request",
		slog.String("module", "rest"),
		slog.String("path", c.Path()),
		slog.String("error", err.Error()),
	)
	return c.JSON(http.StatusBadRequest, response{Status: "error", Error: err.Error()})
}

func BadRequestMessage(c echo.Context, msg string) error {
	slog.InfoContext(c.Request().Context(), "bad request",
		slog.String("module", "rest"),
		slog.String("path", c.Path()),
		slog.String("error", msg),
	)
	return c.JSON(http.StatusBadRequest, response{Status: "error", Error: msg})
}

func NotFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, response{Status: "error", Error: msg})
}

func InternalError(c echo.Context, err error) error {
	slog.ErrorContext(c.Request().Context(), "internal error",
		slog.String("module", "rest"),
		slog.String("path", c.Path()),
		slog.String("error", err.Error()),
	)
	return c.JSON(http.StatusInternalServerError, response{Status: "error", Error: "internal error"})
}

func Unavailable(c echo.Context, err error) error {
	slog.WarnContext(c.Request().Context(), "unavailable",
		slog.String("module", "rest"),
		slog.String("error", err.Error()),
	)
	return c.JSON(http.StatusServiceUnavailable, response{Status: "error", Error: err.Error()})
}
