package middleware

import (
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("rest")

// DomainKey is the echo context key holding the validated domain id.
const DomainKey = "domain"

var domainPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// ScopeDomain validates the :domain path parameter and tags the request span with it.
func ScopeDomain(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Rest.Middleware.ScopeDomain")
		defer span.End()

		domainID := c.Param("domain")
		if !domainPattern.MatchString(domainID) {
			return c.JSON(http.StatusBadRequest, echo.Map{"status": "error", "error": "invalid domain"})
		}

		span.SetAttributes(attribute.String("domain", domainID))
		trace.SpanFromContext(c.Request().Context()).SetAttributes(attribute.String("domain", domainID))

		c.Set(DomainKey, domainID)
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}
