package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dwh/dwhfhir/internal/platform/fhir"
)

// RequestTimeout puts a deadline on the request context. Repository calls
// observe it, so a slow query is cancelled and the client gets a 504 with
// an OperationOutcome.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				outcome := fhir.NewOperationOutcome(fhir.IssueSeverityError, fhir.IssueTypeTimeout,
					"Request processing exceeded the allowed time limit")
				c.Response().Header().Set(echo.HeaderContentType, fhir.FHIRContentType)
				return c.JSON(http.StatusGatewayTimeout, outcome)
			}
			return err
		}
	}
}
