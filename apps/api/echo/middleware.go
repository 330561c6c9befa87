package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"

	metricsvc "github.com/trezcool/masomo-credits/services/metrics"
)

// metricsMiddleware records every request against its route pattern (not the raw path).
func metricsMiddleware(metrics *metricsvc.CreditMetrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			if err != nil {
				// let the error handler write the response so the final status is recorded
				ctx.Error(err)
			}

			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			metrics.ObserveRequest(ctx.Request().Method, path, ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}
