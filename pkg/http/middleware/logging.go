package middleware

import (
	"net/http"
	"time"

	applogger "TradeSync/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs every request. Reads go to debug; writes are
// user-initiated actions and go to info.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)

			fields := []applogger.Field{
				applogger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
				applogger.String("method", req.Method),
				applogger.String("route", c.Path()),
				applogger.String("uri", req.RequestURI),
				applogger.Int("status", c.Response().Status),
				applogger.Duration("duration_ms", time.Since(start)),
			}
			if req.Method == http.MethodGet || req.Method == http.MethodHead {
				l.Debug("http request", fields...)
			} else {
				l.Info("http request", fields...)
			}
			return err
		}
	}
}
