package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "TradeSync/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns a handler panic into a 500 with the request id so the
// dashboard can report it.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				perr, ok := r.(error)
				if !ok {
					perr = fmt.Errorf("%v", r)
				}
				id := c.Response().Header().Get(echo.HeaderXRequestID)
				l.Error("http handler panic",
					applogger.Error(perr),
					applogger.String("request_id", id),
					applogger.String("route", c.Path()),
					applogger.String("stack", string(debug.Stack())),
				)
				if c.Response().Committed {
					return
				}
				err = c.JSON(http.StatusInternalServerError, map[string]any{
					"status":     http.StatusInternalServerError,
					"message":    http.StatusText(http.StatusInternalServerError),
					"request_id": id,
				})
			}()
			return next(c)
		}
	}
}
