package handler

import (
    "context"
    "net/http"
    "time"

    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"
)

// Health answers "ok" when the storage backend responds to a ping.
func Health(ping func(ctx context.Context) error, log logrus.FieldLogger) echo.HandlerFunc {
    return func(c echo.Context) error {
        if ping != nil {
            ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
            defer cancel()
            if err := ping(ctx); err != nil {
                log.WithError(err).Warn("health check: storage unreachable")
                return c.String(http.StatusServiceUnavailable, "storage unavailable")
            }
        }
        return c.String(http.StatusOK, "ok")
    }
}
