package middleware

import (
    "github.com/labstack/echo/v4"
    echomw "github.com/labstack/echo/v4/middleware"
    "github.com/sirupsen/logrus"
)

// RequestLogger logs one line per request through logrus.  Server errors
// log at error level, client errors at warn and the rest at info.
func RequestLogger(log logrus.FieldLogger) echo.MiddlewareFunc {
    return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
        LogMethod:    true,
        LogURI:       true,
        LogStatus:    true,
        LogLatency:   true,
        LogRemoteIP:  true,
        LogRequestID: true,
        LogError:     true,
        HandleError:  true,
        LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
            entry := log.WithFields(logrus.Fields{
                "method":    v.Method,
                "uri":       v.URI,
                "status":    v.Status,
                "latencyMs": v.Latency.Milliseconds(),
                "remoteIp":  v.RemoteIP,
            })
            if v.RequestID != "" {
                entry = entry.WithField("requestId", v.RequestID)
            }
            if id, ok := UserID(c); ok {
                entry = entry.WithField("userId", id)
            }
            switch {
            case v.Status >= 500:
                if v.Error != nil {
                    entry = entry.WithError(v.Error)
                }
                entry.Error("request failed")
            case v.Status >= 400:
                entry.Warn("request rejected")
            default:
                entry.Info("request")
            }
            return nil
        },
    })
}
