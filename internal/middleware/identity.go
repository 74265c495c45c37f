package middleware

import "github.com/labstack/echo/v4"

// UserID returns the authenticated user id stored by JWTAuth.
func UserID(c echo.Context) (string, bool) {
    id, ok := c.Get(ctxUserID).(string)
    return id, ok && id != ""
}

// Role returns the authenticated role stored by JWTAuth.
func Role(c echo.Context) (string, bool) {
    role, ok := c.Get(ctxRole).(string)
    return role, ok && role != ""
}

// subject identifies the caller for rate limiting: the user id when
// authenticated, "guest" otherwise.
func subject(c echo.Context) string {
    if id, ok := UserID(c); ok {
        return id
    }
    return "guest"
}
