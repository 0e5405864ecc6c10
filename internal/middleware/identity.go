package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth.
const (
	KeyUserID = "user_id"
	KeyRole   = "role"
)

// UserID returns the authenticated subject, or "" for anonymous requests.
// Numeric subjects issued by older token minters are rendered in decimal.
func UserID(c echo.Context) string {
	switch v := c.Get(KeyUserID).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	}
	return ""
}

// Role returns the role claim of the authenticated caller.
func Role(c echo.Context) string {
	r, _ := c.Get(KeyRole).(string)
	return r
}
