package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserIDKey is the context key under which the JWT middlewares store the
// authenticated user's id as a uint64.
const UserIDKey = "user_id"

// UserID returns the authenticated user's id, or false for anonymous
// requests.
func UserID(c echo.Context) (uint64, bool) {
	id, ok := c.Get(UserIDKey).(uint64)
	return id, ok && id != 0
}

// userKey is the caller's id for cache and rate limit keys, "anon" when no
// user is authenticated.
func userKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
