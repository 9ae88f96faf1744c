package middleware

// identity.go holds the request identity helpers shared by the
// middleware and handler layers. A caller is identified by a client
// token (mandatory for hold operations, sent via X-Client-Token) and
// optionally by the authenticated user ID set by OptionalAuth.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// ClientTokenHeader names the header carrying the caller's opaque
// session token. The token scopes hold ownership, so guests can hold
// seats without an account.
const ClientTokenHeader = "X-Client-Token"

// ClientToken returns the caller's client token, or "" when absent.
func ClientToken(c echo.Context) string {
	return c.Request().Header.Get(ClientTokenHeader)
}

// UserID returns the authenticated user ID when OptionalAuth stored
// one, or nil for anonymous requests.
func UserID(c echo.Context) *uint64 {
	if v, ok := c.Get("user_id").(uint64); ok {
		return &v
	}
	return nil
}

// userID is the rate limiter's identity key: the numeric user ID when
// authenticated, otherwise the client token, otherwise "guest".
func userID(c echo.Context) string {
	if id := UserID(c); id != nil {
		return strconv.FormatUint(*id, 10)
	}
	if tok := ClientToken(c); tok != "" {
		return tok
	}
	return "guest"
}
