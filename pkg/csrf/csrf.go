package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	// CookieName is the bootstrap double-submit cookie used by
	// unauthenticated flows (login, forgot-password).
	CookieName = "csrf_token"
	// HeaderName carries the echoed token on protected requests.
	HeaderName = "X-Csrf-Token"
)

// GenerateToken returns a 256-bit random token, hex encoded.
func GenerateToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic("csrf: failed to read random bytes: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// SetCookie issues a fresh bootstrap token, sets it as an httpOnly
// strict-same-site cookie and returns the value so the caller can hand it
// to the client body as well.
func SetCookie(c echo.Context, secure bool, ttl time.Duration) string {
	token := GenerateToken()
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
	return token
}

// Protect validates the bootstrap double-submit pair: the request must carry
// the cookie and echo its value in the header. Fails closed when either is
// missing.
func Protect(c echo.Context) bool {
	header := c.Request().Header.Get(HeaderName)
	cookie, err := c.Cookie(CookieName)
	if header == "" || err != nil || cookie.Value == "" {
		return false
	}
	return safeCompare(header, cookie.Value)
}

// TenantCookieName returns the per-tenant CSRF cookie name.
func TenantCookieName(tenantID string) string {
	return fmt.Sprintf("tenant_%s_csrf", tenantID)
}

// ValidateTenant validates the per-tenant session-bound token for
// state-changing tenant requests.
func ValidateTenant(c echo.Context, tenantID string) bool {
	header := c.Request().Header.Get(HeaderName)
	cookie, err := c.Cookie(TenantCookieName(tenantID))
	if header == "" || err != nil || cookie.Value == "" {
		return false
	}
	return safeCompare(header, cookie.Value)
}

// safeCompare is the single constant-time comparison used for every token
// check in the package.
func safeCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
