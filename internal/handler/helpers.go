package handler

import (
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/labstack/echo/v4"

	"mahfaza/internal/model"
	"mahfaza/pkg/database"
	"mahfaza/pkg/session"
)

var tenantSessionCookiePattern = regexp.MustCompile(`^tenant_(.+)_session$`)

// clientInfo extracts the caller's IP and user agent for audit records.
func clientInfo(c echo.Context) (string, string) {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	return ip, c.Request().UserAgent()
}

func tenantSessionCookieName(tenantID string) string {
	return fmt.Sprintf("tenant_%s_session", tenantID)
}

// extractTenantID returns the tenant id for flows that act on an existing
// session. The explicit id from the request body or query wins; scanning
// cookie names for the tenant_<id>_session pattern is kept as a fallback
// for older clients and is ambiguous if a browser carries cookies for
// several tenants.
func extractTenantID(c echo.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, cookie := range c.Cookies() {
		if m := tenantSessionCookiePattern.FindStringSubmatch(cookie.Name); m != nil && cookie.Value != "" {
			return m[1]
		}
	}
	return ""
}

// tenantSessionFromRequest validates the session cookie for tenantID
// against that tenant's store. Returns (nil, nil) when there is no valid
// session.
func tenantSessionFromRequest(c echo.Context, tenantID string, maxSessions int) (*model.Session, error) {
	cookie, err := c.Cookie(tenantSessionCookieName(tenantID))
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	db, err := database.GetTenantDB(tenantID)
	if err != nil {
		return nil, err
	}
	return session.NewStore(db, maxSessions).Validate(cookie.Value)
}

func setTenantSessionCookie(c echo.Context, tenantID, token string, secure bool, ttl time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     tenantSessionCookieName(tenantID),
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func setTenantCSRFCookie(c echo.Context, tenantID, token string, secure bool, ttl time.Duration) {
	c.SetCookie(&http.Cookie{
		Name:     fmt.Sprintf("tenant_%s_csrf", tenantID),
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// clearTenantCookies expires both tenant cookies regardless of whether the
// session row still exists.
func clearTenantCookies(c echo.Context, tenantID string) {
	for _, name := range []string{
		tenantSessionCookieName(tenantID),
		fmt.Sprintf("tenant_%s_csrf", tenantID),
	} {
		c.SetCookie(&http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
		})
	}
}
