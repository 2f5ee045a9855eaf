package middleware

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mahfaza/pkg/config"
	"mahfaza/pkg/database"
	"mahfaza/pkg/logger"
	"mahfaza/pkg/session"
)

const adminCookieName = "admin_session"

// Gate protects the admin console and the per-tenant application areas.
// Admin paths are checked by cookie presence only; the admin handlers do
// the real validation. Tenant paths under /c/<tenantId>/ validate the
// session token against the tenant store and redirect to login when it is
// missing or stale.
func Gate(cfg *config.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path

			if path == "/admin/login" {
				if hasCookie(c, adminCookieName) {
					return c.Redirect(http.StatusFound, "/admin")
				}
				return next(c)
			}

			if path == "/admin" || strings.HasPrefix(path, "/admin/") {
				if !hasCookie(c, adminCookieName) {
					return c.Redirect(http.StatusFound, "/admin/login")
				}
				return next(c)
			}

			if tenantID, ok := tenantIDFromPath(path); ok {
				cookieName := fmt.Sprintf("tenant_%s_session", tenantID)
				cookie, err := c.Cookie(cookieName)
				if err != nil || cookie.Value == "" {
					return redirectToLogin(c, path)
				}

				db, err := database.GetTenantDB(tenantID)
				if err != nil {
					logger.GetLogger().Error("Gate failed to open tenant store",
						zap.String("tenant_id", tenantID), zap.Error(err))
					return redirectToLogin(c, path)
				}

				sess, err := session.NewStore(db, cfg.Auth.MaxSessionsPerUser).Validate(cookie.Value)
				if err != nil {
					logger.GetLogger().Error("Gate session validation failed",
						zap.String("tenant_id", tenantID), zap.Error(err))
					return redirectToLogin(c, path)
				}
				if sess == nil {
					clearTenantCookies(c, tenantID)
					return redirectToLogin(c, path)
				}

				c.Set("tenant_id", tenantID)
				c.Set("user_id", sess.UserID)
			}

			return next(c)
		}
	}
}

// tenantIDFromPath extracts the tenant id from /c/<tenantId>/... paths.
func tenantIDFromPath(path string) (string, bool) {
	if !strings.HasPrefix(path, "/c/") {
		return "", false
	}
	rest := strings.TrimPrefix(path, "/c/")
	if idx := strings.IndexByte(rest, '/'); idx > 0 {
		return rest[:idx], true
	}
	if rest != "" {
		return rest, true
	}
	return "", false
}

func redirectToLogin(c echo.Context, path string) error {
	return c.Redirect(http.StatusFound, "/login?redirect="+url.QueryEscape(path))
}

func hasCookie(c echo.Context, name string) bool {
	cookie, err := c.Cookie(name)
	return err == nil && cookie.Value != ""
}

func clearTenantCookies(c echo.Context, tenantID string) {
	for _, name := range []string{
		fmt.Sprintf("tenant_%s_session", tenantID),
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
