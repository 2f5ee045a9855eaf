package csrf_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mahfaza/pkg/csrf"
)

func newContext(t *testing.T, req *http.Request) echo.Context {
	t.Helper()
	return echo.New().NewContext(req, httptest.NewRecorder())
}

func TestGenerateToken(t *testing.T) {
	a := csrf.GenerateToken()
	b := csrf.GenerateToken()
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestSetCookie(t *testing.T) {
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	token := csrf.SetCookie(c, true, 24*time.Hour)
	require.NotEmpty(t, token)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, csrf.CookieName, cookies[0].Name)
	assert.Equal(t, token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
	assert.True(t, cookies[0].Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookies[0].SameSite)
}

func TestProtect(t *testing.T) {
	token := csrf.GenerateToken()

	t.Run("matching pair passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: token})
		req.Header.Set(csrf.HeaderName, token)
		assert.True(t, csrf.Protect(newContext(t, req)))
	})

	t.Run("mismatched pair fails", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: token})
		req.Header.Set(csrf.HeaderName, csrf.GenerateToken())
		assert.False(t, csrf.Protect(newContext(t, req)))
	})

	t.Run("missing cookie fails", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set(csrf.HeaderName, token)
		assert.False(t, csrf.Protect(newContext(t, req)))
	})

	t.Run("missing header fails", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: token})
		assert.False(t, csrf.Protect(newContext(t, req)))
	})
}

func TestValidateTenant(t *testing.T) {
	token := csrf.GenerateToken()

	t.Run("matching pair passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.AddCookie(&http.Cookie{Name: csrf.TenantCookieName("acme"), Value: token})
		req.Header.Set(csrf.HeaderName, token)
		assert.True(t, csrf.ValidateTenant(newContext(t, req), "acme"))
	})

	t.Run("cookie for another tenant fails", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.AddCookie(&http.Cookie{Name: csrf.TenantCookieName("other"), Value: token})
		req.Header.Set(csrf.HeaderName, token)
		assert.False(t, csrf.ValidateTenant(newContext(t, req), "acme"))
	})
}

func TestTenantCookieName(t *testing.T) {
	assert.Equal(t, "tenant_abc_csrf", csrf.TenantCookieName("abc"))
}
