package handler_test

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mahfaza/internal/handler"
	"mahfaza/internal/model"
	"mahfaza/pkg/database"
	"mahfaza/pkg/password"
)

func newAuthApp(t *testing.T) (*echo.Echo, *handler.AuthHandler) {
	t.Helper()
	cfg := testConfig()
	setupDB(t, cfg)
	h := handler.NewAuthHandler(cfg, newLimiter(cfg))

	e := echo.New()
	e.GET("/api/csrf", h.IssueCSRF)
	e.POST("/api/auth/login", h.Login)
	e.POST("/api/auth/logout", h.Logout)
	e.POST("/api/auth/regenerate-session", h.RegenerateSession)
	e.GET("/api/tenant/session/:tenantId", h.CheckSession)
	return e, h
}

func TestIssueCSRF(t *testing.T) {
	e, _ := newAuthApp(t)

	rec := doRequest(e, httptest.NewRequest(http.MethodGet, "/api/csrf", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	token, _ := body["csrf_token"].(string)
	require.NotEmpty(t, token)

	cookie := cookieByName(rec, "csrf_token")
	require.NotNil(t, cookie)
	assert.Equal(t, token, cookie.Value)
}

func TestLoginSuccess(t *testing.T) {
	e, _ := newAuthApp(t)
	company := seedCompany(t, "acme")
	user := seedUser(t, company.ID, "alice@acme.example", "Passw0rdOk")

	rec := doRequest(e, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"company_slug": "acme",
		"email":        "alice@acme.example",
		"password":     "Passw0rdOk",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, company.ID, body["company_id"])
	assert.NotEmpty(t, body["csrf_token"])

	sessCookie := cookieByName(rec, "tenant_"+company.ID+"_session")
	require.NotNil(t, sessCookie)
	assert.True(t, sessCookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, sessCookie.SameSite)

	csrfCookie := cookieByName(rec, "tenant_"+company.ID+"_csrf")
	require.NotNil(t, csrfCookie)
	assert.Equal(t, http.SameSiteStrictMode, csrfCookie.SameSite)

	userInfo, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, user.ID, userInfo["id"])
}

func TestLoginRejectsMissingCSRF(t *testing.T) {
	e, _ := newAuthApp(t)
	seedCompany(t, "acme")

	req := jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"company_slug": "acme",
		"email":        "alice@acme.example",
		"password":     "Passw0rdOk",
	})
	req.Header.Del("X-Csrf-Token")

	rec := doRequest(e, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoginUnknownCompanyLooksLikeBadCredentials(t *testing.T) {
	e, _ := newAuthApp(t)

	rec := doRequest(e, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"company_slug": "no-such-company",
		"email":        "alice@acme.example",
		"password":     "Passw0rdOk",
	}))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", decodeBody(t, rec)["error"])
}

func TestLoginWrongPassword(t *testing.T) {
	e, _ := newAuthApp(t)
	company := seedCompany(t, "acme")
	seedUser(t, company.ID, "alice@acme.example", "Passw0rdOk")

	rec := doRequest(e, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"company_slug": "acme",
		"email":        "alice@acme.example",
		"password":     "WrongPassword",
	}))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", decodeBody(t, rec)["error"])
}

func TestLoginRateLimited(t *testing.T) {
	e, _ := newAuthApp(t)
	company := seedCompany(t, "acme")
	seedUser(t, company.ID, "alice@acme.example", "Passw0rdOk")

	payload := map[string]string{
		"company_slug": "acme",
		"email":        "alice@acme.example",
		"password":     "WrongPassword",
	}
	for i := 0; i < 5; i++ {
		rec := doRequest(e, jsonRequest(http.MethodPost, "/api/auth/login", payload))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := doRequest(e, jsonRequest(http.MethodPost, "/api/auth/login", payload))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeBody(t, rec)
	assert.Greater(t, body["retry_after"].(float64), float64(0))

	// The correct password is also refused while locked out.
	payload["password"] = "Passw0rdOk"
	rec = doRequest(e, jsonRequest(http.MethodPost, "/api/auth/login", payload))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestLoginMigratesLegacyHash(t *testing.T) {
	e, _ := newAuthApp(t)
	company := seedCompany(t, "acme")
	user := seedUser(t, company.ID, "alice@acme.example", "placeholder")

	// Overwrite with a legacy unsalted digest of the real password.
	sum := sha256.Sum256([]byte("Passw0rdOk"))
	legacy := hex.EncodeToString(sum[:])
	db, err := database.GetTenantDB(company.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.User{}).Where("id = ?", user.ID).
		Update("password", legacy).Error)

	rec := doRequest(e, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"company_slug": "acme",
		"email":        "alice@acme.example",
		"password":     "Passw0rdOk",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	var updated model.User
	require.NoError(t, db.Where("id = ?", user.ID).First(&updated).Error)
	assert.False(t, password.IsLegacyHash(updated.Password))
	assert.NotEqual(t, legacy, updated.Password)
}

func TestLogoutClearsCookiesAndSession(t *testing.T) {
	e, _ := newAuthApp(t)
	company := seedCompany(t, "acme")
	seedUser(t, company.ID, "alice@acme.example", "Passw0rdOk")

	login := doRequest(e, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"company_slug": "acme",
		"email":        "alice@acme.example",
		"password":     "Passw0rdOk",
	}))
	require.Equal(t, http.StatusOK, login.Code)
	sessCookie := cookieByName(login, "tenant_"+company.ID+"_session")
	require.NotNil(t, sessCookie)

	req := jsonRequest(http.MethodPost, "/api/auth/logout", map[string]string{
		"tenant_id": company.ID,
	})
	req.AddCookie(&http.Cookie{Name: sessCookie.Name, Value: sessCookie.Value})

	rec := doRequest(e, req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	cleared := cookieByName(rec, sessCookie.Name)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	// The session row is gone.
	db, err := database.GetTenantDB(company.ID)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&model.Session{}).Where("token = ?", sessCookie.Value).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRegenerateSessionRotatesToken(t *testing.T) {
	e, _ := newAuthApp(t)
	company := seedCompany(t, "acme")
	seedUser(t, company.ID, "alice@acme.example", "Passw0rdOk")

	login := doRequest(e, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"company_slug": "acme",
		"email":        "alice@acme.example",
		"password":     "Passw0rdOk",
	}))
	sessCookie := cookieByName(login, "tenant_"+company.ID+"_session")
	require.NotNil(t, sessCookie)

	req := jsonRequest(http.MethodPost, "/api/auth/regenerate-session", map[string]string{
		"tenant_id": company.ID,
	})
	req.AddCookie(&http.Cookie{Name: sessCookie.Name, Value: sessCookie.Value})

	rec := doRequest(e, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rotated := cookieByName(rec, sessCookie.Name)
	require.NotNil(t, rotated)
	assert.NotEqual(t, sessCookie.Value, rotated.Value)

	// The old token no longer validates.
	check := httptest.NewRequest(http.MethodGet, "/api/tenant/session/"+company.ID, nil)
	check.AddCookie(&http.Cookie{Name: sessCookie.Name, Value: sessCookie.Value})
	checkRec := doRequest(e, check)
	assert.Equal(t, http.StatusUnauthorized, checkRec.Code)
}

func TestCheckSession(t *testing.T) {
	e, _ := newAuthApp(t)
	company := seedCompany(t, "acme")
	user := seedUser(t, company.ID, "alice@acme.example", "Passw0rdOk")

	login := doRequest(e, jsonRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"company_slug": "acme",
		"email":        "alice@acme.example",
		"password":     "Passw0rdOk",
	}))
	sessCookie := cookieByName(login, "tenant_"+company.ID+"_session")
	require.NotNil(t, sessCookie)

	t.Run("valid session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/tenant/session/"+company.ID, nil)
		req.AddCookie(&http.Cookie{Name: sessCookie.Name, Value: sessCookie.Value})
		rec := doRequest(e, req)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, true, body["valid"])
		assert.Equal(t, user.ID, body["user_id"])
	})

	t.Run("missing cookie", func(t *testing.T) {
		rec := doRequest(e, httptest.NewRequest(http.MethodGet, "/api/tenant/session/"+company.ID, nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, false, decodeBody(t, rec)["valid"])
	})
}
