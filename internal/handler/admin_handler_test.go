package handler_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mahfaza/internal/handler"
	"mahfaza/internal/model"
	"mahfaza/pkg/config"
	"mahfaza/pkg/database"
)

func newAdminApp(t *testing.T) (*echo.Echo, *config.Config) {
	t.Helper()
	cfg := testConfig()
	setupDB(t, cfg)
	h := handler.NewAdminHandler(cfg, newLimiter(cfg))

	e := echo.New()
	e.POST("/api/admin/signin", h.SignIn)
	e.POST("/api/admin/signout", h.SignOut)
	e.GET("/api/admin/companies", h.ListCompanies)
	e.POST("/api/admin/companies", h.CreateCompany)
	e.POST("/api/admin/companies/:id/toggle", h.ToggleCompany)
	e.PATCH("/api/admin/users/role", h.UpdateUserRole)
	return e, cfg
}

func adminSignIn(t *testing.T, e *echo.Echo, email, pass string) *http.Cookie {
	t.Helper()
	rec := doRequest(e, jsonRequest(http.MethodPost, "/api/admin/signin", map[string]any{
		"email":    email,
		"password": pass,
	}))
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := cookieByName(rec, handler.AdminCookieName)
	require.NotNil(t, cookie)
	return cookie
}

func TestAdminSignIn(t *testing.T) {
	e, cfg := newAdminApp(t)
	seedAdmin(t, "root@example.com", "Adm1nPassword")

	rec := doRequest(e, jsonRequest(http.MethodPost, "/api/admin/signin", map[string]any{
		"email":    "root@example.com",
		"password": "Adm1nPassword",
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := cookieByName(rec, handler.AdminCookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteNoneMode, cookie.SameSite)
	assert.Equal(t, int(cfg.Auth.AdminSessionTTL.Seconds()), cookie.MaxAge)
}

func TestAdminSignInRememberMe(t *testing.T) {
	e, cfg := newAdminApp(t)
	seedAdmin(t, "root@example.com", "Adm1nPassword")

	rec := doRequest(e, jsonRequest(http.MethodPost, "/api/admin/signin", map[string]any{
		"email":       "root@example.com",
		"password":    "Adm1nPassword",
		"remember_me": true,
	}))
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := cookieByName(rec, handler.AdminCookieName)
	require.NotNil(t, cookie)
	assert.Equal(t, int(cfg.Auth.AdminRememberTTL.Seconds()), cookie.MaxAge)
}

func TestAdminSignInWrongPassword(t *testing.T) {
	e, _ := newAdminApp(t)
	seedAdmin(t, "root@example.com", "Adm1nPassword")

	rec := doRequest(e, jsonRequest(http.MethodPost, "/api/admin/signin", map[string]any{
		"email":    "root@example.com",
		"password": "nope",
	}))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Failures land in the global audit trail.
	var count int64
	require.NoError(t, database.GetDB().Model(&model.AuthLog{}).
		Where("user_email = ? AND action = ?", "root@example.com", "failed_login").
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestAdminSignInRateLimited(t *testing.T) {
	e, _ := newAdminApp(t)
	seedAdmin(t, "root@example.com", "Adm1nPassword")

	for i := 0; i < 5; i++ {
		doRequest(e, jsonRequest(http.MethodPost, "/api/admin/signin", map[string]any{
			"email":    "root@example.com",
			"password": "nope",
		}))
	}

	rec := doRequest(e, jsonRequest(http.MethodPost, "/api/admin/signin", map[string]any{
		"email":    "root@example.com",
		"password": "Adm1nPassword",
	}))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestAdminSignOut(t *testing.T) {
	e, _ := newAdminApp(t)
	seedAdmin(t, "root@example.com", "Adm1nPassword")
	cookie := adminSignIn(t, e, "root@example.com", "Adm1nPassword")

	req := jsonRequest(http.MethodPost, "/api/admin/signout", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	rec := doRequest(e, req)
	require.Equal(t, http.StatusOK, rec.Code)

	cleared := cookieByName(rec, handler.AdminCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	var count int64
	require.NoError(t, database.GetDB().Model(&model.AdminSession{}).
		Where("token = ?", cookie.Value).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListCompaniesRequiresAdminSession(t *testing.T) {
	e, _ := newAdminApp(t)
	seedCompany(t, "acme")

	rec := doRequest(e, httptest.NewRequest(http.MethodGet, "/api/admin/companies", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListCompanies(t *testing.T) {
	e, _ := newAdminApp(t)
	seedAdmin(t, "root@example.com", "Adm1nPassword")
	seedCompany(t, "acme")
	seedCompany(t, "globex")
	cookie := adminSignIn(t, e, "root@example.com", "Adm1nPassword")

	req := httptest.NewRequest(http.MethodGet, "/api/admin/companies", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	rec := doRequest(e, req)
	require.Equal(t, http.StatusOK, rec.Code)

	companies, ok := decodeBody(t, rec)["companies"].([]any)
	require.True(t, ok)
	assert.Len(t, companies, 2)
}

func TestCreateCompanyProvisionsTenantStore(t *testing.T) {
	e, cfg := newAdminApp(t)
	seedAdmin(t, "root@example.com", "Adm1nPassword")
	cookie := adminSignIn(t, e, "root@example.com", "Adm1nPassword")

	req := jsonRequest(http.MethodPost, "/api/admin/companies", map[string]string{
		"name":          "Acme Inc",
		"slug":          "acme",
		"manager_email": "boss@acme.example",
	})
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	rec := doRequest(e, req)
	require.Equal(t, http.StatusOK, rec.Code)

	companyID, _ := decodeBody(t, rec)["company_id"].(string)
	require.NotEmpty(t, companyID)

	_, err := os.Stat(filepath.Join(cfg.Data.Dir, "tenant_"+companyID+".db"))
	assert.NoError(t, err)

	// Duplicate slug is refused.
	req = jsonRequest(http.MethodPost, "/api/admin/companies", map[string]string{
		"name":          "Acme Clone",
		"slug":          "acme",
		"manager_email": "clone@acme.example",
	})
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	rec = doRequest(e, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToggleCompany(t *testing.T) {
	e, _ := newAdminApp(t)
	seedAdmin(t, "root@example.com", "Adm1nPassword")
	company := seedCompany(t, "acme")
	cookie := adminSignIn(t, e, "root@example.com", "Adm1nPassword")

	req := jsonRequest(http.MethodPost, "/api/admin/companies/"+company.ID+"/toggle", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	rec := doRequest(e, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["is_active"])

	var updated model.Company
	require.NoError(t, database.GetDB().Where("id = ?", company.ID).First(&updated).Error)
	assert.False(t, updated.IsActive)

	req = jsonRequest(http.MethodPost, "/api/admin/companies/unknown-id/toggle", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	rec = doRequest(e, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateUserRole(t *testing.T) {
	e, _ := newAdminApp(t)
	seedAdmin(t, "root@example.com", "Adm1nPassword")
	company := seedCompany(t, "acme")
	user := seedUser(t, company.ID, "alice@acme.example", "Passw0rdOk")
	cookie := adminSignIn(t, e, "root@example.com", "Adm1nPassword")

	req := jsonRequest(http.MethodPatch, "/api/admin/users/role", map[string]string{
		"company_id": company.ID,
		"user_id":    user.ID,
		"role":       "manager",
	})
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	rec := doRequest(e, req)
	require.Equal(t, http.StatusOK, rec.Code)

	db, err := database.GetTenantDB(company.ID)
	require.NoError(t, err)
	var updated model.User
	require.NoError(t, db.Where("id = ?", user.ID).First(&updated).Error)
	assert.Equal(t, "manager", updated.Role)
}
