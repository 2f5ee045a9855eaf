package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	gormlogger "gorm.io/gorm/logger"

	"mahfaza/internal/model"
	"mahfaza/pkg/config"
	"mahfaza/pkg/csrf"
	"mahfaza/pkg/database"
	"mahfaza/pkg/password"
	"mahfaza/pkg/ratelimit"
)

// testConfig uses bcrypt's minimum cost so the suite stays fast.
func testConfig() *config.Config {
	return &config.Config{
		Data:   config.DataConfig{LogLevel: gormlogger.Silent},
		Server: config.ServerConfig{Port: "8080", Env: "test"},
		Auth: config.AuthConfig{
			BcryptCost:         bcrypt.MinCost,
			SessionTTL:         7 * 24 * time.Hour,
			AdminSessionTTL:    24 * time.Hour,
			AdminRememberTTL:   30 * 24 * time.Hour,
			CSRFTokenTTL:       24 * time.Hour,
			ResetCodeTTL:       15 * time.Minute,
			MaxSessionsPerUser: 5,
		},
		RateLimit: config.RateLimitConfig{
			MaxAttempts: 5,
			Window:      15 * time.Minute,
			Lockout:     30 * time.Minute,
			CacheSize:   100,
		},
		Cleanup: config.CleanupConfig{Secret: "cleanup-test-secret"},
	}
}

func setupDB(t *testing.T, cfg *config.Config) {
	t.Helper()
	cfg.Data.Dir = t.TempDir()
	require.NoError(t, database.Init(&cfg.Data))
}

func newLimiter(cfg *config.Config) *ratelimit.Limiter {
	return ratelimit.New(ratelimit.Config{
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Window:      cfg.RateLimit.Window,
		Lockout:     cfg.RateLimit.Lockout,
		CacheSize:   cfg.RateLimit.CacheSize,
	})
}

func seedCompany(t *testing.T, slug string) *model.Company {
	t.Helper()
	company := &model.Company{
		ID:           uuid.NewString(),
		Name:         slug,
		Slug:         slug,
		DBPath:       "tenant_" + slug + ".db",
		ManagerEmail: slug + "@example.com",
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, database.GetDB().Create(company).Error)
	return company
}

func seedUser(t *testing.T, companyID, email, plaintext string) *model.User {
	t.Helper()
	db, err := database.GetTenantDB(companyID)
	require.NoError(t, err)

	hash, err := password.NewHasher(bcrypt.MinCost).Hash(plaintext)
	require.NoError(t, err)

	user := &model.User{
		ID:        uuid.NewString(),
		Name:      "Test User",
		Email:     email,
		Password:  hash,
		Role:      "employee",
		CreatedAt: time.Now(),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func seedAdmin(t *testing.T, email, plaintext string) *model.Admin {
	t.Helper()
	hash, err := password.NewHasher(bcrypt.MinCost).Hash(plaintext)
	require.NoError(t, err)

	admin := &model.Admin{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      "Test Admin",
		Password:  hash,
		CreatedAt: time.Now(),
	}
	require.NoError(t, database.GetDB().Create(admin).Error)
	return admin
}

// jsonRequest builds a request carrying a valid bootstrap CSRF pair.
func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)

	token := csrf.GenerateToken()
	req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: token})
	req.Header.Set(csrf.HeaderName, token)
	return req
}

func doRequest(e *echo.Echo, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}
