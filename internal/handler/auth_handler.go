package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mahfaza/internal/audit"
	"mahfaza/internal/model"
	"mahfaza/pkg/config"
	"mahfaza/pkg/csrf"
	"mahfaza/pkg/database"
	"mahfaza/pkg/logger"
	"mahfaza/pkg/password"
	"mahfaza/pkg/ratelimit"
	"mahfaza/pkg/session"
	"mahfaza/prometheus"
)

// AuthHandler serves the tenant authentication flows.
type AuthHandler struct {
	cfg     *config.Config
	limiter *ratelimit.Limiter
	hasher  *password.Hasher
}

// NewAuthHandler wires the handler with the process-wide rate limiter.
func NewAuthHandler(cfg *config.Config, limiter *ratelimit.Limiter) *AuthHandler {
	return &AuthHandler{
		cfg:     cfg,
		limiter: limiter,
		hasher:  password.NewHasher(cfg.Auth.BcryptCost),
	}
}

// IssueCSRF hands out a bootstrap CSRF token for unauthenticated flows.
// The token is delivered both as a cookie and in the body so clients can
// echo it in the X-Csrf-Token header.
func (h *AuthHandler) IssueCSRF(c echo.Context) error {
	token := csrf.SetCookie(c, h.cfg.Auth.SecureCookies, h.cfg.Auth.CSRFTokenTTL)
	return c.JSON(http.StatusOK, echo.Map{"csrf_token": token})
}

// Login authenticates a tenant user: CSRF check, rate limit, tenant
// resolution, credential check with legacy-hash migration, session cap
// enforcement, then cookie issuance.
func (h *AuthHandler) Login(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.LoginCounter.Inc()

	if !csrf.Protect(c) {
		prometheus.CSRFRejectedCounter.Inc()
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid request, reload the page"})
	}

	var req struct {
		CompanySlug string `json:"company_slug"`
		Email       string `json:"email"`
		Password    string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		log.Error("Failed to parse login request", zap.Error(err))
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.CompanySlug == "" || req.Email == "" || req.Password == "" {
		prometheus.RecordAuthError("incomplete_login")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "all fields are required"})
	}

	ip, userAgent := clientInfo(c)
	limitKey := ratelimit.Key(ip, req.Email)
	limit := h.limiter.Check(limitKey)
	if !limit.Allowed {
		prometheus.RateLimitedCounter.Inc()
		log.Warn("Login rate limited", zap.String("email", req.Email), zap.String("ip", ip))
		return c.JSON(http.StatusTooManyRequests, echo.Map{
			"error":       "too many attempts, try again later",
			"retry_after": limit.RetryAfter,
		})
	}

	// Unknown tenants get the same generic response as bad credentials so
	// the endpoint does not reveal which companies exist.
	company, err := database.GetCompanyBySlugOrID(req.CompanySlug)
	if err != nil {
		if err != database.ErrCompanyNotFound {
			log.Error("Company lookup failed", zap.Error(err))
			prometheus.RecordAuthError("db_error")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
		}
		prometheus.RecordAuthError("unknown_company")
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error":              "invalid credentials",
			"remaining_attempts": limit.RemainingAttempts,
		})
	}

	tenantDB, err := database.GetTenantDB(company.ID)
	if err != nil {
		log.Error("Failed to open tenant store", zap.String("company_id", company.ID), zap.Error(err))
		prometheus.RecordAuthError("db_error")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	defer prometheus.TrackDBOperation("query")(time.Now())
	var user model.User
	if result := tenantDB.Where("email = ?", req.Email).First(&user); result.Error != nil || user.Password == "" {
		audit.LogSecurityEvent(audit.SecurityEvent{
			TenantID:  company.ID,
			Action:    audit.ActionLoginFailed,
			IPAddress: ip,
			UserAgent: userAgent,
			Details:   map[string]interface{}{"email": req.Email, "reason": "user not found"},
		})
		prometheus.RecordAuthError("user_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error":              "invalid credentials",
			"remaining_attempts": limit.RemainingAttempts,
		})
	}

	valid := false
	if password.IsLegacyHash(user.Password) {
		// Migrate-on-read: a correct password against a legacy digest is
		// rehashed with bcrypt before the login completes.
		newHash, err := h.hasher.MigrateLegacyHash(req.Password, user.Password)
		if err != nil {
			log.Error("Legacy hash migration failed", zap.Error(err))
			prometheus.RecordAuthError("hash_error")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
		}
		if newHash != "" {
			if result := tenantDB.Model(&user).Updates(map[string]interface{}{
				"password":   newHash,
				"updated_at": time.Now(),
			}); result.Error != nil {
				log.Error("Failed to persist migrated hash", zap.Error(result.Error))
				prometheus.RecordAuthError("db_error")
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
			}
			valid = true
		}
	} else {
		valid = h.hasher.Verify(req.Password, user.Password)
	}

	if !valid {
		audit.LogSecurityEvent(audit.SecurityEvent{
			TenantID:  company.ID,
			UserID:    user.ID,
			Action:    audit.ActionLoginFailed,
			IPAddress: ip,
			UserAgent: userAgent,
			Details:   map[string]interface{}{"email": req.Email, "reason": "invalid password"},
		})
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error":              "invalid credentials",
			"remaining_attempts": limit.RemainingAttempts,
		})
	}

	h.limiter.Reset(limitKey)

	store := session.NewStore(tenantDB, h.cfg.Auth.MaxSessionsPerUser)
	sess, err := store.Create(user.ID, ip, userAgent, h.cfg.Auth.SessionTTL)
	if err != nil {
		log.Error("Failed to create session", zap.Error(err))
		prometheus.RecordAuthError("session_creation_failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	csrfToken := csrf.GenerateToken()
	setTenantSessionCookie(c, company.ID, sess.Token, h.cfg.Auth.SecureCookies, h.cfg.Auth.SessionTTL)
	setTenantCSRFCookie(c, company.ID, csrfToken, h.cfg.Auth.SecureCookies, h.cfg.Auth.SessionTTL)

	audit.LogSecurityEvent(audit.SecurityEvent{
		TenantID:  company.ID,
		UserID:    user.ID,
		Action:    audit.ActionLoginSuccess,
		IPAddress: ip,
		UserAgent: userAgent,
		Details:   map[string]interface{}{"email": req.Email},
	})

	log.Info("Tenant user logged in",
		zap.String("company_id", company.ID),
		zap.String("user_id", user.ID))

	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"company_id":   company.ID,
		"company_slug": company.Slug,
		"csrf_token":   csrfToken,
		"user": echo.Map{
			"id":    user.ID,
			"name":  user.Name,
			"email": user.Email,
			"role":  user.Role,
		},
	})
}

// Logout deletes the session row best-effort and always clears both tenant
// cookies.
func (h *AuthHandler) Logout(c echo.Context) error {
	log := logger.FromContext(c)
	ip, userAgent := clientInfo(c)

	var req struct {
		TenantID string `json:"tenant_id"`
	}
	_ = c.Bind(&req)

	tenantID := extractTenantID(c, req.TenantID)
	if tenantID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "no active session"})
	}

	var userID string
	if cookie, err := c.Cookie(tenantSessionCookieName(tenantID)); err == nil && cookie.Value != "" {
		if db, err := database.GetTenantDB(tenantID); err == nil {
			store := session.NewStore(db, h.cfg.Auth.MaxSessionsPerUser)
			if sess, _ := store.Validate(cookie.Value); sess != nil {
				userID = sess.UserID
			}
			if err := store.Invalidate(cookie.Value); err != nil {
				// Cookies are cleared regardless.
				log.Warn("Failed to delete session on logout", zap.Error(err))
			}
		}
	}

	audit.LogSecurityEvent(audit.SecurityEvent{
		TenantID:  tenantID,
		UserID:    userID,
		Action:    audit.ActionLogout,
		IPAddress: ip,
		UserAgent: userAgent,
	})

	clearTenantCookies(c, tenantID)
	return c.Redirect(http.StatusFound, "/login")
}

// RegenerateSession rotates the session token in place to mitigate
// fixation. Expiry is unchanged.
func (h *AuthHandler) RegenerateSession(c echo.Context) error {
	log := logger.FromContext(c)

	var req struct {
		TenantID string `json:"tenant_id"`
	}
	_ = c.Bind(&req)

	tenantID := extractTenantID(c, req.TenantID)
	if tenantID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "no active session"})
	}

	cookie, err := c.Cookie(tenantSessionCookieName(tenantID))
	if err != nil || cookie.Value == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "no session token"})
	}

	db, err := database.GetTenantDB(tenantID)
	if err != nil {
		log.Error("Failed to open tenant store", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	newToken, err := session.NewStore(db, h.cfg.Auth.MaxSessionsPerUser).Regenerate(cookie.Value)
	if err != nil {
		log.Error("Session regeneration failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if newToken == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "session invalid or expired"})
	}

	setTenantSessionCookie(c, tenantID, newToken, h.cfg.Auth.SecureCookies, h.cfg.Auth.SessionTTL)

	ip, userAgent := clientInfo(c)
	audit.LogSecurityEvent(audit.SecurityEvent{
		TenantID:  tenantID,
		Action:    audit.ActionSessionRegenerated,
		IPAddress: ip,
		UserAgent: userAgent,
	})

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// CheckSession is the authoritative session-validation endpoint consumed by
// the request gate and client-side flows: GET /api/tenant/session/:tenantId.
func (h *AuthHandler) CheckSession(c echo.Context) error {
	tenantID := c.Param("tenantId")

	sess, err := tenantSessionFromRequest(c, tenantID, h.cfg.Auth.MaxSessionsPerUser)
	if err != nil {
		logger.FromContext(c).Error("Session validation failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"valid": false})
	}
	if sess == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"valid": false})
	}

	return c.JSON(http.StatusOK, echo.Map{"valid": true, "user_id": sess.UserID})
}
