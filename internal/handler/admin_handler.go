package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mahfaza/internal/audit"
	"mahfaza/internal/model"
	"mahfaza/pkg/config"
	"mahfaza/pkg/database"
	"mahfaza/pkg/logger"
	"mahfaza/pkg/password"
	"mahfaza/pkg/ratelimit"
	"mahfaza/pkg/session"
	"mahfaza/prometheus"
)

// AdminCookieName is the operator session cookie.
const AdminCookieName = "admin_session"

// AdminHandler serves operator authentication and company management.
type AdminHandler struct {
	cfg     *config.Config
	limiter *ratelimit.Limiter
	hasher  *password.Hasher
}

// NewAdminHandler wires the handler with the process-wide rate limiter.
func NewAdminHandler(cfg *config.Config, limiter *ratelimit.Limiter) *AdminHandler {
	return &AdminHandler{
		cfg:     cfg,
		limiter: limiter,
		hasher:  password.NewHasher(cfg.Auth.BcryptCost),
	}
}

// adminSessionFromRequest validates the admin session cookie against the
// main store. Returns (nil, nil) when there is no valid session.
func adminSessionFromRequest(c echo.Context) (*model.AdminSession, error) {
	cookie, err := c.Cookie(AdminCookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}
	return session.NewAdminStore(database.GetDB()).Validate(cookie.Value)
}

// SignIn authenticates a platform operator. The limiter key is prefixed so
// admin attempts do not share a namespace with tenant logins for the same
// email.
func (h *AdminHandler) SignIn(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.AdminLoginCounter.Inc()

	var req struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		RememberMe bool   `json:"remember_me"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	ip, userAgent := clientInfo(c)
	limitKey := ratelimit.Key(ip, "admin_"+req.Email)
	limit := h.limiter.Check(limitKey)
	if !limit.Allowed {
		prometheus.RateLimitedCounter.Inc()
		audit.LogAuthEvent(audit.AuthEvent{
			UserType:     "admin",
			UserEmail:    req.Email,
			Action:       "failed_login",
			IPAddress:    ip,
			UserAgent:    userAgent,
			ErrorMessage: "rate limit exceeded",
		})
		return c.JSON(http.StatusTooManyRequests, echo.Map{
			"error":       "too many attempts, try again later",
			"retry_after": limit.RetryAfter,
		})
	}

	var admin model.Admin
	if result := database.GetDB().Where("email = ?", req.Email).First(&admin); result.Error != nil || admin.Password == "" {
		audit.LogAuthEvent(audit.AuthEvent{
			UserType:     "admin",
			UserEmail:    req.Email,
			Action:       "failed_login",
			IPAddress:    ip,
			UserAgent:    userAgent,
			ErrorMessage: "admin not found",
		})
		prometheus.RecordAuthError("admin_not_found")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	valid := false
	if password.IsLegacyHash(admin.Password) {
		newHash, err := h.hasher.MigrateLegacyHash(req.Password, admin.Password)
		if err != nil {
			log.Error("Legacy hash migration failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sign-in failed"})
		}
		if newHash != "" {
			if result := database.GetDB().Model(&admin).Update("password", newHash); result.Error != nil {
				log.Error("Failed to persist migrated hash", zap.Error(result.Error))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sign-in failed"})
			}
			valid = true
		}
	} else {
		valid = h.hasher.Verify(req.Password, admin.Password)
	}

	if !valid {
		audit.LogAuthEvent(audit.AuthEvent{
			UserType:     "admin",
			UserEmail:    req.Email,
			Action:       "failed_login",
			IPAddress:    ip,
			UserAgent:    userAgent,
			ErrorMessage: "invalid password",
		})
		prometheus.RecordAuthError("invalid_password")
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	h.limiter.Reset(limitKey)

	ttl := h.cfg.Auth.AdminSessionTTL
	if req.RememberMe {
		ttl = h.cfg.Auth.AdminRememberTTL
	}

	sess, err := session.NewAdminStore(database.GetDB()).Create(admin.ID, ttl)
	if err != nil {
		log.Error("Failed to create admin session", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "sign-in failed"})
	}

	// The admin console may live on another origin, hence SameSite=None.
	c.SetCookie(&http.Cookie{
		Name:     AdminCookieName,
		Value:    sess.Token,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})

	audit.LogAuthEvent(audit.AuthEvent{
		UserType:  "admin",
		UserEmail: req.Email,
		Action:    "login",
		Success:   true,
		IPAddress: ip,
		UserAgent: userAgent,
	})

	log.Info("Admin signed in", zap.String("admin_id", admin.ID))
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// SignOut deletes the admin session row and clears the cookie.
func (h *AdminHandler) SignOut(c echo.Context) error {
	if cookie, err := c.Cookie(AdminCookieName); err == nil && cookie.Value != "" {
		if err := session.NewAdminStore(database.GetDB()).Invalidate(cookie.Value); err != nil {
			logger.FromContext(c).Warn("Failed to delete admin session", zap.Error(err))
		}
	}

	c.SetCookie(&http.Cookie{
		Name:     AdminCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// ListCompanies returns every registered company. Admin only.
func (h *AdminHandler) ListCompanies(c echo.Context) error {
	sess, err := adminSessionFromRequest(c)
	if err != nil {
		logger.FromContext(c).Error("Admin session lookup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if sess == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	companies, err := database.AllCompanies()
	if err != nil {
		logger.FromContext(c).Error("Failed to list companies", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch companies"})
	}

	prometheus.CompaniesGauge.Set(float64(len(companies)))
	return c.JSON(http.StatusOK, echo.Map{"companies": companies})
}

// CreateCompany provisions a new tenant: company row plus an empty isolated
// store. Admin only.
func (h *AdminHandler) CreateCompany(c echo.Context) error {
	log := logger.FromContext(c)

	sess, err := adminSessionFromRequest(c)
	if err != nil {
		log.Error("Admin session lookup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if sess == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		Name         string `json:"name"`
		Slug         string `json:"slug"`
		ManagerEmail string `json:"manager_email"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" || req.Slug == "" || req.ManagerEmail == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "all fields are required"})
	}

	var existing model.Company
	if result := database.GetDB().Where("slug = ?", req.Slug).First(&existing); result.Error == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "company slug already in use"})
	}

	companyID := uuid.NewString()
	company := model.Company{
		ID:           companyID,
		Name:         req.Name,
		Slug:         req.Slug,
		DBPath:       fmt.Sprintf("tenant_%s.db", companyID),
		ManagerEmail: req.ManagerEmail,
		CreatedAt:    time.Now(),
	}
	if result := database.GetDB().Create(&company); result.Error != nil {
		log.Error("Failed to create company", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create company"})
	}

	// Provision the isolated store up front.
	if _, err := database.GetTenantDB(companyID); err != nil {
		log.Error("Failed to provision tenant store", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create company"})
	}

	log.Info("Company created", zap.String("company_id", companyID), zap.String("slug", req.Slug))
	return c.JSON(http.StatusOK, echo.Map{"success": true, "company_id": companyID})
}

// ToggleCompany flips a company's IsActive flag. Admin only.
func (h *AdminHandler) ToggleCompany(c echo.Context) error {
	log := logger.FromContext(c)

	sess, err := adminSessionFromRequest(c)
	if err != nil {
		log.Error("Admin session lookup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if sess == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	companyID := c.Param("id")

	var company model.Company
	if result := database.GetDB().Where("id = ?", companyID).First(&company); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "company not found"})
	}

	if result := database.GetDB().Model(&company).Update("is_active", !company.IsActive); result.Error != nil {
		log.Error("Failed to toggle company", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update company"})
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "is_active": !company.IsActive})
}

// UpdateUserRole changes a tenant user's role from the admin console.
func (h *AdminHandler) UpdateUserRole(c echo.Context) error {
	log := logger.FromContext(c)

	sess, err := adminSessionFromRequest(c)
	if err != nil {
		log.Error("Admin session lookup failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
	if sess == nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}

	var req struct {
		CompanyID string `json:"company_id"`
		UserID    string `json:"user_id"`
		Role      string `json:"role"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.CompanyID == "" || req.UserID == "" || req.Role == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "all fields are required"})
	}

	tenantDB, err := database.GetTenantDB(req.CompanyID)
	if err != nil {
		log.Error("Failed to open tenant store", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	if result := tenantDB.Model(&model.User{}).Where("id = ?", req.UserID).
		Update("role", req.Role); result.Error != nil {
		log.Error("Failed to update user role", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update role"})
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
