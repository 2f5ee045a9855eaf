package handler

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"mahfaza/internal/audit"
	"mahfaza/internal/model"
	"mahfaza/pkg/config"
	"mahfaza/pkg/csrf"
	"mahfaza/pkg/database"
	"mahfaza/pkg/logger"
	"mahfaza/pkg/password"
	"mahfaza/pkg/ratelimit"
	"mahfaza/prometheus"
)

// genericResetMessage is returned whether or not the email exists so the
// endpoint cannot be used to enumerate accounts.
const genericResetMessage = "if the email exists, a verification code was sent"

// ResetHandler serves the forgot/verify/reset password flows.
type ResetHandler struct {
	cfg     *config.Config
	limiter *ratelimit.Limiter
	hasher  *password.Hasher
}

// NewResetHandler wires the handler with the process-wide rate limiter.
func NewResetHandler(cfg *config.Config, limiter *ratelimit.Limiter) *ResetHandler {
	return &ResetHandler{
		cfg:     cfg,
		limiter: limiter,
		hasher:  password.NewHasher(cfg.Auth.BcryptCost),
	}
}

// generateOTP returns a uniform random 6-digit code.
func generateOTP() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		panic("failed to read random bytes: " + err.Error())
	}
	return fmt.Sprintf("%06d", n.Int64()+100000)
}

// ForgotPassword issues a reset code with a 15-minute expiry. The response
// is identical whether the tenant or the user exists.
func (h *ResetHandler) ForgotPassword(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RecordPasswordReset("requested")

	if !csrf.Protect(c) {
		prometheus.CSRFRejectedCounter.Inc()
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid request, reload the page"})
	}

	var req struct {
		CompanySlug string `json:"company_slug"`
		Email       string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.CompanySlug == "" || req.Email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "all fields are required"})
	}

	// Reset requests share the limiter but use a distinct identifier
	// namespace so they do not count against login attempts.
	ip, userAgent := clientInfo(c)
	limit := h.limiter.Check(ratelimit.Key(ip, "reset_"+req.Email))
	if !limit.Allowed {
		prometheus.RateLimitedCounter.Inc()
		return c.JSON(http.StatusTooManyRequests, echo.Map{
			"error":       "too many requests, try again later",
			"retry_after": limit.RetryAfter,
		})
	}

	company, err := database.GetCompanyBySlugOrID(req.CompanySlug)
	if err != nil {
		if err != database.ErrCompanyNotFound {
			log.Error("Company lookup failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		}
		return c.JSON(http.StatusOK, echo.Map{"success": true, "message": genericResetMessage})
	}

	tenantDB, err := database.GetTenantDB(company.ID)
	if err != nil {
		log.Error("Failed to open tenant store", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	var user model.User
	if result := tenantDB.Where("email = ?", req.Email).First(&user); result.Error != nil {
		return c.JSON(http.StatusOK, echo.Map{"success": true, "message": genericResetMessage})
	}

	code := generateOTP()
	now := time.Now()
	verification := model.Verification{
		ID:         uuid.NewString(),
		Identifier: req.Email,
		Value:      code,
		ExpiresAt:  now.Add(h.cfg.Auth.ResetCodeTTL),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if result := tenantDB.Create(&verification); result.Error != nil {
		log.Error("Failed to store verification code", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	audit.LogSecurityEvent(audit.SecurityEvent{
		TenantID:  company.ID,
		UserID:    user.ID,
		Action:    audit.ActionPasswordResetRequest,
		IPAddress: ip,
		UserAgent: userAgent,
		Details:   map[string]interface{}{"email": req.Email},
	})

	// TODO: deliver the code by email once the mailer integration lands.
	if h.cfg.Server.Env != "production" {
		log.Debug("Reset code issued", zap.String("email", req.Email), zap.String("code", code))
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": genericResetMessage})
}

// VerifyResetCode checks that a matching unexpired code exists. The code is
// not consumed here; it stays usable until the reset completes or it
// expires.
func (h *ResetHandler) VerifyResetCode(c echo.Context) error {
	if !csrf.Protect(c) {
		prometheus.CSRFRejectedCounter.Inc()
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid request, reload the page"})
	}

	var req struct {
		CompanySlug string `json:"company_slug"`
		Email       string `json:"email"`
		Code        string `json:"code"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.CompanySlug == "" || req.Email == "" || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "all fields are required"})
	}

	company, err := database.GetCompanyBySlugOrID(req.CompanySlug)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	tenantDB, err := database.GetTenantDB(company.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	var verification model.Verification
	result := tenantDB.Where("identifier = ? AND value = ? AND expires_at > ?",
		req.Email, req.Code, time.Now()).First(&verification)
	if result.Error != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code invalid or expired"})
	}

	prometheus.RecordPasswordReset("verified")
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// ResetPassword completes the flow: strength check, OTP recheck, then a
// single tenant-store transaction that updates the hash, revokes every
// session for the user and deletes all outstanding codes for the identifier.
func (h *ResetHandler) ResetPassword(c echo.Context) error {
	log := logger.FromContext(c)

	if !csrf.Protect(c) {
		prometheus.CSRFRejectedCounter.Inc()
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid request, reload the page"})
	}

	var req struct {
		CompanySlug string `json:"company_slug"`
		Email       string `json:"email"`
		Code        string `json:"code"`
		NewPassword string `json:"new_password"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.CompanySlug == "" || req.Email == "" || req.Code == "" || req.NewPassword == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "all fields are required"})
	}

	if ok, reason := password.ValidateStrength(req.NewPassword); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": reason})
	}

	company, err := database.GetCompanyBySlugOrID(req.CompanySlug)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	tenantDB, err := database.GetTenantDB(company.ID)
	if err != nil {
		log.Error("Failed to open tenant store", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	var verification model.Verification
	if result := tenantDB.Where("identifier = ? AND value = ? AND expires_at > ?",
		req.Email, req.Code, time.Now()).First(&verification); result.Error != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code invalid or expired"})
	}

	var user model.User
	if result := tenantDB.Where("email = ?", req.Email).First(&user); result.Error != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	newHash, err := h.hasher.Hash(req.NewPassword)
	if err != nil {
		log.Error("Failed to hash new password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	err = tenantDB.Transaction(func(tx *gorm.DB) error {
		if result := tx.Model(&model.User{}).Where("id = ?", user.ID).Updates(map[string]interface{}{
			"password":   newHash,
			"updated_at": time.Now(),
		}); result.Error != nil {
			return result.Error
		}
		// Force re-login everywhere.
		if result := tx.Delete(&model.Session{}, "user_id = ?", user.ID); result.Error != nil {
			return result.Error
		}
		// Every outstanding code for this identifier, not just the one used.
		return tx.Delete(&model.Verification{}, "identifier = ?", req.Email).Error
	})
	if err != nil {
		log.Error("Password reset transaction failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	ip, userAgent := clientInfo(c)
	audit.LogSecurityEvent(audit.SecurityEvent{
		TenantID:  company.ID,
		UserID:    user.ID,
		Action:    audit.ActionPasswordResetSuccess,
		IPAddress: ip,
		UserAgent: userAgent,
		Details:   map[string]interface{}{"email": req.Email},
	})

	prometheus.RecordPasswordReset("completed")
	log.Info("Password reset completed",
		zap.String("company_id", company.ID),
		zap.String("user_id", user.ID))

	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
