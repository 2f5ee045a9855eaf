// Package audit records security-relevant events. Writes are best-effort:
// a failed audit write is logged and never aborts the primary flow.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mahfaza/internal/model"
	"mahfaza/pkg/database"
	"mahfaza/pkg/logger"
)

// Security event actions recorded in tenant stores.
const (
	ActionLoginSuccess         = "LOGIN_SUCCESS"
	ActionLoginFailed          = "LOGIN_FAILED"
	ActionLogout               = "LOGOUT"
	ActionPasswordResetRequest = "PASSWORD_RESET_REQUEST"
	ActionPasswordResetSuccess = "PASSWORD_RESET_SUCCESS"
	ActionSessionRegenerated   = "SESSION_REGENERATED"
	ActionSessionExpired       = "SESSION_EXPIRED"
	ActionCSRFFailed           = "CSRF_VALIDATION_FAILED"
	ActionUnauthorizedAccess   = "UNAUTHORIZED_ACCESS"
)

// SecurityEvent describes one tenant-scoped security log entry.
type SecurityEvent struct {
	TenantID  string
	UserID    string
	Action    string
	IPAddress string
	UserAgent string
	Details   map[string]interface{}
}

// LogSecurityEvent appends an event to the tenant's security log.
func LogSecurityEvent(ev SecurityEvent) {
	log := logger.GetLogger()

	db, err := database.GetTenantDB(ev.TenantID)
	if err != nil {
		log.Warn("Failed to open tenant store for security log",
			zap.String("tenant_id", ev.TenantID), zap.Error(err))
		return
	}

	var details string
	if ev.Details != nil {
		if raw, err := json.Marshal(ev.Details); err == nil {
			details = string(raw)
		}
	}

	entry := model.SecurityLog{
		ID:        uuid.NewString(),
		UserID:    ev.UserID,
		Action:    ev.Action,
		IPAddress: ev.IPAddress,
		UserAgent: ev.UserAgent,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if result := db.Create(&entry); result.Error != nil {
		log.Warn("Failed to write security log entry",
			zap.String("tenant_id", ev.TenantID),
			zap.String("action", ev.Action),
			zap.Error(result.Error))
	}
}

// AuthEvent describes one entry in the global audit trail.
type AuthEvent struct {
	UserType     string // "admin" or "tenant"
	UserEmail    string
	Action       string // login, logout, failed_login, password_reset_request, password_reset
	Success      bool
	IPAddress    string
	UserAgent    string
	ErrorMessage string
	CompanyID    string
}

// LogAuthEvent appends an event to the global auth log in the main store.
func LogAuthEvent(ev AuthEvent) {
	entry := model.AuthLog{
		ID:           uuid.NewString(),
		UserType:     ev.UserType,
		UserEmail:    ev.UserEmail,
		Action:       ev.Action,
		Success:      ev.Success,
		IPAddress:    ev.IPAddress,
		UserAgent:    ev.UserAgent,
		ErrorMessage: ev.ErrorMessage,
		CompanyID:    ev.CompanyID,
		CreatedAt:    time.Now(),
	}
	if result := database.GetDB().Create(&entry); result.Error != nil {
		logger.GetLogger().Warn("Failed to write auth log entry",
			zap.String("action", ev.Action), zap.Error(result.Error))
	}
}
