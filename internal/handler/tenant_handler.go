package handler

import (
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
	"mahfaza/prometheus"
)

// TenantHandler serves branch and wallet operations inside a tenant store.
// Every operation requires a valid tenant session; mutations additionally
// require the per-tenant CSRF pair.
type TenantHandler struct {
	cfg *config.Config
}

func NewTenantHandler(cfg *config.Config) *TenantHandler {
	return &TenantHandler{cfg: cfg}
}

// guard resolves the tenant and validates the session. Mutating handlers
// pass mutation=true to also enforce the per-tenant CSRF check. On failure
// the response has already been written and guard returns ok=false.
func (h *TenantHandler) guard(c echo.Context, mutation bool) (tenantID string, sess *model.Session, ok bool) {
	tenantID = c.Param("tenantId")
	if tenantID == "" {
		tenantID = extractTenantID(c, "")
	}
	if tenantID == "" {
		c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		return "", nil, false
	}

	sess, err := tenantSessionFromRequest(c, tenantID, h.cfg.Auth.MaxSessionsPerUser)
	if err != nil {
		logger.FromContext(c).Error("Session lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
		return "", nil, false
	}
	if sess == nil {
		ip, userAgent := clientInfo(c)
		audit.LogSecurityEvent(audit.SecurityEvent{
			TenantID:  tenantID,
			Action:    audit.ActionUnauthorizedAccess,
			IPAddress: ip,
			UserAgent: userAgent,
			Details:   map[string]any{"path": c.Request().URL.Path},
		})
		c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		return "", nil, false
	}

	if mutation {
		if !csrf.ValidateTenant(c, tenantID) {
			prometheus.CSRFRejectedCounter.Inc()
			ip, userAgent := clientInfo(c)
			audit.LogSecurityEvent(audit.SecurityEvent{
				TenantID:  tenantID,
				UserID:    sess.UserID,
				Action:    audit.ActionCSRFFailed,
				IPAddress: ip,
				UserAgent: userAgent,
			})
			c.JSON(http.StatusForbidden, echo.Map{"error": "invalid csrf token"})
			return "", nil, false
		}
	}

	return tenantID, sess, true
}

// ListBranches returns every branch in the tenant.
func (h *TenantHandler) ListBranches(c echo.Context) error {
	tenantID, _, ok := h.guard(c, false)
	if !ok {
		return nil
	}

	tenantDB, err := database.GetTenantDB(tenantID)
	if err != nil {
		logger.FromContext(c).Error("Failed to open tenant store", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	var branches []model.Branch
	if result := tenantDB.Order("created_at ASC").Find(&branches); result.Error != nil {
		logger.FromContext(c).Error("Failed to list branches", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch branches"})
	}

	prometheus.RecordTenantOperation("branch_list")
	return c.JSON(http.StatusOK, echo.Map{"branches": branches})
}

// CreateBranch adds a branch to the tenant.
func (h *TenantHandler) CreateBranch(c echo.Context) error {
	tenantID, _, ok := h.guard(c, true)
	if !ok {
		return nil
	}

	var req struct {
		Name      string `json:"name"`
		Location  string `json:"location"`
		ManagerID string `json:"manager_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "branch name is required"})
	}

	tenantDB, err := database.GetTenantDB(tenantID)
	if err != nil {
		logger.FromContext(c).Error("Failed to open tenant store", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	branch := model.Branch{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Location:  req.Location,
		ManagerID: req.ManagerID,
		CreatedAt: time.Now(),
	}
	if result := tenantDB.Create(&branch); result.Error != nil {
		logger.FromContext(c).Error("Failed to create branch", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create branch"})
	}

	prometheus.RecordTenantOperation("branch_create")
	return c.JSON(http.StatusOK, echo.Map{"success": true, "branch": branch})
}

// UpdateBranch modifies a branch's name, location or manager.
func (h *TenantHandler) UpdateBranch(c echo.Context) error {
	tenantID, _, ok := h.guard(c, true)
	if !ok {
		return nil
	}

	branchID := c.Param("branchId")

	var req struct {
		Name      string `json:"name"`
		Location  string `json:"location"`
		ManagerID string `json:"manager_id"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}

	tenantDB, err := database.GetTenantDB(tenantID)
	if err != nil {
		logger.FromContext(c).Error("Failed to open tenant store", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	var branch model.Branch
	if result := tenantDB.Where("id = ?", branchID).First(&branch); result.Error != nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "branch not found"})
	}

	updates := map[string]any{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Location != "" {
		updates["location"] = req.Location
	}
	if req.ManagerID != "" {
		updates["manager_id"] = req.ManagerID
	}
	if len(updates) > 0 {
		if result := tenantDB.Model(&branch).Updates(updates); result.Error != nil {
			logger.FromContext(c).Error("Failed to update branch", zap.Error(result.Error))
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update branch"})
		}
	}

	prometheus.RecordTenantOperation("branch_update")
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// DeleteBranch removes a branch from the tenant.
func (h *TenantHandler) DeleteBranch(c echo.Context) error {
	tenantID, _, ok := h.guard(c, true)
	if !ok {
		return nil
	}

	branchID := c.Param("branchId")

	tenantDB, err := database.GetTenantDB(tenantID)
	if err != nil {
		logger.FromContext(c).Error("Failed to open tenant store", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	result := tenantDB.Where("id = ?", branchID).Delete(&model.Branch{})
	if result.Error != nil {
		logger.FromContext(c).Error("Failed to delete branch", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to delete branch"})
	}
	if result.RowsAffected == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "branch not found"})
	}

	prometheus.RecordTenantOperation("branch_delete")
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// GetWallet returns the caller's wallet, creating it on first access.
func (h *TenantHandler) GetWallet(c echo.Context) error {
	tenantID, sess, ok := h.guard(c, false)
	if !ok {
		return nil
	}

	tenantDB, err := database.GetTenantDB(tenantID)
	if err != nil {
		logger.FromContext(c).Error("Failed to open tenant store", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	wallet, err := findOrCreateWallet(tenantDB, sess.UserID)
	if err != nil {
		logger.FromContext(c).Error("Failed to load wallet", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch wallet"})
	}

	var transactions []model.Transaction
	if result := tenantDB.Where("wallet_id = ?", wallet.ID).
		Order("created_at DESC").Limit(50).Find(&transactions); result.Error != nil {
		logger.FromContext(c).Error("Failed to load transactions", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch wallet"})
	}

	prometheus.RecordTenantOperation("wallet_get")
	return c.JSON(http.StatusOK, echo.Map{"wallet": wallet, "transactions": transactions})
}

// CreateTransaction records a ledger entry and adjusts the wallet balance
// in one transaction.
func (h *TenantHandler) CreateTransaction(c echo.Context) error {
	tenantID, sess, ok := h.guard(c, true)
	if !ok {
		return nil
	}

	var req struct {
		Amount      float64 `json:"amount"`
		Type        string  `json:"type"`
		Description string  `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.Amount <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "amount must be positive"})
	}

	var delta float64
	switch req.Type {
	case "deposit", "transfer_in":
		delta = req.Amount
	case "withdrawal", "transfer_out":
		delta = -req.Amount
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid transaction type"})
	}

	tenantDB, err := database.GetTenantDB(tenantID)
	if err != nil {
		logger.FromContext(c).Error("Failed to open tenant store", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}

	wallet, err := findOrCreateWallet(tenantDB, sess.UserID)
	if err != nil {
		logger.FromContext(c).Error("Failed to load wallet", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transaction failed"})
	}

	if delta < 0 && wallet.Balance+delta < 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "insufficient balance"})
	}

	entry := model.Transaction{
		ID:          uuid.NewString(),
		WalletID:    wallet.ID,
		Amount:      req.Amount,
		Type:        req.Type,
		Description: req.Description,
		CreatedAt:   time.Now(),
	}

	err = tenantDB.Transaction(func(tx *gorm.DB) error {
		if result := tx.Create(&entry); result.Error != nil {
			return result.Error
		}
		if result := tx.Model(&model.Wallet{}).Where("id = ?", wallet.ID).
			Update("balance", gorm.Expr("balance + ?", delta)); result.Error != nil {
			return result.Error
		}
		return nil
	})
	if err != nil {
		logger.FromContext(c).Error("Transaction failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "transaction failed"})
	}

	prometheus.RecordTenantOperation("wallet_transaction")
	return c.JSON(http.StatusOK, echo.Map{
		"success":     true,
		"transaction": entry,
		"balance":     wallet.Balance + delta,
	})
}

func findOrCreateWallet(tenantDB *gorm.DB, userID string) (*model.Wallet, error) {
	var wallet model.Wallet
	result := tenantDB.Where("user_id = ?", userID).First(&wallet)
	if result.Error == nil {
		return &wallet, nil
	}
	if result.Error != gorm.ErrRecordNotFound {
		return nil, result.Error
	}

	wallet = model.Wallet{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: time.Now(),
	}
	if result := tenantDB.Create(&wallet); result.Error != nil {
		return nil, result.Error
	}
	return &wallet, nil
}
