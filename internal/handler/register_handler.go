package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mahfaza/internal/model"
	"mahfaza/pkg/config"
	"mahfaza/pkg/database"
	"mahfaza/pkg/logger"
	"mahfaza/pkg/password"
	"mahfaza/prometheus"
)

// RegisterHandler serves public company self-registration.
type RegisterHandler struct {
	cfg    *config.Config
	hasher *password.Hasher
}

func NewRegisterHandler(cfg *config.Config) *RegisterHandler {
	return &RegisterHandler{
		cfg:    cfg,
		hasher: password.NewHasher(cfg.Auth.BcryptCost),
	}
}

// Register creates a company, provisions its isolated store and seeds the
// manager account in a single request.
func (h *RegisterHandler) Register(c echo.Context) error {
	log := logger.FromContext(c)
	prometheus.RegisterCounter.Inc()

	var req struct {
		CompanyName  string `json:"company_name"`
		CompanySlug  string `json:"company_slug"`
		ManagerName  string `json:"manager_name"`
		ManagerEmail string `json:"manager_email"`
		Password     string `json:"password"`
	}
	if err := c.Bind(&req); err != nil {
		prometheus.RecordAuthError("invalid_request")
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	if req.CompanyName == "" || req.CompanySlug == "" || req.ManagerName == "" ||
		req.ManagerEmail == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "all fields are required"})
	}
	if len(req.Password) < 8 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 8 characters"})
	}

	var existing model.Company
	if result := database.GetDB().Where("slug = ?", req.CompanySlug).First(&existing); result.Error == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "company slug already in use"})
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		log.Error("Failed to hash password", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	companyID := uuid.NewString()
	company := model.Company{
		ID:           companyID,
		Name:         req.CompanyName,
		Slug:         req.CompanySlug,
		DBPath:       fmt.Sprintf("tenant_%s.db", companyID),
		ManagerEmail: req.ManagerEmail,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	if result := database.GetDB().Create(&company); result.Error != nil {
		log.Error("Failed to create company", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	tenantDB, err := database.GetTenantDB(companyID)
	if err != nil {
		log.Error("Failed to provision tenant store", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	manager := model.User{
		ID:        uuid.NewString(),
		Name:      req.ManagerName,
		Email:     req.ManagerEmail,
		Password:  hash,
		Role:      "manager",
		CreatedAt: time.Now(),
	}
	if result := tenantDB.Create(&manager); result.Error != nil {
		log.Error("Failed to create manager account", zap.Error(result.Error))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	log.Info("Company registered",
		zap.String("company_id", companyID),
		zap.String("slug", req.CompanySlug))

	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"company_id":   companyID,
		"company_slug": req.CompanySlug,
	})
}
