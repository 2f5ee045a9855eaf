package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"mahfaza/internal/model"
	"mahfaza/pkg/config"
	"mahfaza/pkg/database"
	"mahfaza/pkg/logger"
	"mahfaza/pkg/session"
	"mahfaza/prometheus"
)

// CleanupHandler serves the scheduled sweep endpoint. It is gated by a
// shared bearer secret rather than a session so an external cron can call
// it.
type CleanupHandler struct {
	cfg *config.Config
}

func NewCleanupHandler(cfg *config.Config) *CleanupHandler {
	return &CleanupHandler{cfg: cfg}
}

// Sweep deletes expired admin sessions, then walks every company deleting
// expired tenant sessions and verification codes. A failure in one tenant
// is logged and skipped so the remaining tenants are still swept.
func (h *CleanupHandler) Sweep(c echo.Context) error {
	log := logger.FromContext(c)

	auth := c.Request().Header.Get("Authorization")
	if h.cfg.Cleanup.Secret == "" || auth != "Bearer "+h.cfg.Cleanup.Secret {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	now := time.Now()
	var deleted int64

	n, err := session.NewAdminStore(database.GetDB()).DeleteExpired(now)
	if err != nil {
		log.Error("Failed to sweep admin sessions", zap.Error(err))
	} else {
		deleted += n
	}

	companies, err := database.AllCompanies()
	if err != nil {
		log.Error("Failed to list companies for sweep", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cleanup failed"})
	}

	for _, company := range companies {
		tenantDB, err := database.GetTenantDB(company.ID)
		if err != nil {
			log.Warn("Skipping tenant during sweep",
				zap.String("company_id", company.ID), zap.Error(err))
			continue
		}

		n, err := session.NewStore(tenantDB, h.cfg.Auth.MaxSessionsPerUser).DeleteExpired(now)
		if err != nil {
			log.Warn("Failed to sweep tenant sessions",
				zap.String("company_id", company.ID), zap.Error(err))
		} else {
			deleted += n
		}

		result := tenantDB.Where("expires_at <= ?", now).Delete(&model.Verification{})
		if result.Error != nil {
			log.Warn("Failed to sweep verification codes",
				zap.String("company_id", company.ID), zap.Error(result.Error))
		} else {
			deleted += result.RowsAffected
		}
	}

	prometheus.SweptSessionsGauge.Set(float64(deleted))
	log.Info("Cleanup sweep finished",
		zap.Int64("deleted", deleted),
		zap.Int("companies", len(companies)))

	return c.JSON(http.StatusOK, echo.Map{
		"success":       true,
		"deleted_count": deleted,
		"timestamp":     now.UTC().Format(time.RFC3339),
	})
}
