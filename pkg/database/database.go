package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mahfaza/internal/model"
	"mahfaza/pkg/config"
)

// ErrCompanyNotFound is returned when no company matches a slug or id.
var ErrCompanyNotFound = errors.New("company not found")

var (
	mainDB   *gorm.DB
	dataDir  string
	logLevel logger.LogLevel

	// Tenant handles are cached process-wide, keyed by company id. The
	// handle itself is the tenant boundary: no query path ever reaches a
	// tenant's rows except through that tenant's own *gorm.DB.
	tenantMu  sync.Mutex
	tenantDBs map[string]*gorm.DB
)

// Init opens the main database under cfg.Dir, runs migrations for the
// platform-level models and resets the tenant handle cache.
func Init(cfg *config.DataConfig) error {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(cfg.Dir, "main.db")), &gorm.Config{
		Logger: logger.Default.LogMode(cfg.LogLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to open main database: %w", err)
	}

	if err := db.AutoMigrate(
		&model.Admin{},
		&model.AdminSession{},
		&model.Company{},
		&model.AuthLog{},
	); err != nil {
		return fmt.Errorf("failed to run main database migrations: %w", err)
	}

	tenantMu.Lock()
	defer tenantMu.Unlock()
	mainDB = db
	dataDir = cfg.Dir
	logLevel = cfg.LogLevel
	tenantDBs = make(map[string]*gorm.DB)

	return nil
}

// GetDB returns the main database instance
func GetDB() *gorm.DB {
	return mainDB
}

// GetTenantDB returns the isolated database handle for a company, lazily
// creating the file and its schema on first use. Safe to call concurrently;
// repeated calls for the same id return the same handle.
func GetTenantDB(companyID string) (*gorm.DB, error) {
	tenantMu.Lock()
	defer tenantMu.Unlock()

	if db, ok := tenantDBs[companyID]; ok {
		return db, nil
	}

	path := filepath.Join(dataDir, fmt.Sprintf("tenant_%s.db", companyID))
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open tenant database %s: %w", companyID, err)
	}

	// AutoMigrate is idempotent, so a racing second open is harmless.
	if err := db.AutoMigrate(
		&model.User{},
		&model.Session{},
		&model.Verification{},
		&model.SecurityLog{},
		&model.Branch{},
		&model.Wallet{},
		&model.Transaction{},
	); err != nil {
		return nil, fmt.Errorf("failed to run tenant database migrations: %w", err)
	}

	tenantDBs[companyID] = db
	return db, nil
}

// GetCompanyBySlugOrID looks a company up by exact slug or exact id match.
// Callers cannot tell which of the two matched.
func GetCompanyBySlugOrID(slugOrID string) (*model.Company, error) {
	var company model.Company
	result := mainDB.Where("slug = ? OR id = ?", slugOrID, slugOrID).First(&company)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrCompanyNotFound
		}
		return nil, result.Error
	}
	return &company, nil
}

// AllCompanies returns every registered company.
func AllCompanies() ([]model.Company, error) {
	var companies []model.Company
	if result := mainDB.Find(&companies); result.Error != nil {
		return nil, result.Error
	}
	return companies, nil
}
