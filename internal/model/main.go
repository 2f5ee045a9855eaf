package model

import (
	"time"
)

// Admin represents a platform operator account stored in the main database
type Admin struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Email     string    `json:"email" gorm:"type:varchar(100);uniqueIndex;not null"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null"`
	Password  string    `json:"-" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at"`
}

// AdminSession represents an admin session row. The token is an opaque
// 256-bit random value delivered to the client as a cookie.
type AdminSession struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	AdminID   string    `json:"admin_id" gorm:"type:varchar(36);index;not null"`
	Token     string    `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// Company represents a registered tenant. Each company owns an isolated
// database file identified by DBPath; IsActive gates dashboard access but
// not authentication.
type Company struct {
	ID           string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name         string    `json:"name" gorm:"type:varchar(100);not null"`
	Slug         string    `json:"slug" gorm:"type:varchar(100);uniqueIndex;not null"`
	DBPath       string    `json:"db_path" gorm:"type:varchar(255);not null"`
	ManagerEmail string    `json:"manager_email" gorm:"type:varchar(100);not null"`
	IsActive     bool      `json:"is_active" gorm:"default:false"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuthLog is the append-only global audit trail for admin and tenant
// authentication events. Rows are never mutated or pruned.
type AuthLog struct {
	ID           string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserType     string    `json:"user_type" gorm:"type:varchar(10);not null"` // "admin" or "tenant"
	UserEmail    string    `json:"user_email" gorm:"type:varchar(100);not null"`
	Action       string    `json:"action" gorm:"type:varchar(50);not null"`
	Success      bool      `json:"success"`
	IPAddress    string    `json:"ip_address" gorm:"type:varchar(45)"`
	UserAgent    string    `json:"user_agent" gorm:"type:varchar(255)"`
	ErrorMessage string    `json:"error_message" gorm:"type:varchar(255)"`
	CompanyID    string    `json:"company_id" gorm:"type:varchar(36);index"`
	CreatedAt    time.Time `json:"created_at"`
}
