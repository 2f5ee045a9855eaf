package model

import (
	"time"
)

// User represents an employee or manager account scoped to a single tenant
// database. Email uniqueness holds only within the tenant.
type User struct {
	ID            string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name          string    `json:"name" gorm:"type:varchar(100);not null"`
	Email         string    `json:"email" gorm:"type:varchar(100);uniqueIndex;not null"`
	EmailVerified bool      `json:"email_verified" gorm:"default:false"`
	Password      string    `json:"-" gorm:"type:varchar(255)"`
	Role          string    `json:"role" gorm:"type:varchar(20);default:'employee'"` // "manager" or "employee"
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Session represents a tenant user session. A user holds at most five
// unexpired sessions; the oldest are evicted on login.
type Session struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Token     string    `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);index;not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	IPAddress string    `json:"ip_address" gorm:"type:varchar(45)"`
	UserAgent string    `json:"user_agent" gorm:"type:varchar(255)"`
}

// Verification holds a one-time password reset code keyed by email.
// Codes are deleted in bulk when a reset completes; several codes may be
// outstanding for the same identifier.
type Verification struct {
	ID         string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Identifier string    `json:"identifier" gorm:"type:varchar(100);index;not null"`
	Value      string    `json:"value" gorm:"type:varchar(10);not null"`
	ExpiresAt  time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SecurityLog is the tenant-scoped append-only security event trail.
type SecurityLog struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36);index"`
	Action    string    `json:"action" gorm:"type:varchar(50);not null"`
	IPAddress string    `json:"ip_address" gorm:"type:varchar(45)"`
	UserAgent string    `json:"user_agent" gorm:"type:varchar(255)"`
	Details   string    `json:"details" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}

// Branch represents a company branch
type Branch struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null"`
	Location  string    `json:"location" gorm:"type:varchar(255)"`
	ManagerID string    `json:"manager_id" gorm:"type:varchar(36)"`
	CreatedAt time.Time `json:"created_at"`
}

// Wallet holds a running balance updated by transactions
type Wallet struct {
	ID        string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	UserID    string    `json:"user_id" gorm:"type:varchar(36)"`
	BranchID  string    `json:"branch_id" gorm:"type:varchar(36)"`
	Balance   float64   `json:"balance" gorm:"default:0"`
	CreatedAt time.Time `json:"created_at"`
}

// Transaction is a single ledger entry against a wallet
type Transaction struct {
	ID          string    `json:"id" gorm:"type:varchar(36);primaryKey"`
	WalletID    string    `json:"wallet_id" gorm:"type:varchar(36);index;not null"`
	Amount      float64   `json:"amount" gorm:"not null"`
	Type        string    `json:"type" gorm:"type:varchar(20);not null"` // deposit, withdrawal, transfer_in, transfer_out
	Description string    `json:"description" gorm:"type:varchar(255)"`
	CreatedAt   time.Time `json:"created_at"`
}
