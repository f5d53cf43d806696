package models

import (
	"strings"
	"time"
)

// Roles.
const (
	RoleAdmin    = "admin"
	RoleAgent    = "agent"
	RoleMerchant = "merchant"
)

// User statuses.
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// Roles lists every role a user can hold.
var Roles = []string{RoleAdmin, RoleAgent, RoleMerchant}

// ValidRole reports whether role is one of Roles.
func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Email            string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash     string     `gorm:"type:varchar(255);not null" json:"-"`
	FirstName        string     `gorm:"type:varchar(100)" json:"first_name"`
	LastName         string     `gorm:"type:varchar(100)" json:"last_name"`
	Role             string     `gorm:"type:varchar(20);index;not null" json:"role"`
	Status           string     `gorm:"type:varchar(20);not null;default:active" json:"status"`
	TwoFactorEnabled bool       `gorm:"not null;default:false" json:"two_factor_enabled"`
	LastLoginIP      string     `gorm:"type:varchar(64)" json:"last_login_ip,omitempty"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	LockoutClearedAt *time.Time `json:"-"`
	AgentID          *uint      `gorm:"index" json:"agent_id,omitempty"`
	MerchantID       *uint      `gorm:"index" json:"merchant_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// NormalizeEmail lowercases and trims an address before lookups and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) Active() bool {
	return u.Status == UserStatusActive
}
