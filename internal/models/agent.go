package models

import "time"

// Agent statuses.
const (
	AgentStatusActive   = "active"
	AgentStatusInactive = "inactive"
)

// Agent is an independent sales representative who brings in merchants.
type Agent struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	FirstName       string    `gorm:"type:varchar(100);not null" json:"first_name"`
	LastName        string    `gorm:"type:varchar(100);not null" json:"last_name"`
	Email           string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Phone           string    `gorm:"type:varchar(32)" json:"phone"`
	Status          string    `gorm:"type:varchar(20);not null;default:active" json:"status"`
	CommissionSplit float64   `gorm:"not null;default:0" json:"commission_split"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Acquirer struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	Code         string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"code"`
	Active       bool      `gorm:"not null" json:"active"`
	SupportEmail string    `gorm:"type:varchar(255)" json:"support_email"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
