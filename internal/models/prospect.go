package models

import "time"

// Prospect statuses.
const (
	ProspectStatusNew       = "new"
	ProspectStatusContacted = "contacted"
	ProspectStatusQualified = "qualified"
	ProspectStatusConverted = "converted"
	ProspectStatusLost      = "lost"
)

// Prospect is a lead that has not become a merchant yet.
type Prospect struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	BusinessName        string    `gorm:"type:varchar(255);not null" json:"business_name"`
	ContactName         string    `gorm:"type:varchar(255)" json:"contact_name"`
	Email               string    `gorm:"type:varchar(255);index" json:"email"`
	Phone               string    `gorm:"type:varchar(32)" json:"phone"`
	Source              string    `gorm:"type:varchar(64)" json:"source"`
	Status              string    `gorm:"type:varchar(20);index;not null;default:new" json:"status"`
	Notes               string    `gorm:"type:text" json:"notes"`
	AgentID             *uint     `gorm:"index" json:"agent_id"`
	ConvertedMerchantID *uint     `json:"converted_merchant_id,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (p *Prospect) Converted() bool {
	return p.ConvertedMerchantID != nil || p.Status == ProspectStatusConverted
}
