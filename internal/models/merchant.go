package models

import "time"

// Merchant statuses.
const (
	MerchantStatusPending   = "pending"
	MerchantStatusActive    = "active"
	MerchantStatusSuspended = "suspended"
	MerchantStatusClosed    = "closed"
)

var merchantTransitions = map[string][]string{
	MerchantStatusPending:   {MerchantStatusActive, MerchantStatusClosed},
	MerchantStatusActive:    {MerchantStatusSuspended, MerchantStatusClosed},
	MerchantStatusSuspended: {MerchantStatusActive, MerchantStatusClosed},
}

// CanTransition reports whether a merchant may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range merchantTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Merchant struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	LegalName  string     `gorm:"type:varchar(255);not null" json:"legal_name"`
	DBAName    string     `gorm:"column:dba_name;type:varchar(255)" json:"dba_name"`
	Email      string     `gorm:"type:varchar(255)" json:"email"`
	Phone      string     `gorm:"type:varchar(32)" json:"phone"`
	TaxID      string     `gorm:"type:varchar(32)" json:"tax_id"`
	Status     string     `gorm:"type:varchar(20);index;not null;default:pending" json:"status"`
	AgentID    *uint      `gorm:"index" json:"agent_id"`
	AcquirerID *uint      `gorm:"index" json:"acquirer_id"`
	CampaignID *uint      `gorm:"index" json:"campaign_id"`
	ProspectID *uint      `gorm:"index" json:"prospect_id,omitempty"`
	Agent      *Agent     `json:"agent,omitempty"`
	Acquirer   *Acquirer  `json:"acquirer,omitempty"`
	Campaign   *Campaign  `json:"campaign,omitempty"`
	Locations  []Location `gorm:"constraint:OnDelete:CASCADE" json:"locations,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

func (Merchant) TableName() string {
	return "merchants"
}

// Location statuses.
const (
	LocationStatusActive   = "active"
	LocationStatusInactive = "inactive"
)

// Location is a business site of a merchant; each one carries its own MID.
type Location struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	MerchantID uint      `gorm:"index;not null" json:"merchant_id"`
	Name       string    `gorm:"type:varchar(255);not null" json:"name"`
	MID        *string   `gorm:"column:mid;type:varchar(32);uniqueIndex" json:"mid"`
	Status     string    `gorm:"type:varchar(20);not null;default:active" json:"status"`
	AddressID  *uint     `json:"address_id"`
	Address    *Address  `gorm:"constraint:OnDelete:SET NULL" json:"address,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Address struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Street1    string    `gorm:"type:varchar(255)" json:"street1"`
	Street2    string    `gorm:"type:varchar(255)" json:"street2"`
	City       string    `gorm:"type:varchar(100)" json:"city"`
	State      string    `gorm:"type:varchar(50)" json:"state"`
	PostalCode string    `gorm:"type:varchar(20)" json:"postal_code"`
	Country    string    `gorm:"type:varchar(2);not null;default:US" json:"country"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
