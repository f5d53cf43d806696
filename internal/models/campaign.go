package models

import (
	"errors"
	"time"
)

// Pricing types.
const (
	PricingInterchangePlus = "interchange_plus"
	PricingTiered          = "tiered"
	PricingFlatRate        = "flat_rate"
)

// Campaign is a pricing offer, usually tied to an acquirer.
// Rates are in basis points, fees in cents.
type Campaign struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	Name                string     `gorm:"type:varchar(255);not null" json:"name"`
	Description         string     `gorm:"type:text" json:"description"`
	AcquirerID          *uint      `gorm:"index" json:"acquirer_id"`
	PricingType         string     `gorm:"type:varchar(32);not null" json:"pricing_type"`
	DiscountRateBps     int        `gorm:"not null;default:0" json:"discount_rate_bps"`
	PerTransactionCents int        `gorm:"not null;default:0" json:"per_transaction_cents"`
	MonthlyFeeCents     int        `gorm:"not null;default:0" json:"monthly_fee_cents"`
	QualifiedRateBps    int        `gorm:"not null;default:0" json:"qualified_rate_bps"`
	MidQualifiedRateBps int        `gorm:"not null;default:0" json:"mid_qualified_rate_bps"`
	NonQualifiedRateBps int        `gorm:"not null;default:0" json:"non_qualified_rate_bps"`
	Active              bool       `gorm:"not null" json:"active"`
	StartsAt            *time.Time `json:"starts_at"`
	EndsAt              *time.Time `json:"ends_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// ValidatePricing checks the rate fields required by the pricing type.
func (c *Campaign) ValidatePricing() error {
	if c.DiscountRateBps < 0 || c.PerTransactionCents < 0 || c.MonthlyFeeCents < 0 ||
		c.QualifiedRateBps < 0 || c.MidQualifiedRateBps < 0 || c.NonQualifiedRateBps < 0 {
		return errors.New("rates and fees cannot be negative")
	}

	switch c.PricingType {
	case PricingInterchangePlus, PricingFlatRate:
		if c.DiscountRateBps == 0 && c.PerTransactionCents == 0 {
			return errors.New("a discount rate or per-transaction fee is required")
		}
	case PricingTiered:
		if c.QualifiedRateBps == 0 {
			return errors.New("tiered pricing requires a qualified rate")
		}
		if c.MidQualifiedRateBps < c.QualifiedRateBps || c.NonQualifiedRateBps < c.MidQualifiedRateBps {
			return errors.New("tiered rates must not decrease from qualified to non-qualified")
		}
	default:
		return errors.New("unknown pricing type")
	}
	return nil
}

// ValidateWindow checks that the date window is not empty.
func (c *Campaign) ValidateWindow() error {
	if c.StartsAt != nil && c.EndsAt != nil && !c.EndsAt.After(*c.StartsAt) {
		return errors.New("campaign must end after it starts")
	}
	return nil
}

// LiveAt reports whether the campaign is active and inside its date window.
func (c *Campaign) LiveAt(now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return false
	}
	if c.EndsAt != nil && !now.Before(*c.EndsAt) {
		return false
	}
	return true
}
