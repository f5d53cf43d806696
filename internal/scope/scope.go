// Package scope limits queries to the records a user may see.
package scope

import (
	"merchantcrm/internal/models"

	"gorm.io/gorm"
)

// Scope is the visibility of one user. Admins see everything, agents see
// their own book of business and merchant users see their own merchant.
type Scope struct {
	UserID     uint
	Role       string
	AgentID    *uint
	MerchantID *uint
}

func For(u *models.User) Scope {
	return Scope{UserID: u.ID, Role: u.Role, AgentID: u.AgentID, MerchantID: u.MerchantID}
}

func (s Scope) Admin() bool {
	return s.Role == models.RoleAdmin
}

func none(db *gorm.DB) *gorm.DB {
	return db.Where("1 = 0")
}

// Merchants filters a merchants query.
func (s Scope) Merchants(db *gorm.DB) *gorm.DB {
	switch {
	case s.Admin():
		return db
	case s.Role == models.RoleAgent && s.AgentID != nil:
		return db.Where("merchants.agent_id = ?", *s.AgentID)
	case s.Role == models.RoleMerchant && s.MerchantID != nil:
		return db.Where("merchants.id = ?", *s.MerchantID)
	}
	return none(db)
}

// Prospects filters a prospects query. Merchant users have no prospects.
func (s Scope) Prospects(db *gorm.DB) *gorm.DB {
	switch {
	case s.Admin():
		return db
	case s.Role == models.RoleAgent && s.AgentID != nil:
		return db.Where("prospects.agent_id = ?", *s.AgentID)
	}
	return none(db)
}

// Locations filters a locations query by the merchants in scope.
func (s Scope) Locations(db *gorm.DB) *gorm.DB {
	switch {
	case s.Admin():
		return db
	case s.Role == models.RoleAgent && s.AgentID != nil:
		return db.Where("locations.merchant_id IN (?)",
			db.Session(&gorm.Session{NewDB: true}).Model(&models.Merchant{}).Select("id").Where("agent_id = ?", *s.AgentID))
	case s.Role == models.RoleMerchant && s.MerchantID != nil:
		return db.Where("locations.merchant_id = ?", *s.MerchantID)
	}
	return none(db)
}

// Submissions filters a submissions query. Users always see what they
// started themselves.
func (s Scope) Submissions(db *gorm.DB) *gorm.DB {
	switch {
	case s.Admin():
		return db
	case s.Role == models.RoleAgent && s.AgentID != nil:
		return db.Where("pdf_form_submissions.created_by_id = ? OR pdf_form_submissions.merchant_id IN (?)", s.UserID,
			db.Session(&gorm.Session{NewDB: true}).Model(&models.Merchant{}).Select("id").Where("agent_id = ?", *s.AgentID))
	case s.Role == models.RoleMerchant && s.MerchantID != nil:
		return db.Where("pdf_form_submissions.created_by_id = ? OR pdf_form_submissions.merchant_id = ?", s.UserID, *s.MerchantID)
	}
	return db.Where("pdf_form_submissions.created_by_id = ?", s.UserID)
}

// Alerts filters an alerts query to the user's own alerts and the broadcasts
// for their role.
func (s Scope) Alerts(db *gorm.DB) *gorm.DB {
	return db.Where("alerts.user_id = ? OR (alerts.user_id IS NULL AND alerts.role = ?)", s.UserID, s.Role)
}

// OwnsMerchant reports whether merchantID may be attached to new records
// created by this user.
func (s Scope) OwnsMerchant(db *gorm.DB, merchantID uint) (bool, error) {
	var count int64
	err := db.Model(&models.Merchant{}).Scopes(s.Merchants).Where("merchants.id = ?", merchantID).Count(&count).Error
	return count > 0, err
}
