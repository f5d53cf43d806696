package models

import "time"

// Alert severities.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is addressed either to a single user or, with UserID unset, to every
// user holding Role.
type Alert struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	UserID     *uint      `gorm:"index" json:"user_id"`
	Role       string     `gorm:"type:varchar(20);index" json:"role,omitempty"`
	Severity   string     `gorm:"type:varchar(20);not null;default:info" json:"severity"`
	Title      string     `gorm:"type:varchar(255);not null" json:"title"`
	Message    string     `gorm:"type:text" json:"message"`
	Link       string     `gorm:"type:varchar(512)" json:"link,omitempty"`
	EntityType string     `gorm:"type:varchar(50)" json:"entity_type,omitempty"`
	EntityID   *uint      `json:"entity_id,omitempty"`
	ReadAt     *time.Time `json:"read_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

type DashboardWidgetPreference struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_widget_pref_user_key;not null" json:"user_id"`
	WidgetKey string    `gorm:"type:varchar(64);uniqueIndex:idx_widget_pref_user_key;not null" json:"widget_key"`
	Position  int       `gorm:"not null" json:"position"`
	Visible   bool      `gorm:"not null" json:"visible"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
