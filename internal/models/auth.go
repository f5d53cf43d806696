package models

import "time"

// Session is a server-side login; the cookie token only carries its ID.
type Session struct {
	ID        string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	IPAddress string     `gorm:"type:varchar(64)" json:"ip_address"`
	UserAgent string     `gorm:"type:varchar(512)" json:"user_agent"`
	ExpiresAt time.Time  `gorm:"index;not null" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (s *Session) Valid(now time.Time) bool {
	return s.RevokedAt == nil && now.Before(s.ExpiresAt)
}

type LoginAttempt struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    *uint     `gorm:"index"`
	Email     string    `gorm:"type:varchar(255);index"`
	IPAddress string    `gorm:"type:varchar(64)"`
	Success   bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"index"`
}

// TwoFactorChallenge is a pending login waiting for an emailed code.
type TwoFactorChallenge struct {
	ID         string    `gorm:"type:varchar(36);primaryKey"`
	UserID     uint      `gorm:"index;not null"`
	CodeHash   string    `gorm:"type:varchar(64);not null"`
	IPAddress  string    `gorm:"type:varchar(64)"`
	UserAgent  string    `gorm:"type:varchar(512)"`
	Attempts   int       `gorm:"not null;default:0"`
	ExpiresAt  time.Time `gorm:"index;not null"`
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

type PasswordReset struct {
	ID        uint      `gorm:"primaryKey"`
	UserID    uint      `gorm:"index;not null"`
	TokenHash string    `gorm:"type:varchar(64);uniqueIndex;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	UsedAt    *time.Time
	CreatedAt time.Time
}
