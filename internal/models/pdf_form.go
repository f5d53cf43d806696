package models

import "time"

// PDF form statuses.
const (
	FormStatusDraft     = "draft"
	FormStatusPublished = "published"
	FormStatusArchived  = "archived"
)

// Field types rendered by the wizard.
const (
	FieldText     = "text"
	FieldTextarea = "textarea"
	FieldEmail    = "email"
	FieldPhone    = "phone"
	FieldNumber   = "number"
	FieldDate     = "date"
	FieldCheckbox = "checkbox"
	FieldSelect   = "select"
	FieldRadio    = "radio"
)

// Submission statuses.
const (
	SubmissionDraft     = "draft"
	SubmissionSubmitted = "submitted"
	SubmissionApproved  = "approved"
	SubmissionRejected  = "rejected"
)

// PdfForm is an uploaded application PDF (e.g. an acquirer's MPA) whose
// AcroForm fields drive a wizard.
type PdfForm struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"type:varchar(255);not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	AcquirerID  *uint          `gorm:"index" json:"acquirer_id"`
	FileName    string         `gorm:"type:varchar(255);not null" json:"file_name"`
	FileSize    int            `gorm:"not null" json:"file_size"`
	Checksum    string         `gorm:"type:varchar(64);uniqueIndex;not null" json:"checksum"`
	FileData    []byte         `gorm:"not null" json:"-"`
	Status      string         `gorm:"type:varchar(20);not null;default:draft" json:"status"`
	Fields      []PdfFormField `gorm:"constraint:OnDelete:CASCADE" json:"fields,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type PdfFormField struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	PdfFormID    uint      `gorm:"uniqueIndex:idx_form_field_name;not null" json:"pdf_form_id"`
	Name         string    `gorm:"type:varchar(255);uniqueIndex:idx_form_field_name;not null" json:"name"`
	Label        string    `gorm:"type:varchar(255)" json:"label"`
	FieldType    string    `gorm:"type:varchar(20);not null" json:"field_type"`
	Step         int       `gorm:"not null;default:1" json:"step"`
	Position     int       `gorm:"not null;default:0" json:"position"`
	Page         int       `gorm:"not null;default:1" json:"page"`
	Required     bool      `gorm:"not null;default:false" json:"required"`
	Options      Strings   `gorm:"type:text" json:"options,omitempty"`
	Rules        string    `gorm:"type:varchar(255)" json:"rules,omitempty"`
	Placeholder  string    `gorm:"type:varchar(255)" json:"placeholder,omitempty"`
	DefaultValue string    `gorm:"type:varchar(255)" json:"default_value,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type PdfFormSubmission struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	PdfFormID   uint       `gorm:"index;not null" json:"pdf_form_id"`
	MerchantID  *uint      `gorm:"index" json:"merchant_id"`
	ProspectID  *uint      `gorm:"index" json:"prospect_id"`
	CreatedByID uint       `gorm:"index;not null" json:"created_by_id"`
	Status      string     `gorm:"type:varchar(20);index;not null;default:draft" json:"status"`
	CurrentStep int        `gorm:"not null;default:1" json:"current_step"`
	Data        JSONMap    `gorm:"type:text" json:"data"`
	Version     int        `gorm:"not null;default:1" json:"version"`
	LastSavedAt *time.Time `json:"last_saved_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	ReviewNote  string     `gorm:"type:text" json:"review_note,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
