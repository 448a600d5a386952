package models

import (
	"time"

	"github.com/google/uuid"
)

// TextTemplate is a company-scoped reusable text snippet. The body lives in
// blob storage under BlobKey; ContentHash is the sha256 of the plaintext body.
type TextTemplate struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CompanyID   string    `gorm:"column:company_id;not null" json:"company_id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	Category    string    `gorm:"column:category;not null;default:''" json:"category"`
	BlobKey     string    `gorm:"column:blob_key;not null" json:"-"`
	ContentHash string    `gorm:"column:content_hash;not null" json:"content_hash"`
	Size        int64     `gorm:"column:size;not null" json:"size"`
	Version     int       `gorm:"column:version;not null;default:1" json:"version"`
	CreatedBy   string    `gorm:"column:created_by;not null" json:"created_by"`
	UpdatedBy   string    `gorm:"column:updated_by;not null" json:"updated_by"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for the TextTemplate model
func (TextTemplate) TableName() string {
	return "text_templates"
}
