package models

import (
	"time"

	"github.com/google/uuid"
)

// Company is a tenant. Every other record is scoped by CompanyID.
type Company struct {
	ID        string    `gorm:"primaryKey;column:id" json:"id"`
	Name      string    `gorm:"column:name;not null" json:"name"`
	CreatedBy string    `gorm:"column:created_by;not null" json:"created_by"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName specifies the table name for the Company model
func (Company) TableName() string {
	return "companies"
}

// DirectoryEntry is a user's profile: display name, role and company.
// ID is the authentication uid ("<provider>:<provider user id>").
type DirectoryEntry struct {
	ID         string      `gorm:"primaryKey;column:id" json:"id"`
	Email      string      `gorm:"column:email;not null;default:''" json:"email"`
	FullName   string      `gorm:"column:full_name;not null;default:''" json:"full_name"`
	Role       Role        `gorm:"column:role;not null;default:'general-user'" json:"role"`
	CompanyID  string      `gorm:"column:company_id;not null;default:''" json:"company_id"`
	Department string      `gorm:"column:department;not null;default:''" json:"department"`
	Status     EntryStatus `gorm:"column:status;not null;default:'active'" json:"status"`
	CreatedAt  time.Time   `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time   `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for the DirectoryEntry model
func (DirectoryEntry) TableName() string {
	return "directory_entries"
}

// IsActive checks if the entry may act on company data
func (e *DirectoryEntry) IsActive() bool {
	return e.Status == EntryActive
}

// Collaborator grants a user permission on a single workflow.
type Collaborator struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	WorkflowID     uuid.UUID      `gorm:"type:uuid;column:workflow_id;not null" json:"workflow_id"`
	UserID         string         `gorm:"column:user_id;not null" json:"user_id"`
	PermissionType PermissionType `gorm:"column:permission_type;not null;default:'edit'" json:"permission_type"`
	FullName       string         `gorm:"column:full_name;not null;default:''" json:"full_name"`
	AddedAt        time.Time      `gorm:"column:added_at;not null" json:"added_at"`
	AddedBy        *string        `gorm:"column:added_by" json:"added_by,omitempty"`
}

// TableName specifies the table name for the Collaborator model
func (Collaborator) TableName() string {
	return "workflow_collaborators"
}
