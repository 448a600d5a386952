package models

import (
	"net/url"
	"time"

	"github.com/google/uuid"
)

// DefaultInvitationTTL is how long an invitation stays acceptable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// Invitation grants a role within a company to whoever accepts it.
type Invitation struct {
	ID          uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Email       string           `gorm:"column:email;not null" json:"email"`
	FullName    *string          `gorm:"column:full_name" json:"full_name,omitempty"`
	Role        Role             `gorm:"column:role;not null" json:"role"`
	CompanyID   string           `gorm:"column:company_id;not null" json:"company_id"`
	InviteToken string           `gorm:"column:invite_token;uniqueIndex;not null" json:"-"`
	Status      InvitationStatus `gorm:"column:status;not null;default:'pending'" json:"status"`
	InvitedBy   string           `gorm:"column:invited_by;not null" json:"invited_by"`
	ExpiresAt   time.Time        `gorm:"column:expires_at;not null" json:"expires_at"`
	CreatedAt   time.Time        `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time        `gorm:"column:updated_at" json:"updated_at"`
}

// TableName specifies the table name for the Invitation model
func (Invitation) TableName() string {
	return "invitations"
}

// IsPending reports whether the invitation can still be accepted, ignoring expiry.
func (i *Invitation) IsPending() bool {
	return i.Status == InvitationPending
}

// IsExpired reports whether now is at or past the expiry instant.
func (i *Invitation) IsExpired(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

// AcceptURL builds the link sent to the invitee.
func (i *Invitation) AcceptURL(base string) string {
	return base + "?token=" + url.QueryEscape(i.InviteToken)
}
