// Package models holds the typed records persisted by flowdesk. Column names
// are snake_case in the store and mapped through gorm tags; JSON names follow
// the same convention for the HTTP API.
package models

// Custom types to match the check constraints in the migrations
type Role string
type EntryStatus string
type AccessLevel string
type InvitationStatus string
type ChangeType string
type PermissionType string

const (
	// Roles
	RoleAdmin       Role = "admin"
	RoleManager     Role = "manager"
	RoleGeneralUser Role = "general-user"

	// Directory entry status
	EntryActive    EntryStatus = "active"
	EntrySuspended EntryStatus = "suspended"

	// Workflow sharing scope
	AccessUser       AccessLevel = "user"
	AccessDepartment AccessLevel = "department"
	AccessCompany    AccessLevel = "company"

	// Invitation status
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"

	// Workflow history change types
	ChangeCreate            ChangeType = "create"
	ChangeUpdate            ChangeType = "update"
	ChangeDelete            ChangeType = "delete"
	ChangeUpdateAccessLevel ChangeType = "update_access_level"

	// Collaborator permissions
	PermissionView PermissionType = "view"
	PermissionEdit PermissionType = "edit"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleGeneralUser:
		return true
	}
	return false
}

func (s EntryStatus) Valid() bool {
	return s == EntryActive || s == EntrySuspended
}

func (l AccessLevel) Valid() bool {
	switch l {
	case AccessUser, AccessDepartment, AccessCompany:
		return true
	}
	return false
}

func (p PermissionType) Valid() bool {
	return p == PermissionView || p == PermissionEdit
}
