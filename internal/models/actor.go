package models

// AnonymousUserID is recorded as the creator of workflows created without an
// authenticated identity. It keeps created_by non-null.
const AnonymousUserID = "00000000-0000-0000-0000-000000000000"

// Actor is the identity performing an operation, resolved by the HTTP layer
// and passed by value into every manager call. The zero value is anonymous.
type Actor struct {
	UserID     string
	Email      string
	FullName   string
	Role       Role
	CompanyID  string
	Department string
}

// Authenticated reports whether the actor carries an identity.
func (a Actor) Authenticated() bool {
	return a.UserID != ""
}

func (a Actor) IsAdmin() bool   { return a.Role == RoleAdmin }
func (a Actor) IsManager() bool { return a.Role == RoleManager }

// InCompany reports whether the actor belongs to companyID.
func (a Actor) InCompany(companyID string) bool {
	return a.CompanyID != "" && a.CompanyID == companyID
}

// ActorFromEntry builds an actor from a directory entry. Suspended entries keep
// their identity but lose their company, so every company-scoped check fails.
func ActorFromEntry(e *DirectoryEntry) Actor {
	a := Actor{
		UserID:     e.ID,
		Email:      e.Email,
		FullName:   e.FullName,
		Role:       e.Role,
		CompanyID:  e.CompanyID,
		Department: e.Department,
	}
	if !e.IsActive() {
		a.CompanyID = ""
	}
	return a
}
