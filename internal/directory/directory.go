// Package directory manages companies and their employee roster.
package directory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"flowdesk/internal/apperr"
	"flowdesk/internal/database"
	"flowdesk/internal/logging"
	"flowdesk/internal/models"
)

type Manager struct {
	db  database.Gateway
	log logging.Logger
	now func() time.Time
}

func New(db database.Gateway, log logging.Logger) *Manager {
	return &Manager{db: db, log: log, now: time.Now}
}

// Identity is what the login provider tells us about a user.
type Identity struct {
	ID       string
	Email    string
	FullName string
}

// EnsureIdentity creates the directory entry for a freshly authenticated
// user, or refreshes its email and name. Role and company are left alone.
func (m *Manager) EnsureIdentity(ctx context.Context, id Identity) (*models.DirectoryEntry, error) {
	id.ID = strings.TrimSpace(id.ID)
	if id.ID == "" {
		return nil, apperr.Validation("identity id is required")
	}
	email := strings.ToLower(strings.TrimSpace(id.Email))
	name := strings.TrimSpace(id.FullName)
	now := m.now().UTC()

	var entry *models.DirectoryEntry
	err := m.db.Transaction(ctx, func(tx database.Gateway) error {
		existing, err := tx.Directory().Get(ctx, id.ID)
		if errors.Is(err, apperr.ErrNotFound) {
			entry = &models.DirectoryEntry{
				ID:        id.ID,
				Email:     email,
				FullName:  name,
				Role:      models.RoleGeneralUser,
				Status:    models.EntryActive,
				CreatedAt: now,
				UpdatedAt: now,
			}
			return tx.Directory().Create(ctx, entry)
		}
		if err != nil {
			return err
		}

		entry = existing
		changed := false
		if email != "" && email != entry.Email {
			entry.Email = email
			changed = true
		}
		// Lazily created entries carry the user id as their name.
		if name != "" && (entry.FullName == "" || entry.FullName == entry.ID) {
			entry.FullName = name
			changed = true
		}
		if !changed {
			return nil
		}
		entry.UpdatedAt = now
		return tx.Directory().Update(ctx, entry)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Me returns the actor's own directory entry.
func (m *Manager) Me(ctx context.Context, actor models.Actor) (*models.DirectoryEntry, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated("authentication required")
	}
	return m.db.Directory().Get(ctx, actor.UserID)
}

// RegisterCompany creates a company and makes the actor its first admin.
func (m *Manager) RegisterCompany(ctx context.Context, name string, actor models.Actor) (*models.Company, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated("authentication required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("company name is required")
	}

	now := m.now().UTC()
	company := &models.Company{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedBy: actor.UserID,
		CreatedAt: now,
	}

	err := m.db.Transaction(ctx, func(tx database.Gateway) error {
		entry, err := tx.Directory().Get(ctx, actor.UserID)
		if errors.Is(err, apperr.ErrNotFound) {
			entry = &models.DirectoryEntry{ID: actor.UserID, Email: actor.Email, FullName: actor.FullName, CreatedAt: now}
			if err := tx.Directory().Create(ctx, entry); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		if entry.CompanyID != "" {
			return apperr.Conflict("you already belong to a company", nil)
		}

		if err := tx.Companies().Create(ctx, company); err != nil {
			return err
		}
		entry.CompanyID = company.ID
		entry.Role = models.RoleAdmin
		entry.Status = models.EntryActive
		entry.UpdatedAt = now
		return tx.Directory().Update(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("company registered", "company_id", company.ID, "user_id", actor.UserID)
	return company, nil
}

// ListEmployees returns the roster of the actor's company.
func (m *Manager) ListEmployees(ctx context.Context, actor models.Actor) ([]models.DirectoryEntry, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated("authentication required")
	}
	if actor.CompanyID == "" {
		return nil, apperr.Forbidden("you do not belong to a company")
	}
	return m.db.Directory().ListByCompany(ctx, actor.CompanyID)
}

// EmployeePatch lists the roster fields an admin may change.
type EmployeePatch struct {
	Role       *models.Role        `json:"role"`
	Department *string             `json:"department"`
	Status     *models.EntryStatus `json:"status"`
}

// UpdateEmployee changes an employee's role, department or status. Only
// admins of the same company may do this, and an admin may not demote or
// suspend themselves.
func (m *Manager) UpdateEmployee(ctx context.Context, id string, patch EmployeePatch, actor models.Actor) (*models.DirectoryEntry, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated("authentication required")
	}
	if !actor.IsAdmin() || actor.CompanyID == "" {
		return nil, apperr.Forbidden("only company admins can update employees")
	}
	if patch.Role != nil && !patch.Role.Valid() {
		return nil, apperr.Validation("role must be one of admin, manager, general-user")
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, apperr.Validation("status must be active or suspended")
	}

	entry, err := m.db.Directory().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry.CompanyID != actor.CompanyID {
		return nil, apperr.NotFound("employee not found")
	}
	if id == actor.UserID {
		if (patch.Role != nil && *patch.Role != models.RoleAdmin) || (patch.Status != nil && *patch.Status != models.EntryActive) {
			return nil, apperr.Conflict("admins cannot demote or suspend themselves", entry)
		}
	}

	if patch.Role != nil {
		entry.Role = *patch.Role
	}
	if patch.Department != nil {
		entry.Department = strings.TrimSpace(*patch.Department)
	}
	if patch.Status != nil {
		entry.Status = *patch.Status
	}
	entry.UpdatedAt = m.now().UTC()
	if err := m.db.Directory().Update(ctx, entry); err != nil {
		return nil, err
	}

	m.log.Info("employee updated", "company_id", entry.CompanyID, "user_id", id)
	return entry, nil
}
