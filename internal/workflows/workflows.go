// Package workflows creates and revises workflow documents. Every update is a
// compare-and-swap on the version column and appends one history row in the
// same transaction.
package workflows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"flowdesk/internal/access"
	"flowdesk/internal/apperr"
	"flowdesk/internal/database"
	"flowdesk/internal/logging"
	"flowdesk/internal/models"
)

// Manager applies workflow changes and records their history.
type Manager struct {
	db  database.Gateway
	log logging.Logger
	now func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// New returns a Manager backed by db.
func New(db database.Gateway, log logging.Logger, opts ...Option) *Manager {
	m := &Manager{db: db, log: log, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateInput holds the fields of a new workflow.
type CreateInput struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Steps       models.Steps       `json:"steps"`
	CompanyID   string             `json:"company_id"`
	AccessLevel models.AccessLevel `json:"access_level"`
	IsImproved  bool               `json:"is_improved"`
	OriginalID  *uuid.UUID         `json:"original_id"`
}

// Patch lists the fields an update may change. Nil fields are left alone.
type Patch struct {
	Name        *string             `json:"name"`
	Description *string             `json:"description"`
	Steps       *models.Steps       `json:"steps"`
	IsImproved  *bool               `json:"is_improved"`
	OriginalID  *uuid.UUID          `json:"original_id"`
	IsCompleted *bool               `json:"is_completed"`
	AccessLevel *models.AccessLevel `json:"access_level"`
}

func (p Patch) validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return apperr.Validation("name cannot be empty")
	}
	if p.AccessLevel != nil && !p.AccessLevel.Valid() {
		return apperr.Validation("access level must be one of user, department, company")
	}
	return nil
}

// apply returns a copy of wf with the patch applied and updatedAt set to now.
func (p Patch) apply(wf *models.Workflow, now time.Time) *models.Workflow {
	next := wf.Clone()
	if p.Name != nil {
		next.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		next.Description = *p.Description
	}
	if p.Steps != nil {
		next.Steps = p.Steps.Normalize()
	}
	if p.IsImproved != nil {
		next.IsImproved = *p.IsImproved
	}
	if p.OriginalID != nil {
		id := *p.OriginalID
		next.OriginalID = &id
	}
	if p.IsCompleted != nil {
		switch {
		case *p.IsCompleted && !wf.IsCompleted:
			next.CompletedAt = &now
		case !*p.IsCompleted:
			next.CompletedAt = nil
		}
		next.IsCompleted = *p.IsCompleted
	}
	if p.AccessLevel != nil {
		next.AccessLevel = *p.AccessLevel
	}
	next.UpdatedAt = now
	return next
}

// Create stores a new workflow at version 1. Without an authenticated actor
// the creator is recorded as models.AnonymousUserID and no history row is
// written.
func (m *Manager) Create(ctx context.Context, in CreateInput, actor models.Actor) (*models.Workflow, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.CompanyID = strings.TrimSpace(in.CompanyID)
	if in.CompanyID == "" && actor.Authenticated() {
		in.CompanyID = actor.CompanyID
	}
	if in.Name == "" || in.CompanyID == "" {
		return nil, apperr.Validation("name and company id are required")
	}
	if in.AccessLevel == "" {
		in.AccessLevel = models.AccessUser
	}
	if !in.AccessLevel.Valid() {
		return nil, apperr.Validation("access level must be one of user, department, company")
	}
	if actor.Authenticated() && !actor.InCompany(in.CompanyID) {
		return nil, apperr.Forbidden("cannot create workflows for another company")
	}

	now := m.now().UTC()
	wf := &models.Workflow{
		Name:        in.Name,
		Description: in.Description,
		Steps:       in.Steps.Normalize(),
		CompanyID:   in.CompanyID,
		CreatedBy:   models.AnonymousUserID,
		AccessLevel: in.AccessLevel,
		Version:     1,
		IsImproved:  in.IsImproved,
		OriginalID:  in.OriginalID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if actor.Authenticated() {
		wf.CreatedBy = actor.UserID
	}

	err := m.db.Transaction(ctx, func(tx database.Gateway) error {
		if err := tx.Workflows().Create(ctx, wf); err != nil {
			return err
		}
		if !actor.Authenticated() {
			return nil
		}
		return tx.History().Append(ctx, &models.WorkflowHistory{
			WorkflowID: wf.ID,
			ChangedBy:  actor.UserID,
			ChangeType: models.ChangeCreate,
			NewState:   wf.Snapshot(),
			Timestamp:  now,
		})
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("workflow created", "workflow_id", wf.ID, "company_id", wf.CompanyID)
	return wf, nil
}

// Update applies patch to the workflow if its stored version equals
// expectedVersion. A nil expectedVersion guards on the version just read.
// Any mismatch returns Conflict carrying the latest stored record and leaves
// the row unchanged.
func (m *Manager) Update(ctx context.Context, id uuid.UUID, patch Patch, expectedVersion *int, actor models.Actor) (*models.Workflow, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated("authentication required to update a workflow")
	}

	var updated *models.Workflow
	err := m.db.Transaction(ctx, func(tx database.Gateway) error {
		current, err := tx.Workflows().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := authorizeEdit(ctx, tx, actor, current); err != nil {
			return err
		}

		guard := current.Version
		if expectedVersion != nil && *expectedVersion != current.Version {
			return versionConflict(current)
		}
		if patch.AccessLevel != nil && *patch.AccessLevel != current.AccessLevel {
			if err := access.CheckAccessLevelChange(actor, current, *patch.AccessLevel); err != nil {
				return err
			}
		}

		next := patch.apply(current, m.now().UTC())
		if err := compareAndSwap(ctx, tx, next, guard); err != nil {
			return err
		}
		updated = next

		return tx.History().Append(ctx, &models.WorkflowHistory{
			WorkflowID:    id,
			ChangedBy:     actor.UserID,
			ChangeType:    models.ChangeUpdate,
			PreviousState: current.Snapshot(),
			NewState:      next.Snapshot(),
			Timestamp:     next.UpdatedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("workflow updated", "workflow_id", id, "version", updated.Version)
	return updated, nil
}

// compareAndSwap writes next only if the stored version still equals guard.
// On a lost race the latest stored record is read back into the Conflict.
func compareAndSwap(ctx context.Context, tx database.Gateway, next *models.Workflow, guard int) error {
	ok, err := tx.Workflows().UpdateIfVersion(ctx, next, guard)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	latest, err := tx.Workflows().Get(ctx, next.ID)
	if err != nil {
		return err
	}
	return versionConflict(latest)
}

func versionConflict(latest *models.Workflow) error {
	return apperr.Conflict("workflow was modified by someone else; reload and retry", latest)
}

// SetAccessLevel changes the workflow's sharing scope after checking the
// access level policy. The history row records only the access level.
func (m *Manager) SetAccessLevel(ctx context.Context, id uuid.UUID, level models.AccessLevel, actor models.Actor) (*models.Workflow, error) {
	var updated *models.Workflow
	err := m.db.Transaction(ctx, func(tx database.Gateway) error {
		current, err := tx.Workflows().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := access.CheckAccessLevelChange(actor, current, level); err != nil {
			return err
		}
		if current.AccessLevel == level {
			updated = current
			return nil
		}

		next := current.Clone()
		next.AccessLevel = level
		next.UpdatedAt = m.now().UTC()
		if err := compareAndSwap(ctx, tx, next, current.Version); err != nil {
			return err
		}
		updated = next

		return tx.History().Append(ctx, &models.WorkflowHistory{
			WorkflowID:    id,
			ChangedBy:     actor.UserID,
			ChangeType:    models.ChangeUpdateAccessLevel,
			PreviousState: models.JSONB{"access_level": string(current.AccessLevel)},
			NewState:      models.JSONB{"access_level": string(level)},
			Timestamp:     next.UpdatedAt,
		})
	})
	if err != nil {
		return nil, err
	}

	m.log.Info("workflow access level set", "workflow_id", id, "access_level", level)
	return updated, nil
}

// Delete records a delete history row and then removes the workflow. The
// two writes are separate: if the removal fails the audit row remains and
// the workflow must be reconciled by hand.
func (m *Manager) Delete(ctx context.Context, id uuid.UUID, actor models.Actor) error {
	if !actor.Authenticated() {
		return apperr.Unauthenticated("authentication required to delete a workflow")
	}

	wf, err := m.db.Workflows().Get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.InCompany(wf.CompanyID) {
		return apperr.NotFound("workflow not found")
	}
	if !access.CanDelete(actor, wf) {
		return apperr.Forbidden("only the creator or an admin can delete this workflow")
	}

	err = m.db.History().Append(ctx, &models.WorkflowHistory{
		WorkflowID:    id,
		ChangedBy:     actor.UserID,
		ChangeType:    models.ChangeDelete,
		PreviousState: wf.Snapshot(),
		Timestamp:     m.now().UTC(),
	})
	if err != nil {
		return err
	}

	if err := m.db.Workflows().Delete(ctx, id); err != nil {
		m.log.Error("workflow delete failed after history was written",
			"workflow_id", id,
			"error", err,
		)
		return err
	}

	m.log.Info("workflow deleted", "workflow_id", id, "company_id", wf.CompanyID)
	return nil
}

// Get returns the workflow if the actor may view it. Workflows of other
// companies are reported as not found.
func (m *Manager) Get(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Workflow, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated("authentication required")
	}
	wf, err := m.db.Workflows().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.InCompany(wf.CompanyID) {
		return nil, apperr.NotFound("workflow not found")
	}
	g, err := grantFor(ctx, m.db, actor, wf)
	if err != nil {
		return nil, err
	}
	if !access.CanView(actor, wf, g) {
		return nil, apperr.Forbidden("you do not have access to this workflow")
	}
	return wf, nil
}

// List returns the workflows of the actor's company the actor may view.
func (m *Manager) List(ctx context.Context, actor models.Actor) ([]models.Workflow, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated("authentication required")
	}
	if actor.CompanyID == "" {
		return []models.Workflow{}, nil
	}

	all, err := m.db.Workflows().ListByCompany(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}
	departments, err := m.creatorDepartments(ctx, all)
	if err != nil {
		return nil, err
	}

	visible := make([]models.Workflow, 0, len(all))
	for i := range all {
		wf := &all[i]
		g := access.Grant{CreatorDepartment: departments[wf.CreatedBy]}
		if !access.CanView(actor, wf, g) {
			member, err := m.db.Collaborators().IsCollaborator(ctx, wf.ID, actor.UserID)
			if err != nil {
				return nil, err
			}
			if !member {
				continue
			}
		}
		visible = append(visible, *wf)
	}
	return visible, nil
}

func (m *Manager) creatorDepartments(ctx context.Context, wfs []models.Workflow) (map[string]string, error) {
	var ids []string
	for _, wf := range wfs {
		if wf.AccessLevel == models.AccessDepartment {
			ids = append(ids, wf.CreatedBy)
		}
	}
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	entries, err := m.db.Directory().FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		out[e.ID] = e.Department
	}
	return out, nil
}

// History returns the audit trail of a workflow the actor may view, oldest first.
func (m *Manager) History(ctx context.Context, id uuid.UUID, actor models.Actor) ([]models.WorkflowHistory, error) {
	if _, err := m.Get(ctx, id, actor); err != nil {
		return nil, err
	}
	return m.db.History().ListByWorkflow(ctx, id)
}

// AuthorizeCollaborators returns the workflow if actor may manage its
// collaborators.
func (m *Manager) AuthorizeCollaborators(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.Workflow, error) {
	if !actor.Authenticated() {
		return nil, apperr.Unauthenticated("authentication required")
	}
	wf, err := m.db.Workflows().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.InCompany(wf.CompanyID) {
		return nil, apperr.NotFound("workflow not found")
	}
	if !access.CanManageCollaborators(actor, wf) {
		return nil, apperr.Forbidden("only the creator, an admin or a manager can manage collaborators")
	}
	return wf, nil
}

func authorizeEdit(ctx context.Context, g database.Gateway, actor models.Actor, wf *models.Workflow) error {
	if !actor.InCompany(wf.CompanyID) {
		return apperr.NotFound("workflow not found")
	}
	grant, err := grantFor(ctx, g, actor, wf)
	if err != nil {
		return err
	}
	if !access.CanEdit(actor, wf, grant) {
		return apperr.Forbidden("you do not have permission to edit this workflow")
	}
	return nil
}

// grantFor loads the actor's collaborator permission on wf and, for
// department-scoped workflows, the creator's department.
func grantFor(ctx context.Context, g database.Gateway, actor models.Actor, wf *models.Workflow) (access.Grant, error) {
	var grant access.Grant

	rows, err := g.Collaborators().ListByWorkflow(ctx, wf.ID)
	if err != nil {
		return grant, err
	}
	for _, c := range rows {
		if c.UserID == actor.UserID {
			grant.Permission = c.PermissionType
			break
		}
	}

	if wf.AccessLevel == models.AccessDepartment {
		creator, err := g.Directory().Get(ctx, wf.CreatedBy)
		switch {
		case err == nil:
			grant.CreatorDepartment = creator.Department
		case !errors.Is(err, apperr.ErrNotFound):
			return grant, err
		}
	}
	return grant, nil
}
