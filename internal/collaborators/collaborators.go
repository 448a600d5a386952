// Package collaborators keeps the per-workflow list of users allowed to work
// on a workflow, with display names snapshotted from the directory.
package collaborators

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

// Registry manages workflow collaborators against a persistence gateway.
type Registry struct {
	db  database.Gateway
	log logging.Logger
	now func() time.Time
}

// New returns a Registry backed by db.
func New(db database.Gateway, log logging.Logger) *Registry {
	return &Registry{db: db, log: log, now: time.Now}
}

// Entry is a collaborator row joined with its directory entry. Directory is
// nil when the user has no entry or the directory could not be read.
type Entry struct {
	models.Collaborator
	Directory *models.DirectoryEntry `json:"directory"`
}

// List returns the workflow's collaborators. Directory entries are resolved in
// one batch read; a failed read is logged and leaves Directory nil.
func (r *Registry) List(ctx context.Context, workflowID uuid.UUID) ([]Entry, error) {
	rows, err := r.db.Collaborators().ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []Entry{}, nil
	}

	ids := make([]string, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, c := range rows {
		if !seen[c.UserID] {
			seen[c.UserID] = true
			ids = append(ids, c.UserID)
		}
	}

	byID := make(map[string]*models.DirectoryEntry, len(ids))
	entries, err := r.db.Directory().FindByIDs(ctx, ids)
	if err != nil {
		r.log.Warn("collaborator directory lookup failed", "workflow_id", workflowID, "error", err)
	}
	for i := range entries {
		byID[entries[i].ID] = &entries[i]
	}

	out := make([]Entry, 0, len(rows))
	for _, c := range rows {
		e := Entry{Collaborator: c, Directory: byID[c.UserID]}
		if e.FullName == "" && e.Directory != nil {
			e.FullName = e.Directory.FullName
		}
		out = append(out, e)
	}
	return out, nil
}

// AddOrUpdate grants userID permission on the workflow, or updates the
// permission and name of an existing grant. A user missing from the directory
// gets a minimal entry; failing to write it is logged and does not fail the add.
func (r *Registry) AddOrUpdate(ctx context.Context, workflowID uuid.UUID, userID string, permission models.PermissionType, actor models.Actor) (*models.Collaborator, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperr.Validation("user id is required")
	}
	if permission == "" {
		permission = models.PermissionEdit
	}
	if !permission.Valid() {
		return nil, apperr.Validation("permission must be view or edit")
	}

	if _, err := r.db.Workflows().Get(ctx, workflowID); err != nil {
		return nil, err
	}

	c := &models.Collaborator{
		WorkflowID:     workflowID,
		UserID:         userID,
		PermissionType: permission,
		FullName:       r.resolveName(ctx, userID),
		AddedAt:        r.now().UTC(),
	}
	if actor.Authenticated() {
		addedBy := actor.UserID
		c.AddedBy = &addedBy
	}
	if err := r.db.Collaborators().Upsert(ctx, c); err != nil {
		return nil, err
	}

	r.log.Info("collaborator saved",
		"workflow_id", workflowID,
		"collaborator_id", c.ID,
		"permission", c.PermissionType,
	)
	return c, nil
}

// resolveName returns the directory name for userID. When the user has no
// entry one is created with the user id as its name and no company; joining
// a company only happens through an accepted invitation.
func (r *Registry) resolveName(ctx context.Context, userID string) string {
	entry, err := r.db.Directory().Get(ctx, userID)
	if err == nil {
		return entry.FullName
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		r.log.Warn("directory read failed, using user id as name", "user_id", userID, "error", err)
		return userID
	}

	now := r.now().UTC()
	_, err = r.db.Directory().CreateIfMissing(ctx, &models.DirectoryEntry{
		ID:        userID,
		FullName:  userID,
		Role:      models.RoleGeneralUser,
		Status:    models.EntryActive,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		r.log.Warn("could not create directory entry for collaborator", "user_id", userID, "error", err)
	}
	return userID
}

// Get returns the collaborator row with id.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (*models.Collaborator, error) {
	return r.db.Collaborators().Get(ctx, id)
}

// Remove deletes the collaborator and returns the row as it was.
func (r *Registry) Remove(ctx context.Context, id uuid.UUID) (*models.Collaborator, error) {
	c, err := r.db.Collaborators().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.db.Collaborators().Delete(ctx, id); err != nil {
		return nil, err
	}
	r.log.Info("collaborator removed", "workflow_id", c.WorkflowID, "collaborator_id", id)
	return c, nil
}
