package collaborators

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowdesk/internal/apperr"
	"flowdesk/internal/database/memory"
	"flowdesk/internal/directory"
	"flowdesk/internal/logging"
	"flowdesk/internal/models"
)

var manager = models.Actor{UserID: "u-mgr", Role: models.RoleManager, CompanyID: "C1"}

func setup(t *testing.T) (*Registry, *memory.Store, *models.Workflow) {
	t.Helper()
	store := memory.New()
	wf := &models.Workflow{Name: "W", CompanyID: "C1", CreatedBy: "u-mgr"}
	require.NoError(t, store.Workflows().Create(context.Background(), wf))
	return New(store, logging.Nop()), store, wf
}

func TestAddUnknownUserCreatesDirectoryEntry(t *testing.T) {
	r, store, wf := setup(t)
	ctx := context.Background()

	c, err := r.AddOrUpdate(ctx, wf.ID, "U1", "edit", manager)
	require.NoError(t, err)
	assert.Equal(t, "U1", c.FullName)
	assert.Equal(t, models.PermissionEdit, c.PermissionType)
	require.NotNil(t, c.AddedBy)
	assert.Equal(t, "u-mgr", *c.AddedBy)

	entry, err := store.Directory().Get(ctx, "U1")
	require.NoError(t, err)
	assert.Equal(t, "U1", entry.FullName)
	assert.Empty(t, entry.Email)
	assert.Equal(t, models.RoleGeneralUser, entry.Role)
	assert.Equal(t, models.EntryActive, entry.Status)
	assert.Empty(t, entry.CompanyID)
}

func TestCollaboratorDoesNotJoinWorkflowCompany(t *testing.T) {
	r, store, wf := setup(t)
	ctx := context.Background()
	creator := models.Actor{UserID: "u-gen", Role: models.RoleGeneralUser, CompanyID: "C1"}

	_, err := r.AddOrUpdate(ctx, wf.ID, "google:outsider", models.PermissionView, creator)
	require.NoError(t, err)

	entry, err := directory.New(store, logging.Nop()).EnsureIdentity(ctx, directory.Identity{ID: "google:outsider", Email: "out@example.com"})
	require.NoError(t, err)
	outsider := models.ActorFromEntry(entry)
	assert.False(t, outsider.InCompany("C1"))

	_, err = directory.New(store, logging.Nop()).ListEmployees(ctx, outsider)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestAddUsesDirectoryName(t *testing.T) {
	r, store, wf := setup(t)
	ctx := context.Background()
	require.NoError(t, store.Directory().Create(ctx, &models.DirectoryEntry{ID: "U2", FullName: "Ursula", CompanyID: "C1"}))

	c, err := r.AddOrUpdate(ctx, wf.ID, "U2", "", models.Actor{})
	require.NoError(t, err)
	assert.Equal(t, "Ursula", c.FullName)
	assert.Equal(t, models.PermissionEdit, c.PermissionType, "permission defaults to edit")
	assert.Nil(t, c.AddedBy, "anonymous adds leave added_by empty")
}

func TestReAddKeepsOneRow(t *testing.T) {
	r, store, wf := setup(t)
	ctx := context.Background()

	first, err := r.AddOrUpdate(ctx, wf.ID, "U3", models.PermissionEdit, manager)
	require.NoError(t, err)

	require.NoError(t, store.Directory().Update(ctx, &models.DirectoryEntry{
		ID: "U3", FullName: "Uma", Role: models.RoleGeneralUser, CompanyID: "C1", Status: models.EntryActive,
	}))
	second, err := r.AddOrUpdate(ctx, wf.ID, "U3", models.PermissionView, manager)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	rows, err := store.Collaborators().ListByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.PermissionView, rows[0].PermissionType)
	assert.Equal(t, "Uma", rows[0].FullName)
}

func TestAddValidation(t *testing.T) {
	r, _, wf := setup(t)
	ctx := context.Background()

	_, err := r.AddOrUpdate(ctx, wf.ID, " ", models.PermissionEdit, manager)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = r.AddOrUpdate(ctx, wf.ID, "U1", "owner", manager)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = r.AddOrUpdate(ctx, uuid.New(), "U1", models.PermissionEdit, manager)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDirectoryFailureDoesNotBlockAdd(t *testing.T) {
	r, store, wf := setup(t)
	ctx := context.Background()
	store.Fail(memory.TableDirectory, errors.New("timeout"))

	c, err := r.AddOrUpdate(ctx, wf.ID, "U4", models.PermissionEdit, manager)
	require.NoError(t, err)
	assert.Equal(t, "U4", c.FullName)
}

func TestCollaboratorStorageErrorPropagates(t *testing.T) {
	r, store, wf := setup(t)
	store.Fail(memory.TableCollaborators, errors.New("timeout"))

	_, err := r.AddOrUpdate(context.Background(), wf.ID, "U5", models.PermissionEdit, manager)
	assert.ErrorIs(t, err, apperr.ErrStorage)

	_, err = r.List(context.Background(), wf.ID)
	assert.ErrorIs(t, err, apperr.ErrStorage)
}

func TestListResolvesNames(t *testing.T) {
	r, store, wf := setup(t)
	ctx := context.Background()
	require.NoError(t, store.Directory().Create(ctx, &models.DirectoryEntry{ID: "U6", FullName: "Vera", CompanyID: "C1"}))
	require.NoError(t, store.Collaborators().Upsert(ctx, &models.Collaborator{WorkflowID: wf.ID, UserID: "U6"}))
	require.NoError(t, store.Collaborators().Upsert(ctx, &models.Collaborator{WorkflowID: wf.ID, UserID: "U7", FullName: "Snapshot"}))
	require.NoError(t, store.Collaborators().Upsert(ctx, &models.Collaborator{WorkflowID: wf.ID, UserID: "U8"}))

	list, err := r.List(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)

	byUser := map[string]Entry{}
	for _, e := range list {
		byUser[e.UserID] = e
	}
	assert.Equal(t, "Vera", byUser["U6"].FullName)
	require.NotNil(t, byUser["U6"].Directory)
	assert.Equal(t, "Snapshot", byUser["U7"].FullName)
	assert.Nil(t, byUser["U7"].Directory)
	assert.Equal(t, "", byUser["U8"].FullName, "raw user ids are never used as display names")
}

func TestListDegradesWhenDirectoryFails(t *testing.T) {
	r, store, wf := setup(t)
	ctx := context.Background()
	require.NoError(t, store.Collaborators().Upsert(ctx, &models.Collaborator{WorkflowID: wf.ID, UserID: "U9", FullName: "Wes"}))
	store.Fail(memory.TableDirectory, errors.New("timeout"))

	list, err := r.List(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Nil(t, list[0].Directory)
	assert.Equal(t, "Wes", list[0].FullName)
}

func TestRemove(t *testing.T) {
	r, _, wf := setup(t)
	ctx := context.Background()
	c, err := r.AddOrUpdate(ctx, wf.ID, "U10", models.PermissionView, manager)
	require.NoError(t, err)

	removed, err := r.Remove(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "U10", removed.UserID)
	assert.Equal(t, models.PermissionView, removed.PermissionType)

	_, err = r.Remove(ctx, c.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
