package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowdesk/internal/apperr"
	"flowdesk/internal/database"
	"flowdesk/internal/models"
)

func TestTransactionRollsBackEveryTable(t *testing.T) {
	store := New()
	ctx := context.Background()
	wf := &models.Workflow{Name: "Before", CompanyID: "c1", CreatedBy: "u1"}
	require.NoError(t, store.Workflows().Create(ctx, wf))

	boom := errors.New("boom")
	err := store.Transaction(ctx, func(tx database.Gateway) error {
		next := wf.Clone()
		next.Name = "After"
		ok, err := tx.Workflows().UpdateIfVersion(ctx, next, 1)
		require.NoError(t, err)
		require.True(t, ok)
		require.NoError(t, tx.History().Append(ctx, &models.WorkflowHistory{WorkflowID: wf.ID, ChangeType: models.ChangeUpdate}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := store.Workflows().Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Before", stored.Name)
	assert.Equal(t, 1, stored.Version)
	history, err := store.History().ListByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRollbackKeepsWritesMadeOutsideTheTransaction(t *testing.T) {
	store := New()
	ctx := context.Background()
	wf := &models.Workflow{Name: "Before", CompanyID: "c1", CreatedBy: "u1"}
	require.NoError(t, store.Workflows().Create(ctx, wf))

	boom := errors.New("boom")
	err := store.Transaction(ctx, func(tx database.Gateway) error {
		require.NoError(t, tx.Companies().Create(ctx, &models.Company{ID: "c1", Name: "Acme", CreatedBy: "u1"}))
		require.NoError(t, store.History().Append(ctx, &models.WorkflowHistory{WorkflowID: wf.ID, ChangeType: models.ChangeDelete}))
		require.NoError(t, store.Directory().Create(ctx, &models.DirectoryEntry{ID: "u2", FullName: "Bo"}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	history, err := store.History().ListByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
	_, err = store.Directory().Get(ctx, "u2")
	assert.NoError(t, err)
	_, err = store.Companies().Get(ctx, "c1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFailedInnerTransactionKeepsOuterWrites(t *testing.T) {
	store := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Transaction(ctx, func(tx database.Gateway) error {
		require.NoError(t, tx.Companies().Create(ctx, &models.Company{ID: "c1", Name: "Acme", CreatedBy: "u1"}))
		innerErr := tx.Transaction(ctx, func(inner database.Gateway) error {
			require.NoError(t, inner.Companies().Create(ctx, &models.Company{ID: "c2", Name: "Other", CreatedBy: "u1"}))
			return boom
		})
		assert.ErrorIs(t, innerErr, boom)
		return nil
	})
	require.NoError(t, err)

	_, err = store.Companies().Get(ctx, "c1")
	assert.NoError(t, err)
	_, err = store.Companies().Get(ctx, "c2")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestOuterRollbackUndoesCommittedInnerTransaction(t *testing.T) {
	store := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.Transaction(ctx, func(tx database.Gateway) error {
		require.NoError(t, tx.Transaction(ctx, func(inner database.Gateway) error {
			return inner.Companies().Create(ctx, &models.Company{ID: "c1", Name: "Acme", CreatedBy: "u1"})
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.Companies().Get(ctx, "c1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestNestedTransactionDoesNotDeadlock(t *testing.T) {
	store := New()
	ctx := context.Background()

	err := store.Transaction(ctx, func(tx database.Gateway) error {
		return tx.Transaction(ctx, func(inner database.Gateway) error {
			return inner.Companies().Create(ctx, &models.Company{ID: "c1", Name: "Acme", CreatedBy: "u1"})
		})
	})
	require.NoError(t, err)

	_, err = store.Companies().Get(ctx, "c1")
	assert.NoError(t, err)
}

func TestWorkflowUpdateIfVersion(t *testing.T) {
	store := New()
	ctx := context.Background()
	wf := &models.Workflow{Name: "W", CompanyID: "c1", CreatedBy: "u1"}
	require.NoError(t, store.Workflows().Create(ctx, wf))
	assert.Equal(t, 1, wf.Version)
	assert.Equal(t, models.AccessUser, wf.AccessLevel)

	for _, expected := range []int{0, 2, 7} {
		ok, err := store.Workflows().UpdateIfVersion(ctx, wf.Clone(), expected)
		require.NoError(t, err)
		assert.False(t, ok, "expected version %d", expected)
	}

	next := wf.Clone()
	next.Name = "X"
	ok, err := store.Workflows().UpdateIfVersion(ctx, next, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, next.Version)
}

func TestInvitationRules(t *testing.T) {
	store := New()
	ctx := context.Background()
	pending := func(email string) *models.Invitation {
		return &models.Invitation{Email: email, Role: models.RoleManager, CompanyID: "c1",
			InviteToken: uuid.NewString(), Status: models.InvitationPending, InvitedBy: "u1",
			ExpiresAt: time.Now().Add(time.Hour)}
	}

	first := pending("bob@x.com")
	require.NoError(t, store.Invitations().Create(ctx, first))
	assert.ErrorIs(t, store.Invitations().Create(ctx, pending("bob@x.com")), apperr.ErrConflict)

	_, err := store.Invitations().Accept(ctx, first.InviteToken, "bob@x.com", time.Now())
	require.NoError(t, err)
	assert.NoError(t, store.Invitations().Create(ctx, pending("bob@x.com")), "accepted rows do not block new invitations")
}

func TestWithoutPendingView(t *testing.T) {
	store := New(WithoutPendingView())

	_, err := store.Invitations().FindPendingByTokenView(context.Background(), "t")

	assert.ErrorIs(t, err, database.ErrViewUnavailable)
}

func TestFailInjectsStorageErrors(t *testing.T) {
	store := New()
	ctx := context.Background()
	store.Fail(TableDirectory, errors.New("connection reset"))

	_, err := store.Directory().FindByIDs(ctx, []string{"u1"})
	assert.ErrorIs(t, err, apperr.ErrStorage)

	store.Fail(TableDirectory, nil)
	_, err = store.Directory().FindByIDs(ctx, []string{"u1"})
	assert.NoError(t, err)
}

func TestCollaboratorUpsertAndCascade(t *testing.T) {
	store := New()
	ctx := context.Background()
	wf := &models.Workflow{Name: "W", CompanyID: "c1", CreatedBy: "u1"}
	require.NoError(t, store.Workflows().Create(ctx, wf))

	first := &models.Collaborator{WorkflowID: wf.ID, UserID: "u2", PermissionType: models.PermissionEdit, FullName: "A"}
	require.NoError(t, store.Collaborators().Upsert(ctx, first))
	second := &models.Collaborator{WorkflowID: wf.ID, UserID: "u2", PermissionType: models.PermissionView, FullName: "B"}
	require.NoError(t, store.Collaborators().Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	rows, err := store.Collaborators().ListByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.PermissionView, rows[0].PermissionType)

	require.NoError(t, store.Workflows().Delete(ctx, wf.ID))
	_, err = store.Collaborators().Get(ctx, first.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = store.Collaborators().Upsert(ctx, &models.Collaborator{WorkflowID: wf.ID, UserID: "u3"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
