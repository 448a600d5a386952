package workflows

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowdesk/internal/apperr"
	"flowdesk/internal/database/memory"
	"flowdesk/internal/logging"
	"flowdesk/internal/models"
)

var (
	creator  = models.Actor{UserID: "u-creator", Role: models.RoleGeneralUser, CompanyID: "C1", Department: "ops"}
	admin    = models.Actor{UserID: "u-admin", Role: models.RoleAdmin, CompanyID: "C1"}
	employee = models.Actor{UserID: "u-emp", Role: models.RoleGeneralUser, CompanyID: "C1", Department: "sales"}
	outsider = models.Actor{UserID: "u-out", Role: models.RoleAdmin, CompanyID: "C2"}
)

var t0 = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Manager, *memory.Store) {
	t.Helper()
	store := memory.New()
	return New(store, logging.Nop(), WithClock(func() time.Time { return t0 })), store
}

func create(t *testing.T, m *Manager, actor models.Actor, level models.AccessLevel) *models.Workflow {
	t.Helper()
	wf, err := m.Create(context.Background(), CreateInput{Name: "Onboarding", CompanyID: "C1", AccessLevel: level}, actor)
	require.NoError(t, err)
	return wf
}

func name(s string) Patch { return Patch{Name: &s} }

func version(v int) *int { return &v }

func TestCreateAnonymous(t *testing.T) {
	m, store := setup(t)
	ctx := context.Background()

	wf, err := m.Create(ctx, CreateInput{
		Name:      "Intake",
		CompanyID: "C1",
		Steps:     models.Steps{{Title: "collect"}, {Title: "review"}},
	}, models.Actor{})
	require.NoError(t, err)

	assert.Equal(t, models.AnonymousUserID, wf.CreatedBy)
	assert.Equal(t, 1, wf.Version)
	assert.Equal(t, models.AccessUser, wf.AccessLevel)
	require.Len(t, wf.Steps, 2)
	assert.Equal(t, 1, wf.Steps[1].Position)
	assert.NotEmpty(t, wf.Steps[0].ID)

	history, err := store.History().ListByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestCreateAuthenticatedWritesHistory(t *testing.T) {
	m, store := setup(t)
	ctx := context.Background()

	wf, err := m.Create(ctx, CreateInput{Name: "Intake"}, creator)
	require.NoError(t, err)
	assert.Equal(t, "C1", wf.CompanyID)
	assert.Equal(t, creator.UserID, wf.CreatedBy)

	history, err := store.History().ListByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.ChangeCreate, history[0].ChangeType)
	assert.Nil(t, history[0].PreviousState)
	assert.Equal(t, "Intake", history[0].NewState["name"])
}

func TestCreateValidation(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()

	_, err := m.Create(ctx, CreateInput{CompanyID: "C1"}, models.Actor{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = m.Create(ctx, CreateInput{Name: "W"}, models.Actor{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = m.Create(ctx, CreateInput{Name: "W", CompanyID: "C1", AccessLevel: "team"}, models.Actor{})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = m.Create(ctx, CreateInput{Name: "W", CompanyID: "C1"}, outsider)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestStaleVersionConflicts(t *testing.T) {
	m, store := setup(t)
	ctx := context.Background()
	wf := create(t, m, creator, models.AccessUser)

	updated, err := m.Update(ctx, wf.ID, name("X"), version(1), creator)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	_, err = m.Update(ctx, wf.ID, name("Y"), version(1), creator)
	require.ErrorIs(t, err, apperr.ErrConflict)
	latest, ok := apperr.LatestOf(err).(*models.Workflow)
	require.True(t, ok)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, "X", latest.Name)

	stored, err := store.Workflows().Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "X", stored.Name)
	assert.Equal(t, 2, stored.Version)
}

func TestFutureVersionConflicts(t *testing.T) {
	m, store := setup(t)
	ctx := context.Background()
	wf := create(t, m, creator, models.AccessUser)

	_, err := m.Update(ctx, wf.ID, name("Y"), version(5), creator)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	stored, err := store.Workflows().Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Version)
	assert.Equal(t, "Onboarding", stored.Name)
}

func TestVersionIncrementsByOne(t *testing.T) {
	m, store := setup(t)
	ctx := context.Background()
	wf := create(t, m, creator, models.AccessUser)

	for want := 2; want <= 5; want++ {
		updated, err := m.Update(ctx, wf.ID, name("rev"), nil, creator)
		require.NoError(t, err)
		assert.Equal(t, want, updated.Version)
	}

	history, err := store.History().ListByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, history, 5)
	last := history[4]
	assert.Equal(t, models.ChangeUpdate, last.ChangeType)
	assert.EqualValues(t, 4, last.PreviousState["version"])
	assert.EqualValues(t, 5, last.NewState["version"])
}

func TestConcurrentUpdatesOnlyOneWins(t *testing.T) {
	m, store := setup(t)
	ctx := context.Background()
	wf := create(t, m, creator, models.AccessUser)

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Update(ctx, wf.ID, name("race"), version(1), creator)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, writers-1, conflicts)
	stored, err := store.Workflows().Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
}

func TestCompletionSetsAndClearsTimestamp(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()
	wf := create(t, m, creator, models.AccessUser)
	done, undone := true, false

	updated, err := m.Update(ctx, wf.ID, Patch{IsCompleted: &done}, nil, creator)
	require.NoError(t, err)
	require.NotNil(t, updated.CompletedAt)
	assert.Equal(t, t0, *updated.CompletedAt)

	updated, err = m.Update(ctx, wf.ID, Patch{IsCompleted: &undone}, nil, creator)
	require.NoError(t, err)
	assert.False(t, updated.IsCompleted)
	assert.Nil(t, updated.CompletedAt)
}

func TestUpdateAuthorization(t *testing.T) {
	m, store := setup(t)
	ctx := context.Background()
	wf := create(t, m, creator, models.AccessUser)

	_, err := m.Update(ctx, wf.ID, name("A"), nil, models.Actor{})
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = m.Update(ctx, wf.ID, name("A"), nil, outsider)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = m.Update(ctx, wf.ID, name("A"), nil, employee)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	require.NoError(t, store.Collaborators().Upsert(ctx, &models.Collaborator{
		WorkflowID: wf.ID, UserID: employee.UserID, PermissionType: models.PermissionEdit,
	}))
	_, err = m.Update(ctx, wf.ID, name("A"), nil, employee)
	assert.NoError(t, err)

	_, err = m.Update(ctx, uuid.New(), name("A"), nil, admin)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateAccessLevelGoesThroughPolicy(t *testing.T) {
	m, store := setup(t)
	ctx := context.Background()
	wf := create(t, m, creator, models.AccessCompany)
	user := models.AccessUser

	_, err := m.Update(ctx, wf.ID, Patch{AccessLevel: &user}, nil, employee)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	stored, err := store.Workflows().Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccessCompany, stored.AccessLevel)

	updated, err := m.Update(ctx, wf.ID, Patch{AccessLevel: &user}, nil, creator)
	require.NoError(t, err)
	assert.Equal(t, models.AccessUser, updated.AccessLevel)
}

func TestUpdateRollsBackWhenHistoryFails(t *testing.T) {
	m, store := setup(t)
	ctx := context.Background()
	wf := create(t, m, creator, models.AccessUser)

	store.Fail(memory.TableHistory, errors.New("disk full"))
	_, err := m.Update(ctx, wf.ID, name("lost"), version(1), creator)
	require.ErrorIs(t, err, apperr.ErrStorage)
	store.Fail(memory.TableHistory, nil)

	stored, err := store.Workflows().Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Onboarding", stored.Name)
	assert.Equal(t, 1, stored.Version)
}

func TestSetAccessLevelForbiddenForGeneralUser(t *testing.T) {
	m, store := setup(t)
	ctx := context.Background()
	wf := create(t, m, creator, models.AccessUser)

	_, err := m.SetAccessLevel(ctx, wf.ID, models.AccessCompany, employee)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = m.SetAccessLevel(ctx, wf.ID, models.AccessCompany, outsider)
	require.ErrorIs(t, err, apperr.ErrForbidden)

	stored, err := store.Workflows().Get(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AccessUser, stored.AccessLevel)
}

func TestSetAccessLevelRecordsOnlyTheLevel(t *testing.T) {
	m, store := setup(t)
	ctx := context.Background()
	wf := create(t, m, creator, models.AccessUser)

	updated, err := m.SetAccessLevel(ctx, wf.ID, models.AccessDepartment, admin)
	require.NoError(t, err)
	assert.Equal(t, models.AccessDepartment, updated.AccessLevel)
	assert.Equal(t, 2, updated.Version)

	history, err := store.History().ListByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	entry := history[1]
	assert.Equal(t, models.ChangeUpdateAccessLevel, entry.ChangeType)
	assert.Equal(t, models.JSONB{"access_level": "user"}, entry.PreviousState)
	assert.Equal(t, models.JSONB{"access_level": "department"}, entry.NewState)

	_, err = m.SetAccessLevel(ctx, wf.ID, "everyone", admin)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDeleteWritesHistoryThenRemoves(t *testing.T) {
	m, store := setup(t)
	ctx := context.Background()
	wf := create(t, m, creator, models.AccessUser)

	require.NoError(t, m.Delete(ctx, wf.ID, creator))

	_, err := store.Workflows().Get(ctx, wf.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	history, err := store.History().ListByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	entry := history[1]
	assert.Equal(t, models.ChangeDelete, entry.ChangeType)
	assert.Nil(t, entry.NewState)
	assert.Equal(t, "Onboarding", entry.PreviousState["name"])
	assert.Equal(t, creator.UserID, entry.ChangedBy)
}

func TestDeleteAuthorization(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()
	wf := create(t, m, creator, models.AccessCompany)

	assert.ErrorIs(t, m.Delete(ctx, wf.ID, models.Actor{}), apperr.ErrUnauthenticated)
	assert.ErrorIs(t, m.Delete(ctx, wf.ID, employee), apperr.ErrForbidden)
	assert.ErrorIs(t, m.Delete(ctx, wf.ID, outsider), apperr.ErrNotFound)
	assert.NoError(t, m.Delete(ctx, wf.ID, admin))
	assert.ErrorIs(t, m.Delete(ctx, wf.ID, admin), apperr.ErrNotFound)
}

func TestListFiltersByVisibility(t *testing.T) {
	m, store := setup(t)
	ctx := context.Background()
	require.NoError(t, store.Directory().Create(ctx, &models.DirectoryEntry{
		ID: creator.UserID, CompanyID: "C1", Department: "sales",
	}))

	private := create(t, m, creator, models.AccessUser)
	department := create(t, m, creator, models.AccessDepartment)
	shared := create(t, m, creator, models.AccessCompany)
	_, err := m.Create(ctx, CreateInput{Name: "Other", CompanyID: "C2"}, outsider)
	require.NoError(t, err)

	ids := func(list []models.Workflow) []uuid.UUID {
		var out []uuid.UUID
		for _, wf := range list {
			out = append(out, wf.ID)
		}
		return out
	}

	list, err := m.List(ctx, employee)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{department.ID, shared.ID}, ids(list))

	require.NoError(t, store.Collaborators().Upsert(ctx, &models.Collaborator{
		WorkflowID: private.ID, UserID: employee.UserID, PermissionType: models.PermissionView,
	}))
	list, err = m.List(ctx, employee)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{private.ID, department.ID, shared.ID}, ids(list))

	list, err = m.List(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, list, 3)

	_, err = m.List(ctx, models.Actor{})
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestGetAndHistory(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()
	wf := create(t, m, creator, models.AccessUser)
	_, err := m.Update(ctx, wf.ID, name("Second"), nil, creator)
	require.NoError(t, err)

	got, err := m.Get(ctx, wf.ID, creator)
	require.NoError(t, err)
	assert.Equal(t, "Second", got.Name)

	_, err = m.Get(ctx, wf.ID, employee)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = m.Get(ctx, wf.ID, outsider)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	history, err := m.History(ctx, wf.ID, admin)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.ChangeCreate, history[0].ChangeType)
	assert.Equal(t, models.ChangeUpdate, history[1].ChangeType)
}

func TestAuthorizeCollaborators(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()
	wf := create(t, m, creator, models.AccessUser)
	manager := models.Actor{UserID: "u-mgr", Role: models.RoleManager, CompanyID: "C1"}

	_, err := m.AuthorizeCollaborators(ctx, wf.ID, manager)
	assert.NoError(t, err)
	_, err = m.AuthorizeCollaborators(ctx, wf.ID, employee)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = m.AuthorizeCollaborators(ctx, wf.ID, models.Actor{})
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}
