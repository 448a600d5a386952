package templates

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flowdesk/internal/apperr"
	"flowdesk/internal/database/memory"
	"flowdesk/internal/logging"
	"flowdesk/internal/models"
	"flowdesk/internal/storage"
)

var (
	manager = models.Actor{UserID: "u-mgr", Role: models.RoleManager, CompanyID: "C1"}
	member  = models.Actor{UserID: "u-mem", Role: models.RoleGeneralUser, CompanyID: "C1"}
	other   = models.Actor{UserID: "u-oth", Role: models.RoleAdmin, CompanyID: "C2"}
)

func setup(t *testing.T) (*Manager, *storage.MemoryStore) {
	t.Helper()
	blobs := storage.NewMemoryStore(nil)
	return New(memory.New(), blobs, logging.Nop()), blobs
}

func ptr[T any](v T) *T { return &v }

func TestCreateAndGet(t *testing.T) {
	m, blobs := setup(t)
	ctx := context.Background()

	created, err := m.Create(ctx, Input{Name: " Welcome ", Category: "email", Body: "Hi {{name}}"}, manager)
	require.NoError(t, err)
	assert.Equal(t, "Welcome", created.Name)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, "templates/C1/"+created.ID.String()+"/v1.txt", created.BlobKey)
	assert.Equal(t, storage.Hash([]byte("Hi {{name}}")), created.ContentHash)

	ok, err := blobs.Exists(ctx, created.BlobKey)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := m.Get(ctx, created.ID, member)
	require.NoError(t, err)
	assert.Equal(t, "Hi {{name}}", got.Body)

	_, err = m.Get(ctx, created.ID, other)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	list, err := m.List(ctx, member)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateAuthorization(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()

	_, err := m.Create(ctx, Input{Name: "A"}, member)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = m.Create(ctx, Input{Name: "A"}, models.Actor{})
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, err = m.Create(ctx, Input{Name: " "}, manager)
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestDuplicateNameRemovesOrphanBody(t *testing.T) {
	m, blobs := setup(t)
	ctx := context.Background()
	_, err := m.Create(ctx, Input{Name: "Dup", Body: "one"}, manager)
	require.NoError(t, err)

	_, err = m.Create(ctx, Input{Name: "Dup", Body: "two"}, manager)
	require.ErrorIs(t, err, apperr.ErrConflict)

	list, err := m.List(ctx, manager)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{list[0].BlobKey}, blobs.Keys())
}

func TestUpdateBodyWritesNextVersion(t *testing.T) {
	m, blobs := setup(t)
	ctx := context.Background()
	created, err := m.Create(ctx, Input{Name: "Note", Body: "v1"}, manager)
	require.NoError(t, err)

	updated, err := m.Update(ctx, created.ID, Patch{Body: ptr("v2")}, ptr(1), manager)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "templates/C1/"+created.ID.String()+"/v2.txt", updated.BlobKey)

	old, err := blobs.Exists(ctx, created.BlobKey)
	require.NoError(t, err)
	assert.False(t, old, "previous body is removed")

	got, err := m.Get(ctx, created.ID, member)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Body)

	_, err = m.Update(ctx, created.ID, Patch{Body: ptr("stale")}, ptr(1), manager)
	require.ErrorIs(t, err, apperr.ErrConflict)
	latest, ok := apperr.LatestOf(err).(*models.TextTemplate)
	require.True(t, ok)
	assert.Equal(t, 2, latest.Version)
}

func TestUpdateMetadataKeepsBody(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()
	created, err := m.Create(ctx, Input{Name: "Note", Body: "text"}, manager)
	require.NoError(t, err)

	updated, err := m.Update(ctx, created.ID, Patch{Category: ptr("legal")}, nil, manager)
	require.NoError(t, err)
	assert.Equal(t, "legal", updated.Category)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, "text", updated.Body)

	_, err = m.Update(ctx, created.ID, Patch{Name: ptr("")}, nil, manager)
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = m.Update(ctx, created.ID, Patch{Name: ptr("x")}, nil, member)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestGetDetectsCorruption(t *testing.T) {
	m, blobs := setup(t)
	ctx := context.Background()
	created, err := m.Create(ctx, Input{Name: "Note", Body: "original"}, manager)
	require.NoError(t, err)

	blobs.Corrupt(created.BlobKey, []byte("tampered"))
	_, err = m.Get(ctx, created.ID, member)
	assert.ErrorIs(t, err, apperr.ErrStorage)

	require.NoError(t, blobs.Delete(ctx, created.BlobKey))
	_, err = m.Get(ctx, created.ID, member)
	assert.ErrorIs(t, err, apperr.ErrStorage)
}

func TestDelete(t *testing.T) {
	m, blobs := setup(t)
	ctx := context.Background()
	created, err := m.Create(ctx, Input{Name: "Gone", Body: "bye"}, manager)
	require.NoError(t, err)

	assert.ErrorIs(t, m.Delete(ctx, created.ID, member), apperr.ErrForbidden)
	require.NoError(t, m.Delete(ctx, created.ID, manager))

	ok, err := blobs.Exists(ctx, created.BlobKey)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, m.Delete(ctx, created.ID, manager), apperr.ErrNotFound)
	assert.ErrorIs(t, m.Delete(ctx, uuid.New(), manager), apperr.ErrNotFound)
}

func TestSealedBlobsRoundTrip(t *testing.T) {
	sealer, err := storage.NewSealer(make([]byte, 32))
	require.NoError(t, err)
	m := New(memory.New(), storage.NewMemoryStore(sealer), logging.Nop())
	ctx := context.Background()

	created, err := m.Create(ctx, Input{Name: "Secret", Body: "classified"}, manager)
	require.NoError(t, err)
	got, err := m.Get(ctx, created.ID, manager)
	require.NoError(t, err)
	assert.Equal(t, "classified", got.Body)
}
