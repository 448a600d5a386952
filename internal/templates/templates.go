// Package templates manages company text templates. Metadata lives in the
// database; each version of a body is a separate blob keyed
// templates/<company>/<template>/v<version>.txt.
package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"flowdesk/internal/apperr"
	"flowdesk/internal/database"
	"flowdesk/internal/logging"
	"flowdesk/internal/models"
	"flowdesk/internal/storage"
)

type Manager struct {
	db    database.Gateway
	blobs storage.BlobStore
	log   logging.Logger
	now   func() time.Time
}

func New(db database.Gateway, blobs storage.BlobStore, log logging.Logger) *Manager {
	return &Manager{db: db, blobs: blobs, log: log, now: time.Now}
}

type Input struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Body     string `json:"body"`
}

type Patch struct {
	Name     *string `json:"name"`
	Category *string `json:"category"`
	Body     *string `json:"body"`
}

// View is a template with its body.
type View struct {
	models.TextTemplate
	Body string `json:"body"`
}

func blobKey(companyID string, id uuid.UUID, version int) string {
	return fmt.Sprintf("templates/%s/%s/v%d.txt", companyID, id, version)
}

func requireMember(actor models.Actor) error {
	if !actor.Authenticated() {
		return apperr.Unauthenticated("authentication required")
	}
	if actor.CompanyID == "" {
		return apperr.Forbidden("you do not belong to a company")
	}
	return nil
}

func requireAuthor(actor models.Actor) error {
	if err := requireMember(actor); err != nil {
		return err
	}
	if !actor.IsAdmin() && !actor.IsManager() {
		return apperr.Forbidden("only admins and managers can change templates")
	}
	return nil
}

func (m *Manager) Create(ctx context.Context, in Input, actor models.Actor) (*View, error) {
	if err := requireAuthor(actor); err != nil {
		return nil, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	if in.Name == "" {
		return nil, apperr.Validation("template name is required")
	}

	now := m.now().UTC()
	t := &models.TextTemplate{
		ID:        uuid.New(),
		CompanyID: actor.CompanyID,
		Name:      in.Name,
		Category:  in.Category,
		Version:   1,
		CreatedBy: actor.UserID,
		UpdatedBy: actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.putBody(ctx, t, in.Body); err != nil {
		return nil, err
	}
	if err := m.db.Templates().Create(ctx, t); err != nil {
		m.discard(ctx, t.BlobKey)
		return nil, err
	}

	m.log.Info("template created", "template_id", t.ID, "company_id", t.CompanyID)
	return &View{TextTemplate: *t, Body: in.Body}, nil
}

// putBody uploads body under the key for t's current version and records
// its key, hash and size on t.
func (m *Manager) putBody(ctx context.Context, t *models.TextTemplate, body string) error {
	key := blobKey(t.CompanyID, t.ID, t.Version)
	res, err := m.blobs.Put(ctx, key, []byte(body), map[string]string{
		"company-id":  t.CompanyID,
		"template-id": t.ID.String(),
	})
	if err != nil {
		return apperr.Storage("store template body", err)
	}
	t.BlobKey = res.Key
	t.ContentHash = res.Hash
	t.Size = res.Size
	return nil
}

func (m *Manager) discard(ctx context.Context, key string) {
	if err := m.blobs.Delete(ctx, key); err != nil {
		m.log.Warn("could not delete template body", "key", key, "error", err)
	}
}

func (m *Manager) load(ctx context.Context, id uuid.UUID, actor models.Actor) (*models.TextTemplate, error) {
	t, err := m.db.Templates().Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.CompanyID != actor.CompanyID {
		return nil, apperr.NotFound("template not found")
	}
	return t, nil
}

// Get returns the template and its body after checking the body against the
// stored hash.
func (m *Manager) Get(ctx context.Context, id uuid.UUID, actor models.Actor) (*View, error) {
	if err := requireMember(actor); err != nil {
		return nil, err
	}
	t, err := m.load(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	obj, err := m.blobs.Get(ctx, t.BlobKey)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, apperr.Storage("template body is missing", err)
	}
	if err != nil {
		return nil, apperr.Storage("read template body", err)
	}
	if err := storage.VerifyIntegrity(obj.Data, t.ContentHash); err != nil {
		m.log.Error("template body failed integrity check", "template_id", t.ID, "error", err)
		return nil, apperr.Storage("template body failed integrity check", err)
	}
	return &View{TextTemplate: *t, Body: string(obj.Data)}, nil
}

func (m *Manager) List(ctx context.Context, actor models.Actor) ([]models.TextTemplate, error) {
	if err := requireMember(actor); err != nil {
		return nil, err
	}
	return m.db.Templates().ListByCompany(ctx, actor.CompanyID)
}

// Update applies patch if the stored version equals expectedVersion (or the
// version just read when nil). The metadata swap and the upload of a new body
// run in one transaction, so a writer that loses the version race never
// touches the blob. The previous body is removed after commit.
func (m *Manager) Update(ctx context.Context, id uuid.UUID, patch Patch, expectedVersion *int, actor models.Actor) (*View, error) {
	if err := requireAuthor(actor); err != nil {
		return nil, err
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, apperr.Validation("template name cannot be empty")
	}

	var previous, next models.TextTemplate
	err := m.db.Transaction(ctx, func(tx database.Gateway) error {
		current, err := tx.Templates().Get(ctx, id)
		if err != nil {
			return err
		}
		if current.CompanyID != actor.CompanyID {
			return apperr.NotFound("template not found")
		}
		if expectedVersion != nil && *expectedVersion != current.Version {
			return apperr.Conflict("template was modified by someone else; reload and retry", current)
		}

		previous, next = *current, *current
		if patch.Name != nil {
			next.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Category != nil {
			next.Category = strings.TrimSpace(*patch.Category)
		}
		if patch.Body != nil {
			body := []byte(*patch.Body)
			next.BlobKey = blobKey(next.CompanyID, id, current.Version+1)
			next.ContentHash = storage.Hash(body)
			next.Size = int64(len(body))
		}
		next.UpdatedBy = actor.UserID
		next.UpdatedAt = m.now().UTC()

		ok, err := tx.Templates().UpdateIfVersion(ctx, &next, current.Version)
		if err != nil {
			return err
		}
		if !ok {
			latest, err := tx.Templates().Get(ctx, id)
			if err != nil {
				return err
			}
			return apperr.Conflict("template was modified by someone else; reload and retry", latest)
		}

		if patch.Body != nil {
			return m.putBody(ctx, &next, *patch.Body)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if next.BlobKey != previous.BlobKey {
		m.discard(ctx, previous.BlobKey)
	}

	m.log.Info("template updated", "template_id", id, "version", next.Version)
	if patch.Body != nil {
		return &View{TextTemplate: next, Body: *patch.Body}, nil
	}
	return m.Get(ctx, id, actor)
}

func (m *Manager) Delete(ctx context.Context, id uuid.UUID, actor models.Actor) error {
	if err := requireAuthor(actor); err != nil {
		return err
	}
	t, err := m.load(ctx, id, actor)
	if err != nil {
		return err
	}
	if err := m.db.Templates().Delete(ctx, id); err != nil {
		return err
	}
	m.discard(ctx, t.BlobKey)

	m.log.Info("template deleted", "template_id", id, "company_id", t.CompanyID)
	return nil
}
