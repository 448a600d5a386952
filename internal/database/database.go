// Package database is the persistence gateway. Each table is reached through a
// typed repository; the Gateway groups them and runs multi-step sequences in a
// transaction. Repositories return apperr kinds (NotFound, Conflict, Storage)
// so managers never see driver errors.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"flowdesk/internal/models"
)

// ErrViewUnavailable is returned by FindPendingByTokenView when the
// pending_invitations view does not exist in the connected database.
var ErrViewUnavailable = errors.New("pending invitations view unavailable")

// Gateway gives access to every repository. A Gateway passed to the
// Transaction callback is bound to that transaction.
type Gateway interface {
	Invitations() InvitationRepository
	Workflows() WorkflowRepository
	History() HistoryRepository
	Collaborators() CollaboratorRepository
	Directory() DirectoryRepository
	Companies() CompanyRepository
	Templates() TemplateRepository

	// Transaction runs fn atomically. If fn returns an error every write made
	// through tx is rolled back and the error is returned unchanged.
	Transaction(ctx context.Context, fn func(tx Gateway) error) error
}

// Store is a Gateway owned by the process bootstrap.
type Store interface {
	Gateway
	// Health returns a map of health status information.
	// The keys and values in the map are implementation-specific.
	Health(ctx context.Context) map[string]string
	// Close terminates the underlying connections.
	Close() error
}

type InvitationRepository interface {
	Create(ctx context.Context, inv *models.Invitation) error
	Get(ctx context.Context, id uuid.UUID) (*models.Invitation, error)
	// FindPendingByTokenView reads through the pending_invitations view.
	FindPendingByTokenView(ctx context.Context, token string) (*models.Invitation, error)
	// FindPendingByToken reads the base table with status = pending.
	FindPendingByToken(ctx context.Context, token string) (*models.Invitation, error)
	ListPending(ctx context.Context, companyID string) ([]models.Invitation, error)
	// DeletePendingByEmail removes pending invitations for email whose token
	// differs from exceptToken. An empty exceptToken removes all of them.
	DeletePendingByEmail(ctx context.Context, email, exceptToken string) (int64, error)
	// Accept marks the pending invitation with token accepted and rewrites
	// its email. NotFound when no pending row carries the token.
	Accept(ctx context.Context, token, email string, at time.Time) (*models.Invitation, error)
	// Refresh rotates the token and expiry of a pending invitation.
	Refresh(ctx context.Context, id uuid.UUID, token string, expiresAt, at time.Time) (*models.Invitation, error)
}

type WorkflowRepository interface {
	Create(ctx context.Context, wf *models.Workflow) error
	Get(ctx context.Context, id uuid.UUID) (*models.Workflow, error)
	ListByCompany(ctx context.Context, companyID string) ([]models.Workflow, error)
	// UpdateIfVersion writes wf only if the stored version equals expected,
	// setting the stored version to expected+1. It reports whether the row
	// was written; on success wf.Version is updated.
	UpdateIfVersion(ctx context.Context, wf *models.Workflow, expected int) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type HistoryRepository interface {
	Append(ctx context.Context, h *models.WorkflowHistory) error
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]models.WorkflowHistory, error)
}

type CollaboratorRepository interface {
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]models.Collaborator, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Collaborator, error)
	// Upsert inserts c or, when (workflow_id, user_id) already exists,
	// updates permission_type and full_name. c is refreshed from the store.
	Upsert(ctx context.Context, c *models.Collaborator) error
	Delete(ctx context.Context, id uuid.UUID) error
	IsCollaborator(ctx context.Context, workflowID uuid.UUID, userID string) (bool, error)
}

type DirectoryRepository interface {
	Get(ctx context.Context, id string) (*models.DirectoryEntry, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.DirectoryEntry, error)
	ListByCompany(ctx context.Context, companyID string) ([]models.DirectoryEntry, error)
	Create(ctx context.Context, e *models.DirectoryEntry) error
	// CreateIfMissing inserts e unless an entry with the same id exists.
	CreateIfMissing(ctx context.Context, e *models.DirectoryEntry) (bool, error)
	Update(ctx context.Context, e *models.DirectoryEntry) error
}

type CompanyRepository interface {
	Create(ctx context.Context, c *models.Company) error
	Get(ctx context.Context, id string) (*models.Company, error)
}

type TemplateRepository interface {
	Create(ctx context.Context, t *models.TextTemplate) error
	Get(ctx context.Context, id uuid.UUID) (*models.TextTemplate, error)
	ListByCompany(ctx context.Context, companyID string) ([]models.TextTemplate, error)
	// UpdateIfVersion has the same contract as WorkflowRepository.UpdateIfVersion.
	UpdateIfVersion(ctx context.Context, t *models.TextTemplate, expected int) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
