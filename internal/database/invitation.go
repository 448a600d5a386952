package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"flowdesk/internal/apperr"
	"flowdesk/internal/models"
)

const pendingInvitationsView = "pending_invitations"

type invitationRepo struct {
	db *gorm.DB
}

// Create inserts a new invitation. A second pending invitation for the same
// email trips the partial unique index and is reported as Conflict.
func (r *invitationRepo) Create(ctx context.Context, inv *models.Invitation) error {
	return translate(r.db.WithContext(ctx).Create(inv).Error, "invitation")
}

// Get retrieves an invitation by ID
func (r *invitationRepo) Get(ctx context.Context, id uuid.UUID) (*models.Invitation, error) {
	var inv models.Invitation
	if err := r.db.WithContext(ctx).First(&inv, "id = ?", id).Error; err != nil {
		return nil, translate(err, "invitation")
	}
	return &inv, nil
}

func (r *invitationRepo) FindPendingByTokenView(ctx context.Context, token string) (*models.Invitation, error) {
	var inv models.Invitation
	err := r.db.WithContext(ctx).Table(pendingInvitationsView).
		Where("invite_token = ?", token).
		Take(&inv).Error
	if err != nil {
		if isUndefinedTable(err) {
			return nil, ErrViewUnavailable
		}
		return nil, translate(err, "invitation")
	}
	return &inv, nil
}

func (r *invitationRepo) FindPendingByToken(ctx context.Context, token string) (*models.Invitation, error) {
	var inv models.Invitation
	err := r.db.WithContext(ctx).
		Where("invite_token = ? AND status = ?", token, models.InvitationPending).
		Take(&inv).Error
	if err != nil {
		return nil, translate(err, "invitation")
	}
	return &inv, nil
}

// ListPending retrieves all pending invitations for a company, newest first
func (r *invitationRepo) ListPending(ctx context.Context, companyID string) ([]models.Invitation, error) {
	var invitations []models.Invitation
	err := r.db.WithContext(ctx).
		Where("company_id = ? AND status = ?", companyID, models.InvitationPending).
		Order("created_at DESC").
		Find(&invitations).Error
	return invitations, translate(err, "invitations")
}

func (r *invitationRepo) DeletePendingByEmail(ctx context.Context, email, exceptToken string) (int64, error) {
	q := r.db.WithContext(ctx).Where("email = ? AND status = ?", email, models.InvitationPending)
	if exceptToken != "" {
		q = q.Where("invite_token <> ?", exceptToken)
	}
	res := q.Delete(&models.Invitation{})
	return res.RowsAffected, translate(res.Error, "invitations")
}

func (r *invitationRepo) Accept(ctx context.Context, token, email string, at time.Time) (*models.Invitation, error) {
	res := r.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("invite_token = ? AND status = ?", token, models.InvitationPending).
		Updates(map[string]any{
			"status":     models.InvitationAccepted,
			"email":      email,
			"updated_at": at,
		})
	if res.Error != nil {
		return nil, translate(res.Error, "invitation")
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("invitation not found")
	}

	var inv models.Invitation
	if err := r.db.WithContext(ctx).Where("invite_token = ?", token).Take(&inv).Error; err != nil {
		return nil, translate(err, "invitation")
	}
	return &inv, nil
}

func (r *invitationRepo) Refresh(ctx context.Context, id uuid.UUID, token string, expiresAt, at time.Time) (*models.Invitation, error) {
	res := r.db.WithContext(ctx).Model(&models.Invitation{}).
		Where("id = ? AND status = ?", id, models.InvitationPending).
		Updates(map[string]any{
			"invite_token": token,
			"expires_at":   expiresAt,
			"updated_at":   at,
		})
	if res.Error != nil {
		return nil, translate(res.Error, "invitation")
	}
	if res.RowsAffected == 0 {
		return nil, apperr.NotFound("pending invitation not found")
	}
	return r.Get(ctx, id)
}
