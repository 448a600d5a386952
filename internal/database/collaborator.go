package database

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"flowdesk/internal/apperr"
	"flowdesk/internal/models"
)

type collaboratorRepo struct {
	db *gorm.DB
}

func (r *collaboratorRepo) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]models.Collaborator, error) {
	var collaborators []models.Collaborator
	err := r.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("added_at ASC").
		Find(&collaborators).Error
	return collaborators, translate(err, "collaborators")
}

func (r *collaboratorRepo) Get(ctx context.Context, id uuid.UUID) (*models.Collaborator, error) {
	var c models.Collaborator
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err, "collaborator")
	}
	return &c, nil
}

// Upsert relies on the (workflow_id, user_id) unique constraint so concurrent
// adds of the same user never produce two rows.
func (r *collaboratorRepo) Upsert(ctx context.Context, c *models.Collaborator) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "workflow_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"permission_type", "full_name"}),
	}).Create(c).Error
	if err != nil {
		return translate(err, "collaborator")
	}

	// added_at and added_by keep their first values on conflict.
	err = r.db.WithContext(ctx).
		Where("workflow_id = ? AND user_id = ?", c.WorkflowID, c.UserID).
		Take(c).Error
	return translate(err, "collaborator")
}

func (r *collaboratorRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Collaborator{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, "collaborator")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("collaborator not found")
	}
	return nil
}

func (r *collaboratorRepo) IsCollaborator(ctx context.Context, workflowID uuid.UUID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Collaborator{}).
		Where("workflow_id = ? AND user_id = ?", workflowID, userID).
		Count(&count).Error
	return count > 0, translate(err, "collaborator")
}
