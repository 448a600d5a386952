package database

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"flowdesk/internal/apperr"
	"flowdesk/internal/models"
)

type workflowRepo struct {
	db *gorm.DB
}

func (r *workflowRepo) Create(ctx context.Context, wf *models.Workflow) error {
	return translate(r.db.WithContext(ctx).Create(wf).Error, "workflow")
}

func (r *workflowRepo) Get(ctx context.Context, id uuid.UUID) (*models.Workflow, error) {
	var wf models.Workflow
	if err := r.db.WithContext(ctx).First(&wf, "id = ?", id).Error; err != nil {
		return nil, translate(err, "workflow")
	}
	return &wf, nil
}

// ListByCompany returns a company's workflows, most recently updated first.
func (r *workflowRepo) ListByCompany(ctx context.Context, companyID string) ([]models.Workflow, error) {
	var workflows []models.Workflow
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("updated_at DESC").
		Find(&workflows).Error
	return workflows, translate(err, "workflows")
}

// UpdateIfVersion is a single compare-and-swap statement:
// UPDATE workflows SET ..., version = expected+1 WHERE id = ? AND version = expected.
func (r *workflowRepo) UpdateIfVersion(ctx context.Context, wf *models.Workflow, expected int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Workflow{}).
		Where("id = ? AND version = ?", wf.ID, expected).
		Updates(map[string]any{
			"name":         wf.Name,
			"description":  wf.Description,
			"steps":        wf.Steps,
			"access_level": wf.AccessLevel,
			"is_improved":  wf.IsImproved,
			"original_id":  wf.OriginalID,
			"is_completed": wf.IsCompleted,
			"completed_at": wf.CompletedAt,
			"version":      expected + 1,
			"updated_at":   wf.UpdatedAt,
		})
	if res.Error != nil {
		return false, translate(res.Error, "workflow")
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	wf.Version = expected + 1
	return true, nil
}

// Delete removes the workflow; collaborator rows cascade, history rows stay.
func (r *workflowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Workflow{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, "workflow")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("workflow not found")
	}
	return nil
}

type historyRepo struct {
	db *gorm.DB
}

func (r *historyRepo) Append(ctx context.Context, h *models.WorkflowHistory) error {
	return translate(r.db.WithContext(ctx).Create(h).Error, "workflow history")
}

// ListByWorkflow returns the audit trail oldest first.
func (r *historyRepo) ListByWorkflow(ctx context.Context, workflowID uuid.UUID) ([]models.WorkflowHistory, error) {
	var entries []models.WorkflowHistory
	err := r.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("changed_at ASC, seq ASC").
		Find(&entries).Error
	return entries, translate(err, "workflow history")
}
