package database

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"flowdesk/internal/apperr"
	"flowdesk/internal/models"
)

type templateRepo struct {
	db *gorm.DB
}

func (r *templateRepo) Create(ctx context.Context, t *models.TextTemplate) error {
	return translate(r.db.WithContext(ctx).Create(t).Error, "template")
}

func (r *templateRepo) Get(ctx context.Context, id uuid.UUID) (*models.TextTemplate, error) {
	var t models.TextTemplate
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		return nil, translate(err, "template")
	}
	return &t, nil
}

func (r *templateRepo) ListByCompany(ctx context.Context, companyID string) ([]models.TextTemplate, error) {
	var templates []models.TextTemplate
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("category ASC, name ASC").
		Find(&templates).Error
	return templates, translate(err, "templates")
}

func (r *templateRepo) UpdateIfVersion(ctx context.Context, t *models.TextTemplate, expected int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.TextTemplate{}).
		Where("id = ? AND version = ?", t.ID, expected).
		Updates(map[string]any{
			"name":         t.Name,
			"category":     t.Category,
			"blob_key":     t.BlobKey,
			"content_hash": t.ContentHash,
			"size":         t.Size,
			"updated_by":   t.UpdatedBy,
			"version":      expected + 1,
			"updated_at":   t.UpdatedAt,
		})
	if res.Error != nil {
		return false, translate(res.Error, "template")
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	t.Version = expected + 1
	return true, nil
}

func (r *templateRepo) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.TextTemplate{}, "id = ?", id)
	if res.Error != nil {
		return translate(res.Error, "template")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("template not found")
	}
	return nil
}
