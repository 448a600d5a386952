package database

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"flowdesk/internal/apperr"
	"flowdesk/internal/models"
)

type directoryRepo struct {
	db *gorm.DB
}

func (r *directoryRepo) Get(ctx context.Context, id string) (*models.DirectoryEntry, error) {
	var e models.DirectoryEntry
	if err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error; err != nil {
		return nil, translate(err, "directory entry")
	}
	return &e, nil
}

// FindByIDs resolves many entries in one read. Missing ids are skipped.
func (r *directoryRepo) FindByIDs(ctx context.Context, ids []string) ([]models.DirectoryEntry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var entries []models.DirectoryEntry
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&entries).Error
	return entries, translate(err, "directory entries")
}

func (r *directoryRepo) ListByCompany(ctx context.Context, companyID string) ([]models.DirectoryEntry, error) {
	var entries []models.DirectoryEntry
	err := r.db.WithContext(ctx).
		Where("company_id = ?", companyID).
		Order("full_name ASC, id ASC").
		Find(&entries).Error
	return entries, translate(err, "directory entries")
}

func (r *directoryRepo) Create(ctx context.Context, e *models.DirectoryEntry) error {
	return translate(r.db.WithContext(ctx).Create(e).Error, "directory entry")
}

func (r *directoryRepo) CreateIfMissing(ctx context.Context, e *models.DirectoryEntry) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(e)
	if res.Error != nil {
		return false, translate(res.Error, "directory entry")
	}
	return res.RowsAffected > 0, nil
}

// Update writes every mutable column of e.
func (r *directoryRepo) Update(ctx context.Context, e *models.DirectoryEntry) error {
	res := r.db.WithContext(ctx).Model(&models.DirectoryEntry{}).
		Where("id = ?", e.ID).
		Updates(map[string]any{
			"email":      e.Email,
			"full_name":  e.FullName,
			"role":       e.Role,
			"company_id": e.CompanyID,
			"department": e.Department,
			"status":     e.Status,
			"updated_at": e.UpdatedAt,
		})
	if res.Error != nil {
		return translate(res.Error, "directory entry")
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("directory entry not found")
	}
	return nil
}

type companyRepo struct {
	db *gorm.DB
}

func (r *companyRepo) Create(ctx context.Context, c *models.Company) error {
	return translate(r.db.WithContext(ctx).Create(c).Error, "company")
}

func (r *companyRepo) Get(ctx context.Context, id string) (*models.Company, error) {
	var c models.Company
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err, "company")
	}
	return &c, nil
}
