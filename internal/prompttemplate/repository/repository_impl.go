package repository

import (
	"context"

	"github.com/smallbiznis/songgift/internal/prompttemplate/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tmpl *domain.Template) error {
	return db.WithContext(ctx).Create(tmpl).Error
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]domain.Template, error) {
	var items []domain.Template
	err := db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("type ASC").
		Order("version DESC").
		Find(&items).Error
	return items, err
}

func (r *repo) ListByType(ctx context.Context, db *gorm.DB, t domain.Type) ([]domain.Template, error) {
	var items []domain.Template
	err := db.WithContext(ctx).
		Where("type = ?", t).
		Order("version DESC").
		Find(&items).Error
	return items, err
}

func (r *repo) MaxVersion(ctx context.Context, db *gorm.DB, t domain.Type) (int, error) {
	var version int
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(version), 0) FROM prompt_templates WHERE type = ?`, t,
	).Scan(&version).Error
	return version, err
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, t domain.Type) error {
	return db.WithContext(ctx).Exec(
		`UPDATE prompt_templates SET is_active = ? WHERE type = ? AND is_active = ?`,
		false, t, true,
	).Error
}

func (r *repo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.Template{}).Count(&count).Error
	return count, err
}
