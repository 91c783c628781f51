package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, tmpl *Template) error
	ListActive(ctx context.Context, db *gorm.DB) ([]Template, error)
	ListByType(ctx context.Context, db *gorm.DB, t Type) ([]Template, error)
	MaxVersion(ctx context.Context, db *gorm.DB, t Type) (int, error)
	Deactivate(ctx context.Context, db *gorm.DB, t Type) error
	Count(ctx context.Context, db *gorm.DB) (int64, error)
}
