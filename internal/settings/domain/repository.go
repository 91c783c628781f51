package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	GetOrCreate(ctx context.Context, db *gorm.DB, defaults Settings) (*Settings, error)
	Save(ctx context.Context, db *gorm.DB, settings *Settings) error
}
