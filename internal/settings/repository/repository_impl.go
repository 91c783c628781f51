package repository

import (
	"context"
	"errors"

	"github.com/smallbiznis/songgift/internal/settings/domain"
	"github.com/smallbiznis/songgift/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) GetOrCreate(ctx context.Context, conn *gorm.DB, defaults domain.Settings) (*domain.Settings, error) {
	row, err := r.find(ctx, conn)
	if err != nil || row != nil {
		return row, err
	}

	if err := conn.WithContext(ctx).Create(&defaults).Error; err != nil {
		// Another process may have created the singleton first.
		if !db.IsDuplicateKeyErr(err) {
			return nil, err
		}
		row, err = r.find(ctx, conn)
		if err != nil {
			return nil, err
		}
		if row == nil {
			return nil, gorm.ErrRecordNotFound
		}
		return row, nil
	}
	return &defaults, nil
}

func (r *repo) Save(ctx context.Context, conn *gorm.DB, settings *domain.Settings) error {
	settings.ID = domain.SingletonID
	return conn.WithContext(ctx).Save(settings).Error
}

func (r *repo) find(ctx context.Context, conn *gorm.DB) (*domain.Settings, error) {
	var row domain.Settings
	err := conn.WithContext(ctx).Where("id = ?", domain.SingletonID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
