package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/songgift/internal/orderevent/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.Event) error {
	return db.WithContext(ctx).Create(event).Error
}

func (r *repo) CountByTypes(ctx context.Context, db *gorm.DB, orderID snowflake.ID, types []domain.EventType) (int64, error) {
	if len(types) == 0 {
		return 0, nil
	}
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM order_events WHERE order_id = ? AND type IN ?`,
		orderID,
		types,
	).Scan(&count).Error
	return count, err
}

// CountByTypesAfterLatest relies on ulid ids sorting in append order.
func (r *repo) CountByTypesAfterLatest(ctx context.Context, db *gorm.DB, orderID snowflake.ID, marker domain.EventType, types []domain.EventType) (int64, error) {
	if len(types) == 0 {
		return 0, nil
	}
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM order_events
		 WHERE order_id = ? AND type IN ?
		   AND id > COALESCE((SELECT MAX(m.id) FROM order_events m WHERE m.order_id = ? AND m.type = ?), '')`,
		orderID,
		types,
		orderID,
		marker,
	).Scan(&count).Error
	return count, err
}

func (r *repo) ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]*domain.Event, error) {
	var events []*domain.Event
	err := db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&events).Error
	return events, err
}
