package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/songgift/internal/order/domain"
	"github.com/smallbiznis/songgift/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	return first(db.WithContext(ctx).Where("id = ?", id))
}

func (r *repo) FindByMusicTaskID(ctx context.Context, db *gorm.DB, taskID string) (*domain.Order, error) {
	return first(db.WithContext(ctx).
		Where("music_task_id = ?", taskID).
		Order("created_at DESC"))
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields domain.Fields) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		values[k] = v
	}
	if _, ok := values["updated_at"]; !ok {
		values["updated_at"] = time.Now().UTC()
	}
	return db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("id = ?", id).
		Updates(values).Error
}

func (r *repo) SetTrackURLIfEmpty(ctx context.Context, db *gorm.DB, id snowflake.ID, trackURL string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders SET track_url = ?, updated_at = ? WHERE id = ? AND track_url IS NULL`,
		trackURL,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) NextForGeneration(ctx context.Context, db *gorm.DB) (*domain.Order, error) {
	return first(db.WithContext(ctx).
		Where("status = ? AND generation_completed_at IS NULL", domain.StatusProcessing).
		Order("created_at ASC").
		Order("id ASC"))
}

func (r *repo) NextForDelivery(ctx context.Context, db *gorm.DB, now time.Time) (*domain.Order, error) {
	return first(db.WithContext(ctx).
		Where("status = ? AND delivered_at IS NULL", domain.StatusCompleted).
		Where("delivery_scheduled_at IS NOT NULL AND delivery_scheduled_at <= ?", now).
		Where("delivery_status IN ?", []domain.DeliveryStatus{domain.DeliveryPending, domain.DeliveryScheduled}).
		Order("created_at ASC").
		Order("id ASC"))
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListOrderFilter, page pagination.Pagination) ([]*domain.Order, error) {
	stmt := db.WithContext(ctx).Model(&domain.Order{})
	if filter.Status != "" {
		stmt = stmt.Where("status = ?", filter.Status)
	}
	if filter.DeliveryStatus != "" {
		stmt = stmt.Where("delivery_status = ?", filter.DeliveryStatus)
	}

	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
	}

	var orders []*domain.Order
	err := stmt.
		Order("created_at DESC").
		Order("id DESC").
		Limit(page.Limit() + 1).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	return orders, nil
}

func first(stmt *gorm.DB) (*domain.Order, error) {
	var order domain.Order
	err := stmt.Limit(1).Take(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}
