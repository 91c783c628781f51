// Package testing moves order timestamps so scheduler tests can reach due
// states without waiting on wall time.
package testing

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
	"gorm.io/gorm"
)

// TimeAccelerator rewrites scheduling columns directly.
type TimeAccelerator struct {
	db *gorm.DB
}

func NewTimeAccelerator(db *gorm.DB) *TimeAccelerator {
	return &TimeAccelerator{db: db}
}

// MakeDeliveryDue moves an undelivered order's delivery schedule to just before now.
func (ta *TimeAccelerator) MakeDeliveryDue(ctx context.Context, orderID snowflake.ID, now time.Time) error {
	return ta.db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET delivery_scheduled_at = ?, updated_at = ?
		 WHERE id = ? AND delivered_at IS NULL`,
		now.Add(-time.Second),
		now,
		orderID,
	).Error
}

// MakeAllDeliveriesDue does the same for every order still waiting on delivery.
func (ta *TimeAccelerator) MakeAllDeliveriesDue(ctx context.Context, now time.Time) (int64, error) {
	result := ta.db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET delivery_scheduled_at = ?, updated_at = ?
		 WHERE status = ? AND delivered_at IS NULL AND delivery_scheduled_at > ?`,
		now.Add(-time.Second),
		now,
		orderdomain.StatusCompleted,
		now,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// AgeGeneration backdates generation_started_at, e.g. to pass the completion timeout.
func (ta *TimeAccelerator) AgeGeneration(ctx context.Context, orderID snowflake.ID, by time.Duration) error {
	var order orderdomain.Order
	if err := ta.db.WithContext(ctx).Where("id = ?", orderID).Take(&order).Error; err != nil {
		return err
	}
	if order.GenerationStartedAt == nil {
		return nil
	}
	return ta.db.WithContext(ctx).Exec(
		`UPDATE orders SET generation_started_at = ? WHERE id = ?`,
		order.GenerationStartedAt.Add(-by),
		orderID,
	).Error
}
