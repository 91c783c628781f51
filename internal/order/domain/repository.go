package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/songgift/pkg/db/pagination"
	"gorm.io/gorm"
)

// Fields is a column-name keyed partial update.
type Fields map[string]any

type ListOrderFilter struct {
	Status         Status
	DeliveryStatus DeliveryStatus
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	FindByMusicTaskID(ctx context.Context, db *gorm.DB, taskID string) (*Order, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields Fields) error
	// SetTrackURLIfEmpty writes trackUrl only when still null and reports whether it did.
	SetTrackURLIfEmpty(ctx context.Context, db *gorm.DB, id snowflake.ID, trackURL string, now time.Time) (bool, error)
	NextForGeneration(ctx context.Context, db *gorm.DB) (*Order, error)
	NextForDelivery(ctx context.Context, db *gorm.DB, now time.Time) (*Order, error)
	List(ctx context.Context, db *gorm.DB, filter ListOrderFilter, page pagination.Pagination) ([]*Order, error)
}
