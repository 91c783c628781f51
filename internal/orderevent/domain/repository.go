package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *Event) error
	CountByTypes(ctx context.Context, db *gorm.DB, orderID snowflake.ID, types []EventType) (int64, error)
	CountByTypesAfterLatest(ctx context.Context, db *gorm.DB, orderID snowflake.ID, marker EventType, types []EventType) (int64, error)
	ListByOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID) ([]*Event, error)
}
