package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type AppendRequest struct {
	OrderID snowflake.ID
	Type    EventType
	Message string
	Data    map[string]any
}

// Service is the order event sink and the query side used for idempotency
// and backoff decisions.
type Service interface {
	Append(ctx context.Context, req AppendRequest) (Event, error)
	Exists(ctx context.Context, orderID snowflake.ID, eventType EventType) (bool, error)
	Count(ctx context.Context, orderID snowflake.ID, types ...EventType) (int64, error)
	// ExistsSince and CountSince ignore events appended before the latest
	// event of type marker. Orders without a marker are counted in full.
	ExistsSince(ctx context.Context, orderID snowflake.ID, marker EventType, eventType EventType) (bool, error)
	CountSince(ctx context.Context, orderID snowflake.ID, marker EventType, types ...EventType) (int64, error)
	List(ctx context.Context, orderID snowflake.ID) ([]Event, error)
}

var (
	ErrInvalidOrderID = errors.New("invalid_order_id")
	ErrInvalidType    = errors.New("invalid_event_type")
)
