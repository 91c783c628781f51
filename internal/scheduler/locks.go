package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/smallbiznis/songgift/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
	"go.uber.org/zap"
)

// ErrOrderBusy is returned to operators when a worker holds the order's lock.
var ErrOrderBusy = errors.New("order_busy")

// withOrderLock runs fn under key. A held lock is reported as acquired=false
// and counted, never waited on.
func (s *Scheduler) withOrderLock(ctx context.Context, job, key string, fn func(ctx context.Context) error) (bool, error) {
	acquired, err := s.locker.WithLock(ctx, key, fn)
	if err != nil {
		return acquired, err
	}
	if !acquired {
		obsmetrics.Scheduler().IncLockContention(job)
		s.logger(ctx).Debug("scheduler.lock.held",
			zap.String("job", job),
			zap.String("key", key),
			zap.String("backend", s.locker.Backend()),
		)
	}
	return acquired, nil
}

func (s *Scheduler) nextForGeneration(ctx context.Context) (*orderdomain.Order, error) {
	return s.orders.NextForGeneration(ctx, s.db)
}

func (s *Scheduler) nextForDelivery(ctx context.Context, now time.Time) (*orderdomain.Order, error) {
	return s.orders.NextForDelivery(ctx, s.db, now)
}

// markOrderFailed parks the order in failed with the error message. Only the
// operator retry path moves it back to processing.
func (s *Scheduler) markOrderFailed(ctx context.Context, orderID snowflake.ID, message string) error {
	return s.orders.Update(ctx, s.db, orderID, orderdomain.Fields{
		"status":        orderdomain.StatusFailed,
		"error_message": message,
		"updated_at":    s.clock.Now(),
	})
}
