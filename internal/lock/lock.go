// Package lock provides named, non-blocking mutual exclusion shared between
// worker processes.
package lock

import (
	"context"
	"errors"
)

var ErrEmptyKey = errors.New("lock key is empty")

// Locker runs fn while holding key. When key is already held elsewhere it
// returns acquired=false without calling fn; it never waits.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) (acquired bool, err error)
	Backend() string
}

func GenerationKey(orderID string) string { return "gen:" + orderID }

func DeliveryKey(orderID string) string { return "del:" + orderID }
