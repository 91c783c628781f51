// Package guard holds the state preconditions for operator actions on orders.
package guard

import (
	"errors"

	orderdomain "github.com/smallbiznis/songgift/internal/order/domain"
)

var (
	ErrOrderNotConfirmed = errors.New("order_not_confirmed")
	ErrOrderNotCompleted = errors.New("order_not_completed")
	ErrOrderHasNoTrack   = errors.New("order_has_no_track")
)

// EnsureCanRetryGeneration rejects orders the customer has not confirmed yet.
func EnsureCanRetryGeneration(status orderdomain.Status) error {
	if status == orderdomain.StatusCreated {
		return ErrOrderNotConfirmed
	}
	return nil
}

func EnsureCanResend(order *orderdomain.Order) error {
	if order.Status != orderdomain.StatusCompleted {
		return ErrOrderNotCompleted
	}
	if !order.HasTrack() {
		return ErrOrderHasNoTrack
	}
	return nil
}
