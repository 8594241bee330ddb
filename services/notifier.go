package services

import (
	"context"
	"errors"

	"carwash-ops-server/models"
)

// OrderEventNotifier receives order status events after they are committed
type OrderEventNotifier interface {
	PublishOrderStatus(ctx context.Context, event models.OrderStatusEvent) error
}

// FanoutNotifier forwards each event to every notifier and joins their errors
type FanoutNotifier []OrderEventNotifier

func (f FanoutNotifier) PublishOrderStatus(ctx context.Context, event models.OrderStatusEvent) error {
	var errs []error
	for _, n := range f {
		if n == nil {
			continue
		}
		if err := n.PublishOrderStatus(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
