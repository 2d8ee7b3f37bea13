package notify

import (
	"context"

	"github.com/vasiliy-maslov/livestockmart/internal/order"
)

// MultiPublisher fans an event out to every configured publisher in order.
type MultiPublisher []order.EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event order.Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, event)
		}
	}
}

