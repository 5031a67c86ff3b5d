// Package messaging defines the events the storefront emits and the publisher contract.
package messaging

import (
	"context"
)

const (
	CartUpdatedSubject       = "storefront.cart.updated"
	CheckoutCompletedSubject = "storefront.checkout.completed"
)

type Event interface {
	Subject() string
	Payload() ([]byte, error)
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event. Used when NATS is disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
