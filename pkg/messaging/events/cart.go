package events

import (
	"encoding/json"
	"time"

	"github.com/abgdnv/storefront/pkg/messaging"
	"go.opentelemetry.io/otel/propagation"
)

// CartUpdatedEvent is emitted after every successful cart mutation.
type CartUpdatedEvent struct {
	Carrier   propagation.MapCarrier `json:"carrier,omitempty"`
	SessionID string                 `json:"session_id"`
	UserID    string                 `json:"user_id,omitempty"`
	Version   uint64                 `json:"version"`
	ItemCount int                    `json:"item_count"`
	Subtotal  string                 `json:"subtotal"`
	Currency  string                 `json:"currency"`
	UpdatedAt time.Time              `json:"updated_at"`
}

func (e CartUpdatedEvent) Subject() string {
	return messaging.CartUpdatedSubject
}

func (e CartUpdatedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}

// CheckoutItem is one purchased line of a completed checkout.
type CheckoutItem struct {
	VariantID string `json:"variant_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// CheckoutCompletedEvent is emitted once a payment method is attached and the cart is handed off.
type CheckoutCompletedEvent struct {
	Carrier       propagation.MapCarrier `json:"carrier,omitempty"`
	CheckoutID    string                 `json:"checkout_id"`
	SessionID     string                 `json:"session_id"`
	UserID        string                 `json:"user_id,omitempty"`
	SetupIntentID string                 `json:"setup_intent_id"`
	Items         []CheckoutItem         `json:"items"`
	Subtotal      string                 `json:"subtotal"`
	Currency      string                 `json:"currency"`
	CompletedAt   time.Time              `json:"completed_at"`
}

func (e CheckoutCompletedEvent) Subject() string {
	return messaging.CheckoutCompletedSubject
}

func (e CheckoutCompletedEvent) Payload() ([]byte, error) {
	return json.Marshal(e)
}
