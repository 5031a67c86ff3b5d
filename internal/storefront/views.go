package storefront

import (
	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/currency"
	"github.com/abgdnv/storefront/internal/shipping"
	"github.com/abgdnv/storefront/internal/variant"
)

// Visitor identifies who a request is for.
type Visitor struct {
	SessionID string
	UserID    string
	ClientIP  string
}

// customerRef is what the payment provider knows the visitor by.
func (v Visitor) customerRef() string {
	if v.UserID != "" {
		return v.UserID
	}
	return v.SessionID
}

type ProductView struct {
	*catalog.Product
	DefaultSelection map[string]string `json:"default_selection"`
	DisplayMinPrice  string            `json:"display_min_price"`
	DisplayMaxPrice  string            `json:"display_max_price"`
}

type ResolutionView struct {
	Status       variant.Status   `json:"status"`
	Purchasable  bool             `json:"purchasable"`
	Variant      *catalog.Variant `json:"variant,omitempty"`
	DisplayPrice string           `json:"display_price,omitempty"`
}

type LineView struct {
	cart.Line
	ID           string `json:"id"`
	DisplayPrice string `json:"display_price"`
	DisplayTotal string `json:"display_total"`
}

type ShippingView struct {
	Threshold        catalog.Money `json:"threshold"`
	Remaining        catalog.Money `json:"remaining"`
	DisplayThreshold string        `json:"display_threshold"`
	DisplayRemaining string        `json:"display_remaining"`
	Percent          float64       `json:"percent"`
	Qualifies        bool          `json:"qualifies"`
}

// CartView is the cart as shown to the visitor: base amounts plus display strings in the
// session currency.
type CartView struct {
	Version         uint64        `json:"version"`
	Lines           []LineView    `json:"lines"`
	ItemCount       int           `json:"item_count"`
	Subtotal        catalog.Money `json:"subtotal"`
	DisplayCurrency string        `json:"display_currency"`
	DisplaySubtotal string        `json:"display_subtotal"`
	Shipping        ShippingView  `json:"shipping"`
}

type CurrencyView struct {
	currency.Choice
	Supported []string `json:"supported"`
}

type SessionView struct {
	SessionID     string `json:"session_id"`
	UserID        string `json:"user_id,omitempty"`
	Authenticated bool   `json:"authenticated"`
	Currency      string `json:"currency"`
	Locale        string `json:"locale"`
	ItemCount     int    `json:"item_count"`
}

type CheckoutView struct {
	CheckoutID      string        `json:"checkout_id"`
	SetupIntentID   string        `json:"setup_intent_id"`
	Lines           []LineView    `json:"lines"`
	Subtotal        catalog.Money `json:"subtotal"`
	DisplaySubtotal string        `json:"display_subtotal"`
}

func (s *Service) lineViews(lines []cart.Line, code string) []LineView {
	out := make([]LineView, 0, len(lines))
	for _, l := range lines {
		out = append(out, LineView{
			Line:         l,
			ID:           l.ID(),
			DisplayPrice: s.formatter.FormatPrice(l.Price.Amount, code),
			DisplayTotal: s.formatter.FormatPrice(l.Total().Amount, code),
		})
	}
	return out
}

func (s *Service) shippingView(subtotal catalog.Money, code string) ShippingView {
	p := shipping.ComputeProgress(subtotal.Amount, s.threshold)
	return ShippingView{
		Threshold:        catalog.Money{Amount: s.threshold, CurrencyCode: subtotal.CurrencyCode},
		Remaining:        catalog.Money{Amount: p.Remaining, CurrencyCode: subtotal.CurrencyCode},
		DisplayThreshold: s.formatter.FormatPrice(s.threshold, code),
		DisplayRemaining: s.formatter.FormatPrice(p.Remaining, code),
		Percent:          p.Percent,
		Qualifies:        p.Qualifies,
	}
}

func (s *Service) cartView(snap cart.Snapshot, code string) CartView {
	return CartView{
		Version:         snap.Version,
		Lines:           s.lineViews(snap.Lines, code),
		ItemCount:       snap.ItemCount,
		Subtotal:        snap.Subtotal,
		DisplayCurrency: code,
		DisplaySubtotal: s.formatter.FormatPrice(snap.Subtotal.Amount, code),
		Shipping:        s.shippingView(snap.Subtotal, code),
	}
}
