// Package storefront ties catalog, variant resolution, cart, currency, shipping and payment
// together for a visitor session.
package storefront

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/currency"
	sferrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/payment"
	"github.com/abgdnv/storefront/internal/storage"
	"github.com/abgdnv/storefront/internal/variant"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/messaging/events"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
)

// ProductCatalog is the read side of the catalog the service needs.
type ProductCatalog interface {
	ProductByHandle(ctx context.Context, handle string) (*catalog.Product, error)
	Products(ctx context.Context, first int) ([]catalog.Product, error)
}

// Service is the storefront application service.
type Service struct {
	catalog          ProductCatalog
	sessions         *Sessions
	formatter        *currency.Formatter
	payments         payment.Provider
	publisher        messaging.Publisher
	threshold        decimal.Decimal
	logger           *slog.Logger
	cartMutations    metric.Int64Counter
	checkoutsCounter metric.Int64Counter
}

// Config carries the service settings that are not collaborators.
type Config struct {
	FreeShippingThreshold decimal.Decimal
	Sessions              SessionsConfig
}

// NewService wires the collaborators. The session registry is created here so the service
// can observe every cart it hands out.
func NewService(cfg Config, products ProductCatalog, st storage.Storage, formatter *currency.Formatter, detector currency.Detector,
	payments payment.Provider, publisher messaging.Publisher, logger *slog.Logger) (*Service, error) {

	meter := otel.Meter("storefront")
	cartMutations, err := meter.Int64Counter("cart_mutations", metric.WithDescription("Total number of successful cart mutations"))
	if err != nil {
		return nil, fmt.Errorf("failed to create cart_mutations counter: %w", err)
	}
	checkouts, err := meter.Int64Counter("checkouts_completed", metric.WithDescription("Total number of completed checkouts"))
	if err != nil {
		return nil, fmt.Errorf("failed to create checkouts_completed counter: %w", err)
	}
	if publisher == nil {
		publisher = messaging.NopPublisher{}
	}

	s := &Service{
		catalog:          products,
		formatter:        formatter,
		payments:         payments,
		publisher:        publisher,
		threshold:        cfg.FreeShippingThreshold,
		logger:           logger.With("component", "storefront"),
		cartMutations:    cartMutations,
		checkoutsCounter: checkouts,
	}
	s.sessions, err = NewSessions(cfg.Sessions, st, formatter.Table(), detector, s.observe, logger)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// observe counts every mutation of a session's cart.
func (s *Service) observe(sess *Session) {
	attrs := metric.WithAttributes(attribute.String("currency", sess.Cart.Currency()))
	sess.Cart.Subscribe(func(cart.Snapshot) {
		s.cartMutations.Add(context.Background(), 1, attrs)
	})
}

func (s *Service) Products(ctx context.Context, first int) ([]catalog.Product, error) {
	return s.catalog.Products(ctx, first)
}

// Product returns a product with its default selection and price range in the visitor's currency.
func (s *Service) Product(ctx context.Context, v Visitor, handle string) (*ProductView, error) {
	p, err := s.catalog.ProductByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	code := s.displayCurrency(ctx, v)
	return &ProductView{
		Product:          p,
		DefaultSelection: variant.DefaultSelection(p),
		DisplayMinPrice:  s.formatter.FormatPrice(p.PriceRange.Min.Amount, code),
		DisplayMaxPrice:  s.formatter.FormatPrice(p.PriceRange.Max.Amount, code),
	}, nil
}

// Resolve maps a selection to a variant. Not-purchasable outcomes are reported in the view,
// not as errors.
func (s *Service) Resolve(ctx context.Context, v Visitor, handle string, selection map[string]string) (*ResolutionView, error) {
	p, err := s.catalog.ProductByHandle(ctx, handle)
	if err != nil {
		return nil, err
	}
	res := variant.Resolve(p, selection)
	view := &ResolutionView{Status: res.Status, Purchasable: res.Purchasable(), Variant: res.Variant}
	if res.Variant != nil {
		view.DisplayPrice = s.formatter.FormatPrice(res.Variant.Price.Amount, s.displayCurrency(ctx, v))
	}
	return view, nil
}

func (s *Service) Cart(ctx context.Context, v Visitor) CartView {
	sess, release := s.sessions.Get(ctx, v.SessionID)
	defer release()
	return s.cartView(sess.Cart.Snapshot(), s.currentCurrency(ctx, sess, v))
}

// AddToCart resolves the selection and adds the variant. Only purchasable results are added.
func (s *Service) AddToCart(ctx context.Context, v Visitor, handle string, selection map[string]string, qty int) (CartView, error) {
	p, err := s.catalog.ProductByHandle(ctx, handle)
	if err != nil {
		return CartView{}, err
	}
	res := variant.Resolve(p, selection)
	switch res.Status {
	case variant.NotFound:
		return CartView{}, fmt.Errorf("%s: %w", handle, sferrors.ErrVariantNotFound)
	case variant.Incomplete:
		return CartView{}, fmt.Errorf("%s: %w", handle, sferrors.ErrSelectionIncomplete)
	case variant.Unavailable:
		return CartView{}, fmt.Errorf("%s/%s: %w", handle, res.Variant.ID, sferrors.ErrVariantUnavailable)
	}

	sess, release := s.sessions.Get(ctx, v.SessionID)
	defer release()
	err = sess.Cart.Add(ctx, cart.AddItem{
		Product:   p,
		Variant:   res.Variant,
		Quantity:  qty,
		Selection: res.Variant.SelectedOptions,
	})
	if err != nil {
		return CartView{}, err
	}
	s.logger.InfoContext(ctx, "Item added to cart", "session_id", v.SessionID, "variant_id", res.Variant.ID, "quantity", qty)
	return s.afterMutation(ctx, sess, v), nil
}

func (s *Service) UpdateLine(ctx context.Context, v Visitor, lineID string, qty int) (CartView, error) {
	sess, release := s.sessions.Get(ctx, v.SessionID)
	defer release()
	if err := sess.Cart.UpdateQuantity(ctx, lineID, qty); err != nil {
		return CartView{}, err
	}
	return s.afterMutation(ctx, sess, v), nil
}

func (s *Service) RemoveLine(ctx context.Context, v Visitor, lineID string) (CartView, error) {
	sess, release := s.sessions.Get(ctx, v.SessionID)
	defer release()
	if err := sess.Cart.Remove(ctx, lineID); err != nil {
		return CartView{}, err
	}
	return s.afterMutation(ctx, sess, v), nil
}

func (s *Service) ClearCart(ctx context.Context, v Visitor) (CartView, error) {
	sess, release := s.sessions.Get(ctx, v.SessionID)
	defer release()
	if err := sess.Cart.Clear(ctx); err != nil {
		return CartView{}, err
	}
	return s.afterMutation(ctx, sess, v), nil
}

func (s *Service) Shipping(ctx context.Context, v Visitor) ShippingView {
	sess, release := s.sessions.Get(ctx, v.SessionID)
	defer release()
	return s.shippingView(sess.Cart.Subtotal(), s.currentCurrency(ctx, sess, v))
}

func (s *Service) Currency(ctx context.Context, v Visitor) CurrencyView {
	sess, release := s.sessions.Get(ctx, v.SessionID)
	defer release()
	return CurrencyView{Choice: sess.Preference.Current(ctx, v.ClientIP), Supported: s.formatter.Supported()}
}

func (s *Service) SetCurrency(ctx context.Context, v Visitor, code string) (CurrencyView, error) {
	sess, release := s.sessions.Get(ctx, v.SessionID)
	defer release()
	choice, err := sess.Preference.SetExplicit(ctx, code)
	if err != nil {
		return CurrencyView{}, err
	}
	s.logger.InfoContext(ctx, "Currency selected", "session_id", v.SessionID, "currency", choice.Currency)
	return CurrencyView{Choice: choice, Supported: s.formatter.Supported()}, nil
}

func (s *Service) SetLocale(ctx context.Context, v Visitor, locale string) (string, error) {
	sess, release := s.sessions.Get(ctx, v.SessionID)
	defer release()
	return sess.Preference.SetLocale(ctx, locale)
}

func (s *Service) Session(ctx context.Context, v Visitor) SessionView {
	sess, release := s.sessions.Get(ctx, v.SessionID)
	defer release()
	return SessionView{
		SessionID:     v.SessionID,
		UserID:        v.UserID,
		Authenticated: v.UserID != "",
		Currency:      s.currentCurrency(ctx, sess, v),
		Locale:        sess.Preference.Locale(ctx),
		ItemCount:     sess.Cart.ItemCount(),
	}
}

// CreatePaymentSetup starts card collection with the payment provider.
func (s *Service) CreatePaymentSetup(ctx context.Context, v Visitor) (*payment.SetupIntent, error) {
	sess, release := s.sessions.Get(ctx, v.SessionID)
	defer release()
	if sess.Cart.ItemCount() == 0 {
		return nil, sferrors.ErrEmptyCart
	}
	return s.payments.CreateSetupIntent(ctx, v.customerRef())
}

// CompleteCheckout hands the cart off once the provider confirms a payment method is attached,
// then empties the cart.
func (s *Service) CompleteCheckout(ctx context.Context, v Visitor, setupIntentID string) (*CheckoutView, error) {
	sess, release := s.sessions.Get(ctx, v.SessionID)
	defer release()
	snap := sess.Cart.Snapshot()
	if len(snap.Lines) == 0 {
		return nil, sferrors.ErrEmptyCart
	}
	si, err := s.payments.SetupIntent(ctx, setupIntentID)
	if err != nil {
		return nil, err
	}
	if !si.Attached() {
		return nil, fmt.Errorf("setup intent %s is %s: %w", si.ID, si.Status, sferrors.ErrPaymentNotAttached)
	}

	code := s.currentCurrency(ctx, sess, v)
	view := &CheckoutView{
		CheckoutID:      uuid.NewString(),
		SetupIntentID:   si.ID,
		Lines:           s.lineViews(snap.Lines, code),
		Subtotal:        snap.Subtotal,
		DisplaySubtotal: s.formatter.FormatPrice(snap.Subtotal.Amount, code),
	}

	carrier := make(propagation.MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	event := events.CheckoutCompletedEvent{
		Carrier:       carrier,
		CheckoutID:    view.CheckoutID,
		SessionID:     v.SessionID,
		UserID:        v.UserID,
		SetupIntentID: si.ID,
		Items:         make([]events.CheckoutItem, 0, len(snap.Lines)),
		Subtotal:      snap.Subtotal.Amount.String(),
		Currency:      snap.Subtotal.CurrencyCode,
		CompletedAt:   time.Now().UTC(),
	}
	for _, l := range snap.Lines {
		event.Items = append(event.Items, events.CheckoutItem{
			VariantID: l.VariantID,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.Price.Amount.String(),
		})
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish CheckoutCompletedEvent", "checkout_id", view.CheckoutID, "error", err)
	}
	s.checkoutsCounter.Add(ctx, 1)

	if err := sess.Cart.Clear(ctx); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Checkout completed", "session_id", v.SessionID, "checkout_id", view.CheckoutID)
	return view, nil
}

// afterMutation publishes the new cart state and renders it.
func (s *Service) afterMutation(ctx context.Context, sess *Session, v Visitor) CartView {
	snap := sess.Cart.Snapshot()
	carrier := make(propagation.MapCarrier)
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	event := events.CartUpdatedEvent{
		Carrier:   carrier,
		SessionID: v.SessionID,
		UserID:    v.UserID,
		Version:   snap.Version,
		ItemCount: snap.ItemCount,
		Subtotal:  snap.Subtotal.Amount.String(),
		Currency:  snap.Subtotal.CurrencyCode,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish CartUpdatedEvent", "session_id", v.SessionID, "error", err)
	}
	return s.cartView(snap, s.currentCurrency(ctx, sess, v))
}

func (s *Service) currentCurrency(ctx context.Context, sess *Session, v Visitor) string {
	return sess.Preference.Current(ctx, v.ClientIP).Currency
}

// displayCurrency is the visitor's currency, or the base currency for requests without a session.
func (s *Service) displayCurrency(ctx context.Context, v Visitor) string {
	if v.SessionID == "" {
		return s.formatter.Table().Base()
	}
	sess, release := s.sessions.Get(ctx, v.SessionID)
	defer release()
	return s.currentCurrency(ctx, sess, v)
}
