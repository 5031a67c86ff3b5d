// Package rest provides the storefront HTTP API.
package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/currency"
	sferrors "github.com/abgdnv/storefront/internal/errors"
	"github.com/abgdnv/storefront/internal/payment"
	"github.com/abgdnv/storefront/internal/storefront"
	"github.com/abgdnv/storefront/internal/variant"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

// Storefront is the application service the handlers call.
type Storefront interface {
	Products(ctx context.Context, first int) ([]catalog.Product, error)
	Product(ctx context.Context, v storefront.Visitor, handle string) (*storefront.ProductView, error)
	Resolve(ctx context.Context, v storefront.Visitor, handle string, selection map[string]string) (*storefront.ResolutionView, error)
	Cart(ctx context.Context, v storefront.Visitor) storefront.CartView
	AddToCart(ctx context.Context, v storefront.Visitor, handle string, selection map[string]string, qty int) (storefront.CartView, error)
	UpdateLine(ctx context.Context, v storefront.Visitor, lineID string, qty int) (storefront.CartView, error)
	RemoveLine(ctx context.Context, v storefront.Visitor, lineID string) (storefront.CartView, error)
	ClearCart(ctx context.Context, v storefront.Visitor) (storefront.CartView, error)
	Shipping(ctx context.Context, v storefront.Visitor) storefront.ShippingView
	Currency(ctx context.Context, v storefront.Visitor) storefront.CurrencyView
	SetCurrency(ctx context.Context, v storefront.Visitor, code string) (storefront.CurrencyView, error)
	SetLocale(ctx context.Context, v storefront.Visitor, locale string) (string, error)
	Session(ctx context.Context, v storefront.Visitor) storefront.SessionView
	CreatePaymentSetup(ctx context.Context, v storefront.Visitor) (*payment.SetupIntent, error)
	CompleteCheckout(ctx context.Context, v storefront.Visitor, setupIntentID string) (*storefront.CheckoutView, error)
}

type ResolveRequest struct {
	Selection map[string]string `json:"selection" validate:"omitempty,dive,keys,required,endkeys,required"`
}

type AddItemRequest struct {
	Handle    string            `json:"handle" validate:"required"`
	Selection map[string]string `json:"selection" validate:"omitempty,dive,keys,required,endkeys,required"`
	Quantity  int               `json:"quantity" validate:"required,gte=1,lte=999"`
}

type UpdateItemRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0,lte=999"`
}

type CurrencyRequest struct {
	Currency string `json:"currency" validate:"required,len=3,alpha"`
}

type LocaleRequest struct {
	Locale string `json:"locale" validate:"required,max=35"`
}

type CompleteCheckoutRequest struct {
	SetupIntentID string `json:"setup_intent_id" validate:"required"`
}

type ResolutionError struct {
	Error  string         `json:"error"`
	Status variant.Status `json:"status"`
}

type Handler struct {
	service  Storefront
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler creates a new Handler for the storefront API.
func NewHandler(service Storefront, logger *slog.Logger) *Handler {
	return &Handler{
		service:  service,
		validate: validator.New(),
		logger:   logger.With("component", "rest"),
	}
}

// RegisterRoutes registers the storefront API under /api/v1. Session and auth middleware are
// expected to run before these handlers.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/products", func(r chi.Router) {
			r.Get("/", h.Products)
			r.Get("/{handle}", h.Product)
			r.Post("/{handle}/resolve", h.Resolve)
		})
		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.Cart)
			r.Delete("/", h.ClearCart)
			r.Get("/shipping", h.Shipping)
			r.Post("/items", h.AddItem)
			r.Put("/items/{lineID}", h.UpdateItem)
			r.Delete("/items/{lineID}", h.RemoveItem)
		})
		r.Route("/preferences", func(r chi.Router) {
			r.Get("/currency", h.Currency)
			r.Put("/currency", h.SetCurrency)
			r.Put("/locale", h.SetLocale)
		})
		r.Get("/session", h.Session)
		r.Route("/checkout", func(r chi.Router) {
			r.Post("/setup-intent", h.CreateSetupIntent)
			r.Post("/complete", h.CompleteCheckout)
		})
	})
}

// Products lists the catalog. A catalog failure is reported as an error, never as an empty list.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	first, ok := web.ParseIntParam(r, w, mLogger, "first", 20, web.Between(1, 250))
	if !ok {
		return
	}
	list, err := h.service.Products(r.Context(), first)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.DebugContext(r.Context(), "Successfully retrieved product list", "count", len(list))
	web.RespondJSON(w, mLogger, http.StatusOK, list)
}

func (h *Handler) Product(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	handle := chi.URLParam(r, "handle")
	view, err := h.service.Product(r.Context(), visitor(r), handle)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, view)
}

// Resolve reports the variant for a selection. Non-purchasable outcomes are a normal 200 response.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req ResolveRequest
	if !web.DecodeAndValidate(w, r, mLogger, h.validate, &req) {
		return
	}
	view, err := h.service.Resolve(r.Context(), visitor(r), chi.URLParam(r, "handle"), req.Selection)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, view)
}

func (h *Handler) Cart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	web.RespondJSON(w, mLogger, http.StatusOK, h.service.Cart(r.Context(), visitor(r)))
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req AddItemRequest
	if !web.DecodeAndValidate(w, r, mLogger, h.validate, &req) {
		return
	}
	mLogger.DebugContext(r.Context(), "Received request to add item", "handle", req.Handle, "quantity", req.Quantity)
	view, err := h.service.AddToCart(r.Context(), visitor(r), req.Handle, req.Selection, req.Quantity)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, view)
}

// UpdateItem sets a line quantity. Zero removes the line.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req UpdateItemRequest
	if !web.DecodeAndValidate(w, r, mLogger, h.validate, &req) {
		return
	}
	view, err := h.service.UpdateLine(r.Context(), visitor(r), chi.URLParam(r, "lineID"), *req.Quantity)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, view)
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	view, err := h.service.RemoveLine(r.Context(), visitor(r), chi.URLParam(r, "lineID"))
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, view)
}

func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	view, err := h.service.ClearCart(r.Context(), visitor(r))
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, view)
}

func (h *Handler) Shipping(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	web.RespondJSON(w, mLogger, http.StatusOK, h.service.Shipping(r.Context(), visitor(r)))
}

func (h *Handler) Currency(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	web.RespondJSON(w, mLogger, http.StatusOK, h.service.Currency(r.Context(), visitor(r)))
}

func (h *Handler) SetCurrency(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req CurrencyRequest
	if !web.DecodeAndValidate(w, r, mLogger, h.validate, &req) {
		return
	}
	view, err := h.service.SetCurrency(r.Context(), visitor(r), req.Currency)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, view)
}

func (h *Handler) SetLocale(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req LocaleRequest
	if !web.DecodeAndValidate(w, r, mLogger, h.validate, &req) {
		return
	}
	locale, err := h.service.SetLocale(r.Context(), visitor(r), req.Locale)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, LocaleRequest{Locale: locale})
}

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	web.RespondJSON(w, mLogger, http.StatusOK, h.service.Session(r.Context(), visitor(r)))
}

func (h *Handler) CreateSetupIntent(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	si, err := h.service.CreatePaymentSetup(r.Context(), visitor(r))
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	mLogger.InfoContext(r.Context(), "Setup intent created", "setup_intent_id", si.ID)
	web.RespondJSON(w, mLogger, http.StatusCreated, si)
}

func (h *Handler) CompleteCheckout(w http.ResponseWriter, r *http.Request) {
	mLogger := h.loggerWithReqID(r)
	var req CompleteCheckoutRequest
	if !web.DecodeAndValidate(w, r, mLogger, h.validate, &req) {
		return
	}
	view, err := h.service.CompleteCheckout(r.Context(), visitor(r), req.SetupIntentID)
	if err != nil {
		h.respondServiceError(w, r, mLogger, err)
		return
	}
	web.RespondJSON(w, mLogger, http.StatusOK, view)
}

// HealthCheck is a simple health check endpoint.
func (h *Handler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// respondServiceError maps service errors to HTTP responses.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, mLogger *slog.Logger, err error) {
	ctx := r.Context()
	var perr *payment.ProviderError
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		mLogger.WarnContext(ctx, "Product not found", "error", err)
		web.RespondError(w, mLogger, http.StatusNotFound, "product not found")
	case errors.Is(err, catalog.ErrLoadFailed), errors.Is(err, catalog.ErrInvalidCatalogData):
		mLogger.ErrorContext(ctx, "Error loading products", "error", err)
		web.RespondError(w, mLogger, http.StatusBadGateway, "failed to load products")
	case errors.Is(err, sferrors.ErrVariantNotFound):
		h.respondResolution(w, mLogger, err, variant.NotFound)
	case errors.Is(err, sferrors.ErrSelectionIncomplete):
		h.respondResolution(w, mLogger, err, variant.Incomplete)
	case errors.Is(err, sferrors.ErrVariantUnavailable):
		h.respondResolution(w, mLogger, err, variant.Unavailable)
	case errors.Is(err, cart.ErrLineNotFound):
		web.RespondError(w, mLogger, http.StatusNotFound, "cart line not found")
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, currency.ErrUnsupportedCurrency),
		errors.Is(err, currency.ErrUnsupportedLocale):
		mLogger.WarnContext(ctx, "Rejected request", "error", err)
		web.RespondError(w, mLogger, http.StatusBadRequest, err.Error())
	case errors.Is(err, cart.ErrCurrencyMismatch):
		mLogger.ErrorContext(ctx, "Product priced in a foreign currency", "error", err)
		web.RespondError(w, mLogger, http.StatusConflict, "product cannot be added to this cart")
	case errors.Is(err, sferrors.ErrEmptyCart):
		web.RespondError(w, mLogger, http.StatusConflict, "cart is empty")
	case errors.Is(err, sferrors.ErrPaymentNotAttached):
		web.RespondError(w, mLogger, http.StatusPaymentRequired, "no payment method attached")
	case errors.As(err, &perr):
		web.RespondError(w, mLogger, http.StatusBadGateway, perr.Message)
	case errors.Is(err, payment.ErrProviderUnavailable):
		mLogger.ErrorContext(ctx, "Payment provider unavailable", "error", err)
		web.RespondError(w, mLogger, http.StatusBadGateway, "payment provider unavailable")
	default:
		mLogger.ErrorContext(ctx, "Unexpected error", "error", err)
		web.RespondError(w, mLogger, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) respondResolution(w http.ResponseWriter, mLogger *slog.Logger, err error, status variant.Status) {
	mLogger.Debug("Selection is not purchasable", "status", status, "error", err)
	web.RespondJSON(w, mLogger, http.StatusConflict, ResolutionError{Error: err.Error(), Status: status})
}

// loggerWithReqID creates a logger with the request ID from the context.
func (h *Handler) loggerWithReqID(r *http.Request) *slog.Logger {
	reqID := middleware.GetReqID(r.Context())
	return h.logger.With("request_id", reqID)
}

func visitor(r *http.Request) storefront.Visitor {
	sessionID, _ := web.GetSessionID(r.Context())
	userID, _ := web.GetUserID(r.Context())
	return storefront.Visitor{SessionID: sessionID, UserID: userID, ClientIP: web.ClientIP(r)}
}
