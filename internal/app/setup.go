// Package app contains the application setup for the storefront service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/abgdnv/storefront/internal/config"
	"github.com/abgdnv/storefront/internal/currency"
	"github.com/abgdnv/storefront/internal/payment"
	"github.com/abgdnv/storefront/internal/storage"
	"github.com/abgdnv/storefront/internal/storefront"
	"github.com/abgdnv/storefront/internal/transport/rest"
	"github.com/abgdnv/storefront/pkg/auth"
	"github.com/abgdnv/storefront/pkg/client/resilience"
	"github.com/abgdnv/storefront/pkg/messaging"
	"github.com/abgdnv/storefront/pkg/server"
	"github.com/abgdnv/storefront/pkg/web"
	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Dependencies struct {
	Storefront *storefront.Service
	Verifier   auth.Verifier
	Metrics    http.Handler
	Session    web.SessionCookie
	Logger     *slog.Logger
}

// SetupDependencies builds the outbound clients and the storefront service.
// A nil verifier leaves every visitor anonymous.
func SetupDependencies(cfg *config.Config, st storage.Storage, publisher messaging.Publisher, verifier auth.Verifier, metrics http.Handler, logger *slog.Logger) (*Dependencies, error) {
	table, err := cfg.Currency.Table()
	if err != nil {
		return nil, err
	}
	threshold, err := cfg.Shipping.Threshold()
	if err != nil {
		return nil, err
	}

	catalogClient := &http.Client{
		Timeout:   cfg.Catalog.Timeout,
		Transport: guarded("catalog", cfg),
	}
	querier := catalog.NewGraphQLClient(cfg.Catalog.Endpoint, cfg.Catalog.Token, catalogClient, cfg.Resilience.Retry, logger)
	products := catalog.NewService(querier, logger)

	var detector currency.Detector = currency.StaticDetector{Currency: table.Base()}
	if cfg.Geo.Enabled {
		geoClient := &http.Client{Transport: guarded("geolocation", cfg)}
		detector = currency.NewGeoDetector(cfg.Geo.Endpoint, geoClient, cfg.Geo.Timeout, table, logger)
	}

	paymentClient := &http.Client{
		Timeout:   cfg.Payment.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	payments := payment.NewHTTPProvider(cfg.Payment.BaseURL, cfg.Payment.SecretKey, paymentClient, logger)

	svc, err := storefront.NewService(storefront.Config{
		FreeShippingThreshold: threshold,
		Sessions: storefront.SessionsConfig{
			Size:          cfg.Session.CacheSize,
			BaseCurrency:  table.Base(),
			DefaultLocale: cfg.Currency.DefaultLocale,
		},
	}, products, st, currency.NewFormatter(table), detector, payments, publisher, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storefront service: %w", err)
	}

	return &Dependencies{
		Storefront: svc,
		Verifier:   verifier,
		Metrics:    metrics,
		Session: web.SessionCookie{
			Name:   cfg.Session.CookieName,
			MaxAge: cfg.Session.MaxAge,
			Secure: cfg.Session.Secure,
		},
		Logger: logger,
	}, nil
}

// guarded returns a traced transport behind a circuit breaker.
func guarded(name string, cfg *config.Config) http.RoundTripper {
	breaker := resilience.NewCircuitBreaker(name, cfg.Resilience.CircuitBreaker)
	return resilience.NewTransport(otelhttp.NewTransport(http.DefaultTransport), breaker)
}

// NewVerifier creates the JWT verifier when the identity provider is enabled.
func NewVerifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.Verifier, error) {
	if !cfg.IdP.Enabled {
		logger.Info("Identity provider disabled, all visitors are anonymous")
		return nil, nil
	}
	verifier, err := auth.NewJWTVerifier(ctx, cfg.IdP, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWT verifier: %w", err)
	}
	return verifier, nil
}

// SetupHttpHandler initializes the router with its middleware and routes.
// Used by tests to exercise the full HTTP stack.
func SetupHttpHandler(deps *Dependencies) http.Handler {
	mux := server.NewChiRouter(deps.Logger)
	wireRoutes(mux, deps)
	return mux
}

// wireRoutes sets up the HTTP routes for the storefront application.
func wireRoutes(mux *chi.Mux, deps *Dependencies) {
	handler := rest.NewHandler(deps.Storefront, deps.Logger)
	mux.Get("/healthz", handler.HealthCheck)
	if deps.Metrics != nil {
		mux.Method(http.MethodGet, "/metrics", deps.Metrics)
	}
	mux.Group(func(r chi.Router) {
		r.Use(web.Session(deps.Session))
		r.Use(web.OptionalAuth(deps.Verifier, deps.Logger))
		handler.RegisterRoutes(r)
	})
}

// SetupHttpServer creates and configures an HTTP server for the storefront application.
func SetupHttpServer(deps *Dependencies, cfg *config.Config, serviceName string) *http.Server {
	mux := SetupHttpHandler(deps)

	httpCfg := server.HTTPConfig{
		Port:           cfg.HTTPServer.Port,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		ReadTimeout:    cfg.HTTPServer.Timeout.Read,
		WriteTimeout:   cfg.HTTPServer.Timeout.Write,
		IdleTimeout:    cfg.HTTPServer.Timeout.Idle,
		ReadHeader:     cfg.HTTPServer.Timeout.ReadHeader,
	}

	return server.NewHTTPServer(httpCfg, serviceName, mux)
}
