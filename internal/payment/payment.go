// Package payment talks to the external payment-setup provider. Card collection happens in the
// provider's hosted elements; the storefront only creates setup intents and checks their status.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

var ErrProviderUnavailable = errors.New("payment provider unavailable")

const statusSucceeded = "succeeded"

type SetupIntent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

// Attached reports whether a payment method was successfully attached.
func (s SetupIntent) Attached() bool {
	return s.Status == statusSucceeded
}

type Provider interface {
	CreateSetupIntent(ctx context.Context, customerRef string) (*SetupIntent, error)
	SetupIntent(ctx context.Context, id string) (*SetupIntent, error)
}

// ProviderError is a failure reported by the provider. Message is safe to show to the shopper.
type ProviderError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment provider error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("payment provider error %d: %s", e.StatusCode, e.Message)
}

type errorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPProvider speaks the Stripe-style REST API for setup intents. Calls are never retried.
type HTTPProvider struct {
	baseURL   string
	secretKey string
	client    *http.Client
	logger    *slog.Logger
}

func NewHTTPProvider(baseURL, secretKey string, client *http.Client, logger *slog.Logger) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    client,
		logger:    logger.With("component", "payment"),
	}
}

func (p *HTTPProvider) CreateSetupIntent(ctx context.Context, customerRef string) (*SetupIntent, error) {
	form := url.Values{}
	form.Set("usage", "off_session")
	form.Add("payment_method_types[]", "card")
	if customerRef != "" {
		form.Set("metadata[customer_ref]", customerRef)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/setup_intents", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.do(req)
}

func (p *HTTPProvider) SetupIntent(ctx context.Context, id string) (*SetupIntent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/setup_intents/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return p.do(req)
}

func (p *HTTPProvider) do(req *http.Request) (*SetupIntent, error) {
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.ErrorContext(req.Context(), "Payment provider request failed", "path", req.URL.Path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrProviderUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		perr := &ProviderError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var env errorEnvelope
		if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
			perr.Type = env.Error.Type
			perr.Code = env.Error.Code
			perr.Message = env.Error.Message
		}
		p.logger.WarnContext(req.Context(), "Payment provider rejected request", "status", resp.StatusCode, "code", perr.Code)
		return nil, perr
	}

	var si SetupIntent
	if err := json.Unmarshal(body, &si); err != nil {
		return nil, fmt.Errorf("%w: malformed setup intent: %w", ErrProviderUnavailable, err)
	}
	if si.ID == "" {
		return nil, fmt.Errorf("%w: setup intent without id", ErrProviderUnavailable)
	}
	return &si, nil
}
