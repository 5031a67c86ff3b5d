package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/abgdnv/storefront/pkg/client/resilience"
	"github.com/abgdnv/storefront/pkg/config"
)

// ErrLoadFailed is returned for any failure to obtain a usable response from the catalog.
var ErrLoadFailed = errors.New("catalog load failed")

// TokenHeader carries the storefront access token.
const TokenHeader = "X-Shopify-Storefront-Access-Token"

// maxResponseBytes bounds how much of a catalog response is read.
const maxResponseBytes = 8 << 20

// Querier runs a query document against the catalog and decodes the data payload into out.
type Querier interface {
	Query(ctx context.Context, document string, variables map[string]any, out any) error
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors"`
}

// GraphQLClient talks to the headless commerce GraphQL endpoint.
type GraphQLClient struct {
	endpoint string
	token    string
	client   *http.Client
	retry    config.RetryConfig
	logger   *slog.Logger
}

// NewGraphQLClient creates a client. The http.Client is expected to carry the circuit-breaking transport.
func NewGraphQLClient(endpoint, token string, client *http.Client, retry config.RetryConfig, logger *slog.Logger) *GraphQLClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &GraphQLClient{
		endpoint: endpoint,
		token:    token,
		client:   client,
		retry:    retry,
		logger:   logger.With("component", "catalog_client"),
	}
}

// Query implements Querier. Every failure is reported as ErrLoadFailed.
func (c *GraphQLClient) Query(ctx context.Context, document string, variables map[string]any, out any) error {
	body, err := json.Marshal(graphQLRequest{Query: document, Variables: variables})
	if err != nil {
		return fmt.Errorf("%w: encode request: %w", ErrLoadFailed, err)
	}

	attempt := 0
	data, err := resilience.Retry(ctx, c.retry, func() (json.RawMessage, error) {
		attempt++
		data, err := c.do(ctx, body)
		if err != nil {
			c.logger.WarnContext(ctx, "Catalog query attempt failed", "attempt", attempt, "error", err)
		}
		return data, err
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: decode data: %w", ErrLoadFailed, err)
	}
	return nil
}

// do performs a single round trip. Errors that must not be retried are wrapped as permanent.
func (c *GraphQLClient) do(ctx context.Context, body []byte) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, resilience.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, resilience.ErrUnavailable) {
			return nil, resilience.Permanent(err)
		}
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, err
	}
	if resilience.IsTransientStatus(resp.StatusCode) {
		return nil, fmt.Errorf("catalog responded with status %d", resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resilience.Permanent(fmt.Errorf("catalog responded with status %d", resp.StatusCode))
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, resilience.Permanent(fmt.Errorf("undecodable response: %w", err))
	}
	if len(envelope.Errors) > 0 {
		msgs := make([]string, 0, len(envelope.Errors))
		for _, e := range envelope.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, resilience.Permanent(fmt.Errorf("graphql errors: %s", strings.Join(msgs, "; ")))
	}
	if len(envelope.Data) == 0 || string(envelope.Data) == "null" {
		return nil, resilience.Permanent(errors.New("response has no data"))
	}
	return envelope.Data, nil
}
