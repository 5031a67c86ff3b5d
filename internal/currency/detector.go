package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"
)

// Detection is the outcome of a best-effort currency lookup. When Detected is false,
// Currency holds the default and Reason says why detection did not succeed.
type Detection struct {
	Currency string `json:"currency"`
	Country  string `json:"country,omitempty"`
	Detected bool   `json:"detected"`
	Reason   string `json:"reason,omitempty"`
}

// Detector infers a visitor's currency from their IP address. It never fails.
type Detector interface {
	Detect(ctx context.Context, clientIP string) Detection
}

// countryCurrency is used when the lookup reports a country without a currency.
var countryCurrency = map[string]string{
	"US": "USD", "CA": "CAD", "GB": "GBP", "AU": "AUD", "JP": "JPY",
	"AT": "EUR", "BE": "EUR", "CY": "EUR", "DE": "EUR", "EE": "EUR", "ES": "EUR", "FI": "EUR",
	"FR": "EUR", "GR": "EUR", "HR": "EUR", "IE": "EUR", "IT": "EUR", "LT": "EUR", "LU": "EUR",
	"LV": "EUR", "MT": "EUR", "NL": "EUR", "PT": "EUR", "SI": "EUR", "SK": "EUR",
}

type geoResponse struct {
	CountryCode string `json:"country_code"`
	Currency    string `json:"currency"`
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
}

// GeoDetector asks an IP geolocation service for the visitor's country and currency.
// The endpoint contains an {ip} placeholder, e.g. https://ipapi.co/{ip}/json/.
type GeoDetector struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
	table    *Table
	fallback string
	logger   *slog.Logger
}

func NewGeoDetector(endpoint string, client *http.Client, timeout time.Duration, table *Table, logger *slog.Logger) *GeoDetector {
	if client == nil {
		client = http.DefaultClient
	}
	return &GeoDetector{
		endpoint: endpoint,
		client:   client,
		timeout:  timeout,
		table:    table,
		fallback: table.Base(),
		logger:   logger.With("component", "currency_detector"),
	}
}

func (d *GeoDetector) Detect(ctx context.Context, clientIP string) Detection {
	det, err := d.lookup(ctx, clientIP)
	if err != nil {
		d.logger.DebugContext(ctx, "Currency detection fell back to default", "ip", clientIP, "reason", err.Error())
		return Detection{Currency: d.fallback, Country: det.Country, Detected: false, Reason: err.Error()}
	}
	return det
}

func (d *GeoDetector) lookup(ctx context.Context, clientIP string) (Detection, error) {
	addr, err := netip.ParseAddr(clientIP)
	if err != nil {
		return Detection{}, fmt.Errorf("invalid client ip %q", clientIP)
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() || addr.IsLinkLocalUnicast() {
		return Detection{}, fmt.Errorf("non-public client ip %s", addr)
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	target := strings.ReplaceAll(d.endpoint, "{ip}", url.PathEscape(addr.String()))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Detection{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := d.client.Do(req)
	if err != nil {
		return Detection{}, fmt.Errorf("geolocation lookup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return Detection{}, fmt.Errorf("geolocation lookup returned status %d", resp.StatusCode)
	}

	var body geoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return Detection{}, fmt.Errorf("malformed geolocation response: %w", err)
	}
	if body.Error {
		return Detection{}, fmt.Errorf("geolocation error: %s", body.Reason)
	}

	country := strings.ToUpper(body.CountryCode)
	code := body.Currency
	if code == "" {
		code = countryCurrency[country]
	}
	if code == "" {
		return Detection{Country: country}, fmt.Errorf("no currency known for country %q", country)
	}
	normalized, err := d.table.Normalize(code)
	if err != nil {
		return Detection{Country: country}, err
	}
	return Detection{Currency: normalized, Country: country, Detected: true}, nil
}

// StaticDetector always reports the same result. Used when geolocation is disabled.
type StaticDetector struct {
	Currency string
}

func (s StaticDetector) Detect(context.Context, string) Detection {
	return Detection{Currency: s.Currency, Detected: false, Reason: "detection disabled"}
}
