// Package config defines the storefront service configuration.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/abgdnv/storefront/internal/currency"
	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/config/configloader"
	"github.com/shopspring/decimal"
)

var _ configloader.Validator = (*Config)(nil)

const (
	StorageMemory   = "memory"
	StorageFile     = "file"
	StoragePostgres = "postgres"
)

type Config struct {
	HTTPServer config.HTTPConfig       `koanf:"server"`
	Log        config.LogConfig        `koanf:"log"`
	PProf      config.PProfConfig      `koanf:"pprof"`
	Shutdown   config.ShutdownConfig   `koanf:"shutdown"`
	Telemetry  config.TelemetryConfig  `koanf:"telemetry"`
	NATS       config.NATSConfig       `koanf:"nats"`
	IdP        config.IdP              `koanf:"idp"`
	Resilience config.ResilienceConfig `koanf:"resilience"`
	Storage    StorageConfig           `koanf:"storage"`
	Catalog    CatalogConfig           `koanf:"catalog"`
	Geo        GeoConfig               `koanf:"geo"`
	Payment    PaymentConfig           `koanf:"payment"`
	Session    SessionConfig           `koanf:"session"`
	Currency   CurrencyConfig          `koanf:"currency"`
	Shipping   ShippingConfig          `koanf:"shipping"`
}

// StorageConfig selects where per-session state is kept.
type StorageConfig struct {
	Driver   string                `koanf:"driver"`
	Dir      string                `koanf:"dir"`
	Database config.DatabaseConfig `koanf:"database"`
}

type CatalogConfig struct {
	Endpoint string        `koanf:"endpoint"`
	Token    string        `koanf:"token"`
	Timeout  time.Duration `koanf:"timeout"`
}

// GeoConfig configures IP geolocation. Endpoint must contain the {ip} placeholder.
type GeoConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Endpoint string        `koanf:"endpoint"`
	Timeout  time.Duration `koanf:"timeout"`
}

type PaymentConfig struct {
	BaseURL   string        `koanf:"baseurl"`
	SecretKey string        `koanf:"secretkey"`
	Timeout   time.Duration `koanf:"timeout"`
}

type SessionConfig struct {
	CookieName string        `koanf:"cookiename"`
	MaxAge     time.Duration `koanf:"maxage"`
	Secure     bool          `koanf:"secure"`
	CacheSize  int           `koanf:"cachesize"`
}

// CurrencyConfig lists the supported currencies. When Rates is empty the built-in table is used.
type CurrencyConfig struct {
	Base          string       `koanf:"base"`
	DefaultLocale string       `koanf:"defaultlocale"`
	Rates         []RateConfig `koanf:"rates"`
}

type RateConfig struct {
	Code        string `koanf:"code"`
	Symbol      string `koanf:"symbol"`
	Locale      string `koanf:"locale"`
	SymbolAfter bool   `koanf:"symbolafter"`
	PerBase     string `koanf:"perbase"`
}

type ShippingConfig struct {
	FreeThreshold string `koanf:"freethreshold"`
}

func (c *StorageConfig) Validate() error {
	switch c.Driver {
	case StorageMemory:
		return nil
	case StorageFile:
		if c.Dir == "" {
			return fmt.Errorf("storage.dir is required for the file driver")
		}
		return nil
	case StoragePostgres:
		return c.Database.Validate()
	default:
		return fmt.Errorf("unknown storage driver: %q", c.Driver)
	}
}

func (c *CatalogConfig) Validate() error {
	if err := validateURL("catalog.endpoint", c.Endpoint); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("catalog.timeout must be greater than 0")
	}
	return nil
}

func (c *GeoConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if !strings.Contains(c.Endpoint, "{ip}") {
		return fmt.Errorf("geo.endpoint must contain the {ip} placeholder")
	}
	if err := validateURL("geo.endpoint", strings.ReplaceAll(c.Endpoint, "{ip}", "0.0.0.0")); err != nil {
		return err
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("geo.timeout must be greater than 0")
	}
	return nil
}

func (c *PaymentConfig) Validate() error {
	if err := validateURL("payment.baseurl", c.BaseURL); err != nil {
		return err
	}
	if c.SecretKey == "" {
		return fmt.Errorf("payment.secretkey is not configured")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("payment.timeout must be greater than 0")
	}
	return nil
}

func (c *SessionConfig) Validate() error {
	if c.CookieName == "" {
		return fmt.Errorf("session.cookiename is not configured")
	}
	if c.MaxAge <= 0 {
		return fmt.Errorf("session.maxage must be greater than 0")
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("session.cachesize must be greater than 0")
	}
	return nil
}

func (c *CurrencyConfig) Validate() error {
	_, err := c.Table()
	return err
}

// Table builds the currency table described by the configuration.
func (c *CurrencyConfig) Table() (*currency.Table, error) {
	if len(c.Rates) == 0 {
		return currency.NewTable(c.Base, currency.DefaultRates())
	}
	rates := make([]currency.Rate, 0, len(c.Rates))
	for _, rc := range c.Rates {
		perBase, err := decimal.NewFromString(rc.PerBase)
		if err != nil {
			return nil, fmt.Errorf("currency.rates %s: invalid perbase %q: %w", rc.Code, rc.PerBase, err)
		}
		rates = append(rates, currency.Rate{
			Code:        rc.Code,
			Symbol:      rc.Symbol,
			Locale:      rc.Locale,
			SymbolAfter: rc.SymbolAfter,
			PerBase:     perBase,
		})
	}
	return currency.NewTable(c.Base, rates)
}

func (c *ShippingConfig) Validate() error {
	_, err := c.Threshold()
	return err
}

// Threshold returns the free-shipping threshold in the base currency.
func (c *ShippingConfig) Threshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.FreeThreshold)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid shipping.freethreshold %q: %w", c.FreeThreshold, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("shipping.freethreshold must not be negative")
	}
	return d, nil
}

func validateURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is not configured", key)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL: %q", key, raw)
	}
	return nil
}

func (c *Config) String() string {
	var b strings.Builder
	b.WriteString(c.HTTPServer.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Shutdown.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString(c.NATS.String())
	b.WriteString(c.IdP.String())

	b.WriteString("\n--- Resilience ---\n")
	b.WriteString(c.Resilience.String())

	b.WriteString("\n--- Storage ---\n")
	b.WriteString(fmt.Sprintf("  driver: %s\n", c.Storage.Driver))
	switch c.Storage.Driver {
	case StorageFile:
		b.WriteString(fmt.Sprintf("  dir: %s\n", c.Storage.Dir))
	case StoragePostgres:
		b.WriteString(c.Storage.Database.String())
	}

	b.WriteString("\n--- Catalog ---\n")
	b.WriteString(fmt.Sprintf("  endpoint: %s\n", c.Catalog.Endpoint))
	b.WriteString(fmt.Sprintf("  token: %s\n", mask(c.Catalog.Token)))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Catalog.Timeout))

	b.WriteString("\n--- Geolocation ---\n")
	b.WriteString(fmt.Sprintf("  enabled: %t\n", c.Geo.Enabled))
	b.WriteString(fmt.Sprintf("  endpoint: %s\n", c.Geo.Endpoint))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Geo.Timeout))

	b.WriteString("\n--- Payment ---\n")
	b.WriteString(fmt.Sprintf("  baseurl: %s\n", c.Payment.BaseURL))
	b.WriteString(fmt.Sprintf("  secretkey: %s\n", mask(c.Payment.SecretKey)))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Payment.Timeout))

	b.WriteString("\n--- Session ---\n")
	b.WriteString(fmt.Sprintf("  cookiename: %s\n", c.Session.CookieName))
	b.WriteString(fmt.Sprintf("  maxage: %s\n", c.Session.MaxAge))
	b.WriteString(fmt.Sprintf("  secure: %t\n", c.Session.Secure))
	b.WriteString(fmt.Sprintf("  cachesize: %d\n", c.Session.CacheSize))

	b.WriteString("\n--- Currency ---\n")
	b.WriteString(fmt.Sprintf("  base: %s\n", c.Currency.Base))
	b.WriteString(fmt.Sprintf("  defaultlocale: %s\n", c.Currency.DefaultLocale))
	b.WriteString(fmt.Sprintf("  rates: %d configured\n", len(c.Currency.Rates)))
	b.WriteString(fmt.Sprintf("  shipping.freethreshold: %s\n", c.Shipping.FreeThreshold))
	return b.String()
}

func mask(secret string) string {
	if secret == "" {
		return "<not configured>"
	}
	return "****"
}

// Validate checks if the configuration values are valid
func (c *Config) Validate() error {
	validators := []configloader.Validator{
		&c.HTTPServer, &c.Log, &c.PProf, &c.Shutdown, &c.Telemetry, &c.NATS, &c.IdP, &c.Resilience,
		&c.Storage, &c.Catalog, &c.Geo, &c.Payment, &c.Session, &c.Currency, &c.Shipping,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
