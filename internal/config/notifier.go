package config

import (
	"errors"
	"strings"

	"github.com/abgdnv/storefront/pkg/config"
	"github.com/abgdnv/storefront/pkg/config/configloader"
)

var _ configloader.Validator = (*NotifierConfig)(nil)

// NotifierConfig configures the checkout confirmation worker.
type NotifierConfig struct {
	Log        config.LogConfig        `koanf:"log"`
	PProf      config.PProfConfig      `koanf:"pprof"`
	Shutdown   config.ShutdownConfig   `koanf:"shutdown"`
	Telemetry  config.TelemetryConfig  `koanf:"telemetry"`
	NATS       config.NATSConfig       `koanf:"nats"`
	Subscriber config.SubscriberConfig `koanf:"subscriber"`
	Currency   CurrencyConfig          `koanf:"currency"`
}

func (c *NotifierConfig) String() string {
	var b strings.Builder
	b.WriteString(c.NATS.String())
	b.WriteString(c.Subscriber.String())
	b.WriteString(c.Log.String())
	b.WriteString(c.PProf.String())
	b.WriteString(c.Shutdown.String())
	b.WriteString(c.Telemetry.String())
	b.WriteString("\n--- Currency ---\n")
	b.WriteString("  base: " + c.Currency.Base + "\n")
	return b.String()
}

// Validate checks if the configuration values are valid. The worker cannot run without NATS.
func (c *NotifierConfig) Validate() error {
	if !c.NATS.Enabled {
		return errors.New("nats must be enabled for the notifier")
	}
	validators := []configloader.Validator{
		&c.Log, &c.PProf, &c.Shutdown, &c.Telemetry, &c.NATS, &c.Subscriber, &c.Currency,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
