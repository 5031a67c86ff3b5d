package config

import (
	"fmt"
	"strings"
	"time"
)

// SubscriberConfig describes a durable JetStream pull consumer.
type SubscriberConfig struct {
	Stream   string        `koanf:"stream"`
	Subject  string        `koanf:"subject"`
	Consumer string        `koanf:"consumer"`
	Batch    int           `koanf:"batch"`
	Timeout  time.Duration `koanf:"timeout"`
	Interval time.Duration `koanf:"interval"`
	Workers  int           `koanf:"workers"`
	// MaxDeliver bounds redeliveries of a message whose handling keeps failing.
	MaxDeliver int `koanf:"maxdeliver"`
}

// String returns a string representation of the NATS subscriber configuration.
func (c *SubscriberConfig) String() string {
	var b strings.Builder
	b.WriteString("\n--- NATS Subscriber ---\n")
	b.WriteString(fmt.Sprintf("  stream: %s\n", c.Stream))
	b.WriteString(fmt.Sprintf("  subject: %s\n", c.Subject))
	b.WriteString(fmt.Sprintf("  consumer: %s\n", c.Consumer))
	b.WriteString(fmt.Sprintf("  batch: %d\n", c.Batch))
	b.WriteString(fmt.Sprintf("  timeout: %s\n", c.Timeout))
	b.WriteString(fmt.Sprintf("  interval: %s\n", c.Interval))
	b.WriteString(fmt.Sprintf("  workers: %d\n", c.Workers))
	b.WriteString(fmt.Sprintf("  maxdeliver: %d\n", c.MaxDeliver))
	return b.String()
}

func (c *SubscriberConfig) Validate() error {
	switch {
	case c.Stream == "":
		return fmt.Errorf("subscriber stream is not configured")
	case c.Subject == "":
		return fmt.Errorf("subscriber subject is not configured")
	case c.Consumer == "":
		return fmt.Errorf("subscriber consumer is not configured")
	case c.Batch <= 0:
		return fmt.Errorf("subscriber batch must be greater than zero")
	case c.Timeout <= 0:
		return fmt.Errorf("subscriber timeout must be greater than zero")
	case c.Interval <= 0:
		return fmt.Errorf("subscriber interval must be greater than zero")
	case c.Workers <= 0:
		return fmt.Errorf("subscriber workers must be greater than zero")
	case c.MaxDeliver < 0:
		return fmt.Errorf("subscriber maxdeliver must not be negative")
	}
	return nil
}
