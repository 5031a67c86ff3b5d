package currency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/abgdnv/storefront/internal/storage"
	"golang.org/x/text/language"
)

const (
	CurrencyKey = "currency"
	LocaleKey   = "locale"
)

var ErrUnsupportedLocale = errors.New("unsupported locale")

type Source string

const (
	SourceExplicit Source = "explicit"
	SourceDetected Source = "detected"
	SourceDefault  Source = "default"
)

// Choice is the currency in effect for a session and where it came from.
type Choice struct {
	Currency string `json:"currency"`
	Source   Source `json:"source"`
	Country  string `json:"country,omitempty"`
}

type localeRecord struct {
	Locale string `json:"locale"`
}

// Preference holds one session's currency and locale. An explicit choice always wins over
// detection. Detection runs at most once per session; its outcome, including the fallback,
// is persisted. Storage failures degrade to in-memory state and are never returned.
type Preference struct {
	mu            sync.Mutex
	storage       storage.Storage
	namespace     string
	table         *Table
	detector      Detector
	defaultLocale string
	choice        *Choice
	locale        string
	logger        *slog.Logger
}

func NewPreference(st storage.Storage, namespace string, table *Table, detector Detector, defaultLocale string, logger *slog.Logger) *Preference {
	if detector == nil {
		detector = StaticDetector{Currency: table.Base()}
	}
	return &Preference{
		storage:       st,
		namespace:     namespace,
		table:         table,
		detector:      detector,
		defaultLocale: defaultLocale,
		logger:        logger.With("component", "currency_preference", "session_id", namespace),
	}
}

// Current returns the session currency, detecting it on first use.
func (p *Preference) Current(ctx context.Context, clientIP string) Choice {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.choice != nil {
		return *p.choice
	}
	if c, ok := p.loadChoice(ctx); ok {
		p.choice = &c
		return c
	}

	det := p.detector.Detect(ctx, clientIP)
	c := Choice{Currency: p.table.Base(), Source: SourceDefault, Country: det.Country}
	if det.Detected {
		if code, err := p.table.Normalize(det.Currency); err == nil {
			c = Choice{Currency: code, Source: SourceDetected, Country: det.Country}
		}
	} else {
		p.logger.DebugContext(ctx, "Using default currency", "reason", det.Reason)
	}
	p.choice = &c
	p.save(ctx, CurrencyKey, c)
	return c
}

// SetExplicit records the visitor's own choice.
func (p *Preference) SetExplicit(ctx context.Context, code string) (Choice, error) {
	normalized, err := p.table.Normalize(code)
	if err != nil {
		return Choice{}, err
	}
	c := Choice{Currency: normalized, Source: SourceExplicit}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.choice != nil {
		c.Country = p.choice.Country
	}
	p.choice = &c
	p.save(ctx, CurrencyKey, c)
	return c, nil
}

// Locale returns the session language tag, or the default.
func (p *Preference) Locale(ctx context.Context) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.locale != "" {
		return p.locale
	}
	p.locale = p.defaultLocale
	data, err := p.storage.Get(ctx, p.namespace, LocaleKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.WarnContext(ctx, "Failed to read locale", "error", err)
		}
		return p.locale
	}
	var rec localeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		p.logger.WarnContext(ctx, "Discarding persisted locale", "error", err)
		return p.locale
	}
	if tag, err := language.Parse(rec.Locale); err == nil {
		p.locale = tag.String()
	}
	return p.locale
}

// SetLocale stores a BCP 47 language tag in canonical form.
func (p *Preference) SetLocale(ctx context.Context, locale string) (string, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return "", fmt.Errorf("%q: %w", locale, ErrUnsupportedLocale)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locale = tag.String()
	p.save(ctx, LocaleKey, localeRecord{Locale: p.locale})
	return p.locale, nil
}

func (p *Preference) loadChoice(ctx context.Context) (Choice, bool) {
	data, err := p.storage.Get(ctx, p.namespace, CurrencyKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.WarnContext(ctx, "Failed to read currency preference", "error", err)
		}
		return Choice{}, false
	}
	var c Choice
	if err := json.Unmarshal(data, &c); err != nil {
		p.logger.WarnContext(ctx, "Discarding persisted currency preference", "error", err)
		return Choice{}, false
	}
	code, err := p.table.Normalize(c.Currency)
	if err != nil {
		p.logger.WarnContext(ctx, "Persisted currency is no longer supported", "currency", c.Currency)
		return Choice{}, false
	}
	switch c.Source {
	case SourceExplicit, SourceDetected, SourceDefault:
	default:
		return Choice{}, false
	}
	c.Currency = code
	return c, true
}

func (p *Preference) save(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		p.logger.WarnContext(ctx, "Failed to encode preference", "key", key, "error", err)
		return
	}
	if err := p.storage.Put(context.WithoutCancel(ctx), p.namespace, key, data); err != nil {
		p.logger.WarnContext(ctx, "Failed to persist preference", "key", key, "error", err)
	}
}
