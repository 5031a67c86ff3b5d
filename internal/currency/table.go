// Package currency converts base-currency prices for display and tracks the visitor's currency choice.
package currency

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
)

var ErrUnsupportedCurrency = errors.New("unsupported currency")

// Rate describes how to display one currency. PerBase is the number of units of this
// currency per unit of the base currency.
type Rate struct {
	Code        string          `json:"code"`
	Symbol      string          `json:"symbol"`
	Locale      string          `json:"locale"`
	SymbolAfter bool            `json:"symbol_after"`
	PerBase     decimal.Decimal `json:"per_base"`
}

// Table is a static set of rates with a base currency.
type Table struct {
	base  string
	rates map[string]Rate
	codes []string
}

// NewTable validates the rates. The base currency must be present with a rate of 1.
func NewTable(base string, rates []Rate) (*Table, error) {
	base = strings.ToUpper(base)
	t := &Table{base: base, rates: make(map[string]Rate, len(rates))}
	for _, r := range rates {
		r.Code = strings.ToUpper(r.Code)
		if _, err := currency.ParseISO(r.Code); err != nil {
			return nil, fmt.Errorf("rate %q: %w", r.Code, err)
		}
		if _, err := language.Parse(r.Locale); err != nil {
			return nil, fmt.Errorf("rate %s locale %q: %w", r.Code, r.Locale, err)
		}
		if !r.PerBase.IsPositive() {
			return nil, fmt.Errorf("rate %s must be positive", r.Code)
		}
		if r.Symbol == "" {
			r.Symbol = r.Code
		}
		if _, dup := t.rates[r.Code]; dup {
			return nil, fmt.Errorf("rate %s listed twice", r.Code)
		}
		t.rates[r.Code] = r
		t.codes = append(t.codes, r.Code)
	}
	b, ok := t.rates[base]
	if !ok {
		return nil, fmt.Errorf("base currency %s: %w", base, ErrUnsupportedCurrency)
	}
	if !b.PerBase.Equal(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("base currency %s must have rate 1, got %s", base, b.PerBase)
	}
	slices.Sort(t.codes)
	return t, nil
}

// DefaultRates is a static USD-based table.
func DefaultRates() []Rate {
	return []Rate{
		{Code: "USD", Symbol: "$", Locale: "en-US", PerBase: decimal.NewFromInt(1)},
		{Code: "EUR", Symbol: "€", Locale: "de-DE", SymbolAfter: true, PerBase: decimal.RequireFromString("0.92")},
		{Code: "GBP", Symbol: "£", Locale: "en-GB", PerBase: decimal.RequireFromString("0.79")},
		{Code: "CAD", Symbol: "CA$", Locale: "en-CA", PerBase: decimal.RequireFromString("1.36")},
		{Code: "AUD", Symbol: "A$", Locale: "en-AU", PerBase: decimal.RequireFromString("1.52")},
		{Code: "JPY", Symbol: "¥", Locale: "ja-JP", PerBase: decimal.NewFromInt(151)},
	}
}

func (t *Table) Base() string {
	return t.base
}

// Rate returns the rate for code, case-insensitively.
func (t *Table) Rate(code string) (Rate, bool) {
	r, ok := t.rates[strings.ToUpper(code)]
	return r, ok
}

// Supported lists the currency codes in alphabetical order.
func (t *Table) Supported() []string {
	return slices.Clone(t.codes)
}

// Normalize returns the canonical code, or ErrUnsupportedCurrency.
func (t *Table) Normalize(code string) (string, error) {
	r, ok := t.Rate(code)
	if !ok {
		return "", fmt.Errorf("%q: %w", code, ErrUnsupportedCurrency)
	}
	return r.Code, nil
}
