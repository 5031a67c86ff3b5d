// Package catalog holds the product data model and the client for the headless commerce catalog.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNoVariants          = errors.New("product has no variants")
	ErrMissingVariantID    = errors.New("variant has no id")
	ErrUndeclaredOption    = errors.New("variant names an undeclared option")
	ErrIllegalOptionValue  = errors.New("variant uses an illegal option value")
	ErrIncompleteSelection = errors.New("variant does not assign every option")
	ErrDuplicateVariant    = errors.New("duplicate variant")
)

// Money is an amount in a specific currency.
type Money struct {
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
}

// NewMoney parses amount as a decimal string.
func NewMoney(amount, currencyCode string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	return Money{Amount: d, CurrencyCode: currencyCode}, nil
}

// Zero returns a zero amount in the given currency.
func Zero(currencyCode string) Money {
	return Money{Amount: decimal.Zero, CurrencyCode: currencyCode}
}

// Mul returns the amount multiplied by a quantity.
func (m Money) Mul(qty int) Money {
	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(int64(qty))), CurrencyCode: m.CurrencyCode}
}

// Add returns the sum of two amounts. The currency of m is kept.
func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount.Add(o.Amount), CurrencyCode: m.CurrencyCode}
}

// Equal reports whether both amount and currency match.
func (m Money) Equal(o Money) bool {
	return m.CurrencyCode == o.CurrencyCode && m.Amount.Equal(o.Amount)
}

func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.CurrencyCode
}

type Image struct {
	URL     string `json:"url"`
	AltText string `json:"alt_text,omitempty"`
}

// Option is a product-level option definition with its ordered legal values.
type Option struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`
}

type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type Variant struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Price            Money            `json:"price"`
	AvailableForSale bool             `json:"available_for_sale"`
	SelectedOptions  []SelectedOption `json:"selected_options"`
	Image            *Image           `json:"image,omitempty"`
}

// Selection returns the variant's option assignment as a map.
func (v Variant) Selection() map[string]string {
	sel := make(map[string]string, len(v.SelectedOptions))
	for _, so := range v.SelectedOptions {
		sel[so.Name] = so.Value
	}
	return sel
}

type PriceRange struct {
	Min Money `json:"min"`
	Max Money `json:"max"`
}

type Product struct {
	ID          string     `json:"id"`
	Handle      string     `json:"handle"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Images      []Image    `json:"images"`
	PriceRange  PriceRange `json:"price_range"`
	Options     []Option   `json:"options"`
	Variants    []Variant  `json:"variants"`
}

// FeaturedImage returns the first product image, if any.
func (p *Product) FeaturedImage() *Image {
	if len(p.Images) == 0 {
		return nil
	}
	return &p.Images[0]
}

// Option returns the option definition with the given name.
func (p *Product) Option(name string) (Option, bool) {
	for _, o := range p.Options {
		if o.Name == name {
			return o, true
		}
	}
	return Option{}, false
}

// Validate checks the catalog invariants: at least one variant, every variant assigns exactly one
// legal value to each declared option, and no two variants share an id or a selection.
func (p *Product) Validate() error {
	if len(p.Variants) == 0 {
		return ErrNoVariants
	}
	declared := make(map[string]map[string]struct{}, len(p.Options))
	for _, o := range p.Options {
		values := make(map[string]struct{}, len(o.Values))
		for _, v := range o.Values {
			values[v] = struct{}{}
		}
		declared[o.Name] = values
	}

	seen := make(map[string]string, len(p.Variants))
	ids := make(map[string]struct{}, len(p.Variants))
	for i, v := range p.Variants {
		if v.ID == "" {
			return fmt.Errorf("variant #%d: %w", i, ErrMissingVariantID)
		}
		if _, dup := ids[v.ID]; dup {
			return fmt.Errorf("variant id %s used twice: %w", v.ID, ErrDuplicateVariant)
		}
		ids[v.ID] = struct{}{}
		assigned := make(map[string]struct{}, len(v.SelectedOptions))
		for _, so := range v.SelectedOptions {
			values, ok := declared[so.Name]
			if !ok {
				return fmt.Errorf("variant %s, option %q: %w", v.ID, so.Name, ErrUndeclaredOption)
			}
			if _, ok := values[so.Value]; !ok {
				return fmt.Errorf("variant %s, %s=%q: %w", v.ID, so.Name, so.Value, ErrIllegalOptionValue)
			}
			if _, dup := assigned[so.Name]; dup {
				return fmt.Errorf("variant %s assigns %q twice: %w", v.ID, so.Name, ErrIllegalOptionValue)
			}
			assigned[so.Name] = struct{}{}
		}
		if len(assigned) != len(declared) {
			return fmt.Errorf("variant %s: %w", v.ID, ErrIncompleteSelection)
		}
		key := p.selectionKey(v.Selection())
		if other, ok := seen[key]; ok {
			return fmt.Errorf("variants %s and %s: %w", other, v.ID, ErrDuplicateVariant)
		}
		seen[key] = v.ID
	}
	return nil
}

// selectionKey builds a canonical key in option declaration order.
func (p *Product) selectionKey(sel map[string]string) string {
	var b strings.Builder
	for _, o := range p.Options {
		b.WriteString(o.Name)
		b.WriteByte('=')
		b.WriteString(sel[o.Name])
		b.WriteByte(0)
	}
	return b.String()
}
