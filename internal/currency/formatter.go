package currency

import (
	"strings"

	"github.com/abgdnv/storefront/internal/catalog"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Formatter turns base-currency amounts into display prices.
type Formatter struct {
	table *Table
}

func NewFormatter(table *Table) *Formatter {
	return &Formatter{table: table}
}

func (f *Formatter) Table() *Table {
	return f.table
}

// Supported lists the currencies prices can be displayed in.
func (f *Formatter) Supported() []string {
	return f.table.Supported()
}

// rate falls back to the base currency for unknown codes.
func (f *Formatter) rate(code string) Rate {
	if r, ok := f.table.Rate(code); ok {
		return r
	}
	r, _ := f.table.Rate(f.table.base)
	return r
}

// Convert converts a base-currency amount and rounds it to the target currency's standard scale.
func (f *Formatter) Convert(amount decimal.Decimal, code string) catalog.Money {
	r := f.rate(code)
	return catalog.Money{
		Amount:       amount.Mul(r.PerBase).Round(scale(r.Code)),
		CurrencyCode: r.Code,
	}
}

// FormatPrice converts a base-currency amount and renders it with the target currency's symbol
// and its locale's digit grouping. Unknown codes render in the base currency.
func (f *Formatter) FormatPrice(amount decimal.Decimal, code string) string {
	r := f.rate(code)
	m := f.Convert(amount, r.Code)

	sign := ""
	if m.Amount.IsNegative() {
		sign = "-"
	}
	p := message.NewPrinter(language.Make(r.Locale))
	digits := localizedDecimal(p, m.Amount.Abs(), scale(r.Code))

	if r.SymbolAfter {
		return sign + digits + " " + r.Symbol
	}
	return sign + r.Symbol + digits
}

// localizedDecimal renders a non-negative amount, already rounded to places, in the printer's locale.
// The whole and fraction parts are formatted as integers so large amounts stay exact.
func localizedDecimal(p *message.Printer, amount decimal.Decimal, places int32) string {
	whole := amount.Truncate(0)
	if !whole.BigInt().IsInt64() {
		return amount.StringFixed(places)
	}
	digits := p.Sprint(number.Decimal(whole.IntPart()))
	if places <= 0 {
		return digits
	}
	fraction := amount.Sub(whole).Shift(places).IntPart()
	one, five := p.Sprint(number.Decimal(1)), p.Sprint(number.Decimal(5))
	separator := strings.TrimSuffix(strings.TrimPrefix(p.Sprint(number.Decimal(1.5, number.Scale(1))), one), five)
	return digits + separator + p.Sprint(number.Decimal(fraction, number.NoSeparator(), number.MinIntegerDigits(int(places))))
}

// scale is the number of fraction digits normally used for the currency.
func scale(code string) int32 {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 2
	}
	s, _ := currency.Standard.Rounding(unit)
	return int32(s)
}
