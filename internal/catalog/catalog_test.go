package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usd(amount int64) Money {
	return Money{Amount: decimal.NewFromInt(amount), CurrencyCode: "USD"}
}

func variant(id string, opts ...string) Variant {
	v := Variant{ID: id, Title: id, Price: usd(10), AvailableForSale: true}
	for i := 0; i+1 < len(opts); i += 2 {
		v.SelectedOptions = append(v.SelectedOptions, SelectedOption{Name: opts[i], Value: opts[i+1]})
	}
	return v
}

func tee() Product {
	return Product{
		ID:     "p1",
		Handle: "tee",
		Options: []Option{
			{Name: "Size", Values: []string{"S", "M"}},
			{Name: "Color", Values: []string{"Black", "White"}},
		},
		Variants: []Variant{
			variant("v1", "Size", "S", "Color", "Black"),
			variant("v2", "Size", "S", "Color", "White"),
			variant("v3", "Size", "M", "Color", "Black"),
			variant("v4", "Color", "White", "Size", "M"),
		},
	}
}

func TestProduct_Validate(t *testing.T) {
	testCases := []struct {
		name        string
		mutate      func(p *Product)
		expectError error
	}{
		{
			name:   "valid product",
			mutate: func(p *Product) {},
		},
		{
			name:        "no variants",
			mutate:      func(p *Product) { p.Variants = nil },
			expectError: ErrNoVariants,
		},
		{
			name:        "missing variant id",
			mutate:      func(p *Product) { p.Variants[0].ID = "" },
			expectError: ErrMissingVariantID,
		},
		{
			name: "undeclared option",
			mutate: func(p *Product) {
				p.Variants[0].SelectedOptions = append(p.Variants[0].SelectedOptions, SelectedOption{Name: "Fit", Value: "Slim"})
			},
			expectError: ErrUndeclaredOption,
		},
		{
			name:        "illegal value",
			mutate:      func(p *Product) { p.Variants[1].SelectedOptions[0].Value = "XXL" },
			expectError: ErrIllegalOptionValue,
		},
		{
			name: "option assigned twice",
			mutate: func(p *Product) {
				p.Variants[0].SelectedOptions = []SelectedOption{{"Size", "S"}, {"Size", "M"}, {"Color", "Black"}}
			},
			expectError: ErrIllegalOptionValue,
		},
		{
			name:        "incomplete selection",
			mutate:      func(p *Product) { p.Variants[2].SelectedOptions = p.Variants[2].SelectedOptions[:1] },
			expectError: ErrIncompleteSelection,
		},
		{
			name:        "duplicate selection",
			mutate:      func(p *Product) { p.Variants[3] = variant("v4", "Size", "S", "Color", "Black") },
			expectError: ErrDuplicateVariant,
		},
		{
			name:        "duplicate variant id",
			mutate:      func(p *Product) { p.Variants[3].ID = p.Variants[0].ID },
			expectError: ErrDuplicateVariant,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			p := tee()
			tc.mutate(&p)

			// when
			err := p.Validate()

			// then
			if tc.expectError != nil {
				assert.ErrorIs(t, err, tc.expectError)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestProduct_Validate_NoOptionsSingleVariant(t *testing.T) {
	p := Product{Handle: "gift-card", Variants: []Variant{variant("only")}}
	require.NoError(t, p.Validate())

	p.Variants = append(p.Variants, variant("second"))
	assert.ErrorIs(t, p.Validate(), ErrDuplicateVariant)
}

func TestVariant_Selection(t *testing.T) {
	v := variant("v1", "Size", "S", "Color", "Black")
	assert.Equal(t, map[string]string{"Size": "S", "Color": "Black"}, v.Selection())
}

func TestMoney_Arithmetic(t *testing.T) {
	price, err := NewMoney("19.99", "USD")
	require.NoError(t, err)

	total := price.Mul(3).Add(usd(5))

	assert.True(t, total.Amount.Equal(decimal.RequireFromString("64.97")))
	assert.Equal(t, "64.97 USD", total.String())
	assert.True(t, Zero("USD").Add(usd(3)).Equal(usd(3)))

	_, err = NewMoney("abc", "USD")
	assert.Error(t, err)
}
