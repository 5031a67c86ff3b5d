package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubQuerier returns a canned data payload or an error.
type stubQuerier struct {
	data      string
	err       error
	variables map[string]any
}

func (s *stubQuerier) Query(_ context.Context, _ string, variables map[string]any, out any) error {
	s.variables = variables
	if s.err != nil {
		return s.err
	}
	return json.Unmarshal([]byte(s.data), out)
}

const teeJSON = `{
  "id": "gid://shopify/Product/1",
  "handle": "grace-tee",
  "title": "Grace Tee",
  "description": "Heavyweight cotton.",
  "images": {"edges": [{"node": {"url": "https://cdn.example.com/tee.jpg", "altText": null}}]},
  "priceRange": {
    "minVariantPrice": {"amount": "30.0", "currencyCode": "USD"},
    "maxVariantPrice": {"amount": "35.0", "currencyCode": "USD"}
  },
  "options": [{"name": "Size", "values": ["M", "L"]}],
  "variants": {"edges": [
    {"node": {"id": "v-m", "title": "M", "availableForSale": true,
      "price": {"amount": "30.0", "currencyCode": "USD"},
      "selectedOptions": [{"name": "Size", "value": "M"}]}},
    {"node": {"id": "v-l", "title": "L", "availableForSale": false,
      "priceV2": {"amount": "35.0", "currencyCode": "USD"},
      "selectedOptions": [{"name": "Size", "value": "L"}],
      "image": {"url": "https://cdn.example.com/tee-l.jpg", "altText": "Large"}}}
  ]}
}`

func TestService_ProductByHandle(t *testing.T) {
	// given
	q := &stubQuerier{data: `{"product":` + teeJSON + `}`}
	svc := NewService(q, discardLogger())

	// when
	p, err := svc.ProductByHandle(context.Background(), "grace-tee")

	// then
	require.NoError(t, err)
	assert.Equal(t, "grace-tee", q.variables["handle"])
	assert.Equal(t, "Grace Tee", p.Title)
	require.Len(t, p.Images, 1)
	assert.Equal(t, "", p.Images[0].AltText)
	require.Len(t, p.Variants, 2)
	assert.True(t, p.Variants[1].Price.Amount.Equal(decimal.NewFromInt(35)), "priceV2 is used when price is absent")
	assert.False(t, p.Variants[1].AvailableForSale)
	require.NotNil(t, p.Variants[1].Image)
	assert.Equal(t, "Large", p.Variants[1].Image.AltText)
	assert.True(t, p.PriceRange.Min.Amount.Equal(decimal.NewFromInt(30)))
}

func TestService_ProductByHandle_MissingOptionalFields(t *testing.T) {
	// given
	data := `{"product": {
	  "id": "p2", "handle": "sticker", "title": "Sticker",
	  "variants": {"edges": [
	    {"node": {"id": "s1", "title": "Default", "availableForSale": true, "price": {"amount": "4", "currencyCode": "USD"}}}
	  ]}
	}}`
	svc := NewService(&stubQuerier{data: data}, discardLogger())

	// when
	p, err := svc.ProductByHandle(context.Background(), "sticker")

	// then
	require.NoError(t, err)
	assert.Empty(t, p.Images)
	assert.Empty(t, p.Description)
	assert.Empty(t, p.Options)
	assert.True(t, p.PriceRange.Min.Amount.Equal(decimal.NewFromInt(4)), "range derived from variants")
	assert.True(t, p.PriceRange.Max.Amount.Equal(decimal.NewFromInt(4)))
}

func TestService_ProductByHandle_Errors(t *testing.T) {
	testCases := []struct {
		name        string
		querier     *stubQuerier
		expectError error
	}{
		{
			name:        "not found",
			querier:     &stubQuerier{data: `{"product": null}`},
			expectError: ErrProductNotFound,
		},
		{
			name:        "load failure propagates",
			querier:     &stubQuerier{err: errors.Join(ErrLoadFailed, errors.New("boom"))},
			expectError: ErrLoadFailed,
		},
		{
			name: "variant without price",
			querier: &stubQuerier{data: `{"product": {"id": "p", "handle": "h", "variants": {"edges": [
			  {"node": {"id": "v", "title": "t", "availableForSale": true}}]}}}`},
			expectError: ErrInvalidCatalogData,
		},
		{
			name: "unparseable amount",
			querier: &stubQuerier{data: `{"product": {"id": "p", "handle": "h", "variants": {"edges": [
			  {"node": {"id": "v", "title": "t", "availableForSale": true, "price": {"amount": "ten", "currencyCode": "USD"}}}]}}}`},
			expectError: ErrInvalidCatalogData,
		},
		{
			name:        "no variants",
			querier:     &stubQuerier{data: `{"product": {"id": "p", "handle": "h"}}`},
			expectError: ErrInvalidCatalogData,
		},
		{
			name: "duplicate variants",
			querier: &stubQuerier{data: `{"product": {"id": "p", "handle": "h",
			  "options": [{"name": "Size", "values": ["M"]}],
			  "variants": {"edges": [
			    {"node": {"id": "a", "title": "M", "availableForSale": true, "price": {"amount": "1", "currencyCode": "USD"}, "selectedOptions": [{"name": "Size", "value": "M"}]}},
			    {"node": {"id": "b", "title": "M", "availableForSale": true, "price": {"amount": "1", "currencyCode": "USD"}, "selectedOptions": [{"name": "Size", "value": "M"}]}}
			  ]}}}`},
			expectError: ErrDuplicateVariant,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// given
			svc := NewService(tc.querier, discardLogger())

			// when
			p, err := svc.ProductByHandle(context.Background(), "h")

			// then
			assert.ErrorIs(t, err, tc.expectError)
			assert.Nil(t, p)
		})
	}
}

func TestService_Products(t *testing.T) {
	// given
	q := &stubQuerier{data: `{"products": {"edges": [{"node": ` + teeJSON + `}]}}`}
	svc := NewService(q, discardLogger())

	// when
	products, err := svc.Products(context.Background(), 12)

	// then
	require.NoError(t, err)
	assert.Equal(t, 12, q.variables["first"])
	require.Len(t, products, 1)
	assert.Equal(t, "grace-tee", products[0].Handle)
}

func TestService_Products_FailureIsNotEmptyList(t *testing.T) {
	// given
	svc := NewService(&stubQuerier{err: ErrLoadFailed}, discardLogger())

	// when
	products, err := svc.Products(context.Background(), 10)

	// then
	assert.ErrorIs(t, err, ErrLoadFailed)
	assert.Nil(t, products)
}

func TestService_Products_EmptyCatalog(t *testing.T) {
	svc := NewService(&stubQuerier{data: `{"products": {"edges": []}}`}, discardLogger())

	products, err := svc.Products(context.Background(), 10)

	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}
