package catalog

import (
	"fmt"
)

type wireMoney struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type wireImage struct {
	URL     string  `json:"url"`
	AltText *string `json:"altText"`
}

type wireVariant struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	AvailableForSale bool             `json:"availableForSale"`
	Price            *wireMoney       `json:"price"`
	PriceV2          *wireMoney       `json:"priceV2"`
	SelectedOptions  []SelectedOption `json:"selectedOptions"`
	Image            *wireImage       `json:"image"`
}

type wireProduct struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Images      *struct {
		Edges []struct {
			Node wireImage `json:"node"`
		} `json:"edges"`
	} `json:"images"`
	FeaturedImage *wireImage `json:"featuredImage"`
	PriceRange    *struct {
		MinVariantPrice *wireMoney `json:"minVariantPrice"`
		MaxVariantPrice *wireMoney `json:"maxVariantPrice"`
	} `json:"priceRange"`
	Options  []Option `json:"options"`
	Variants *struct {
		Edges []struct {
			Node wireVariant `json:"node"`
		} `json:"edges"`
	} `json:"variants"`
}

type productByHandleData struct {
	Product *wireProduct `json:"product"`
}

type productsData struct {
	Products struct {
		Edges []struct {
			Node wireProduct `json:"node"`
		} `json:"edges"`
	} `json:"products"`
}

func (w *wireImage) toImage() Image {
	img := Image{URL: w.URL}
	if w.AltText != nil {
		img.AltText = *w.AltText
	}
	return img
}

func (w *wireMoney) toMoney() (Money, error) {
	return NewMoney(w.Amount, w.CurrencyCode)
}

// normalize converts the wire shape into a Product. Optional fields may be missing;
// a missing price range is derived from the variants.
func normalize(w *wireProduct) (*Product, error) {
	p := &Product{
		ID:          w.ID,
		Handle:      w.Handle,
		Title:       w.Title,
		Description: w.Description,
		Images:      []Image{},
		Options:     w.Options,
	}
	if p.Options == nil {
		p.Options = []Option{}
	}
	if w.Images != nil {
		for _, e := range w.Images.Edges {
			p.Images = append(p.Images, e.Node.toImage())
		}
	}
	if len(p.Images) == 0 && w.FeaturedImage != nil {
		p.Images = append(p.Images, w.FeaturedImage.toImage())
	}

	if w.Variants != nil {
		for _, e := range w.Variants.Edges {
			v, err := normalizeVariant(&e.Node)
			if err != nil {
				return nil, fmt.Errorf("product %s: %w", w.Handle, err)
			}
			p.Variants = append(p.Variants, v)
		}
	}

	if w.PriceRange != nil && w.PriceRange.MinVariantPrice != nil && w.PriceRange.MaxVariantPrice != nil {
		lo, err := w.PriceRange.MinVariantPrice.toMoney()
		if err != nil {
			return nil, fmt.Errorf("product %s min price: %w", w.Handle, err)
		}
		hi, err := w.PriceRange.MaxVariantPrice.toMoney()
		if err != nil {
			return nil, fmt.Errorf("product %s max price: %w", w.Handle, err)
		}
		p.PriceRange = PriceRange{Min: lo, Max: hi}
	} else {
		p.PriceRange = deriveRange(p.Variants)
	}
	return p, nil
}

func normalizeVariant(w *wireVariant) (Variant, error) {
	price := w.Price
	if price == nil {
		price = w.PriceV2
	}
	if price == nil {
		return Variant{}, fmt.Errorf("variant %s has no price", w.ID)
	}
	m, err := price.toMoney()
	if err != nil {
		return Variant{}, fmt.Errorf("variant %s: %w", w.ID, err)
	}
	v := Variant{
		ID:               w.ID,
		Title:            w.Title,
		Price:            m,
		AvailableForSale: w.AvailableForSale,
		SelectedOptions:  w.SelectedOptions,
	}
	if v.SelectedOptions == nil {
		v.SelectedOptions = []SelectedOption{}
	}
	if w.Image != nil {
		img := w.Image.toImage()
		v.Image = &img
	}
	return v, nil
}

func deriveRange(variants []Variant) PriceRange {
	if len(variants) == 0 {
		return PriceRange{}
	}
	r := PriceRange{Min: variants[0].Price, Max: variants[0].Price}
	for _, v := range variants[1:] {
		if v.Price.Amount.LessThan(r.Min.Amount) {
			r.Min = v.Price
		}
		if v.Price.Amount.GreaterThan(r.Max.Amount) {
			r.Max = v.Price
		}
	}
	return r
}
