// Package variant maps an option selection to a concrete product variant.
package variant

import (
	"github.com/abgdnv/storefront/internal/catalog"
)

type Status string

const (
	Resolved    Status = "resolved"
	NotFound    Status = "not_found"
	Unavailable Status = "unavailable"
	Incomplete  Status = "incomplete"
)

// Result of a resolution. Variant is set for every status except NotFound.
type Result struct {
	Variant *catalog.Variant `json:"variant,omitempty"`
	Status  Status           `json:"status"`
}

// Purchasable reports whether the selection resolved to a complete, available variant.
func (r Result) Purchasable() bool {
	return r.Status == Resolved && r.Variant != nil
}

// Resolve returns the first variant whose options match every key of selection.
// Keys absent from selection are not compared. A selection naming an undeclared option
// or an illegal value never matches.
func Resolve(product *catalog.Product, selection map[string]string) Result {
	for name, value := range selection {
		opt, ok := product.Option(name)
		if !ok || !contains(opt.Values, value) {
			return Result{Status: NotFound}
		}
	}

	for i := range product.Variants {
		v := &product.Variants[i]
		if !matches(v, selection) {
			continue
		}
		switch {
		case len(selection) < len(product.Options):
			return Result{Variant: v, Status: Incomplete}
		case !v.AvailableForSale:
			return Result{Variant: v, Status: Unavailable}
		default:
			return Result{Variant: v, Status: Resolved}
		}
	}
	return Result{Status: NotFound}
}

// DefaultSelection picks the first value of every option.
func DefaultSelection(product *catalog.Product) map[string]string {
	sel := make(map[string]string, len(product.Options))
	for _, o := range product.Options {
		if len(o.Values) > 0 {
			sel[o.Name] = o.Values[0]
		}
	}
	return sel
}

// CheckUnique asserts that no two variants share a full selection and that every variant
// assigns exactly one legal value per option.
func CheckUnique(product *catalog.Product) error {
	return product.Validate()
}

func matches(v *catalog.Variant, selection map[string]string) bool {
	for name, want := range selection {
		found := false
		for _, so := range v.SelectedOptions {
			if so.Name == name {
				if so.Value != want {
					return false
				}
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
