// Package errors provides the storefront's application-level errors.
package errors

import "errors"

var (
	ErrVariantNotFound     = errors.New("no variant matches the selection")
	ErrVariantUnavailable  = errors.New("selected variant is not available for sale")
	ErrSelectionIncomplete = errors.New("selection does not pick a value for every option")
	ErrEmptyCart           = errors.New("cart is empty")
	ErrPaymentNotAttached  = errors.New("no payment method attached")
)
