package salecart

import "errors"

var (
	// ErrStockExceeded is returned when a target quantity is above the known
	// stock ceiling. The cart is left unchanged.
	ErrStockExceeded = errors.New("not enough stock")
	// ErrQuoteUnavailable is returned when the pricing round trip failed or
	// produced an unusable quote. The line keeps its previous state.
	ErrQuoteUnavailable = errors.New("price quote unavailable")
	// ErrSubmissionFailed wraps any error from the sale submission service.
	// The cart is preserved so the sale can be corrected and resubmitted.
	ErrSubmissionFailed = errors.New("sale submission failed")

	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrNotInCart            = errors.New("medicine is not in the cart")
	ErrEmptyCart            = errors.New("cart is empty")
	// ErrLinePending guards a line whose quote is still in flight.
	ErrLinePending = errors.New("a price quote is still pending")
	// ErrSubmitInFlight is returned while a submission is outstanding; the
	// cart is frozen until it completes.
	ErrSubmitInFlight = errors.New("a sale submission is in progress")
)
