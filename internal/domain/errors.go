package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInvalidSide     = errors.New("invalid_side")
	ErrInvalidType     = errors.New("invalid_type")
	ErrMissingPrice    = errors.New("missing_price")
	ErrInvalidPrice    = errors.New("invalid_price")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidPair     = errors.New("invalid_pair")
	ErrNoLiquidity     = errors.New("no_liquidity")
	ErrOrderNotFound   = errors.New("order_not_found")

	// Book invariant violations. Reaching either of these from the matcher
	// means its bookkeeping is wrong.
	ErrEmptyBook   = errors.New("empty_book")
	ErrDuplicateID = errors.New("duplicate_order_id")

	ErrInternal        = errors.New("internal_error")
	ErrSequencerClosed = errors.New("sequencer_closed")
)

// ValidationError represents a request validation failure. Err, when set,
// is the sentinel the failure corresponds to.
type ValidationError struct {
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Invalid returns a ValidationError wrapping the given sentinel.
func Invalid(err error, message string) *ValidationError {
	return &ValidationError{Message: message, Err: err}
}
