package domain

import (
	"errors"
	"testing"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Message: "price is required for limit orders"}
	if err.Error() != "price is required for limit orders" {
		t.Errorf("Error() = %q, want %q", err.Error(), "price is required for limit orders")
	}
}

func TestValidationError_UnwrapsSentinel(t *testing.T) {
	var err error = Invalid(ErrMissingPrice, "price is required")
	if !errors.Is(err, ErrMissingPrice) {
		t.Error("errors.Is(err, ErrMissingPrice) = false, want true")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatal("errors.As should find *ValidationError")
	}
	if ve.Message != "price is required" {
		t.Errorf("Message = %q", ve.Message)
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrInvalidSide,
		ErrInvalidType,
		ErrMissingPrice,
		ErrInvalidPrice,
		ErrInvalidQuantity,
		ErrInvalidPair,
		ErrNoLiquidity,
		ErrOrderNotFound,
		ErrEmptyBook,
		ErrDuplicateID,
		ErrInternal,
		ErrSequencerClosed,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}
