package domain

import "github.com/cockroachdb/errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidPromoCode     = errors.New("invalid or expired promo code")
	ErrEmptyCart            = errors.New("cart is empty")
	ErrStorageFailure       = errors.New("storage failure")
	ErrInvariantViolation   = errors.New("invariant violation")
)

// StorageError wraps a driver error and marks it as ErrStorageFailure so
// callers can match it with errors.Is without losing the cause.
func StorageError(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, op), ErrStorageFailure)
}

// Retryable reports whether a unit of work lost a race and may be re-run.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrSerializationFailure)
}
