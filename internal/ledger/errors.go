package ledger

import "errors"

var (
	// ErrInvalidAmount rejects non-positive redemptions and zero adjustments.
	ErrInvalidAmount = errors.New("amount must be non-zero")

	// ErrInsufficientBalance rejects mutations that would drive a balance negative.
	ErrInsufficientBalance = errors.New("insufficient points balance")

	// ErrNoEntriesForReference means a reversal found nothing to undo.
	ErrNoEntriesForReference = errors.New("no ledger entries for reference")

	// ErrRedemptionNotConfigured means the redemption rate produces no discount.
	ErrRedemptionNotConfigured = errors.New("redemption rate is not configured")

	// ErrBusy means the customer row lock could not be acquired in time.
	// The operation had no effect and may be retried.
	ErrBusy = errors.New("customer ledger busy, retry")
)
