package ledger

import "context"

// Repository persists accounts and their append-only entries.
type Repository interface {
	GetOrCreateAccount(ctx context.Context, customerID int64) (*Account, error)
	History(ctx context.Context, customerID int64, limit int) ([]Entry, error)

	// SumByReference returns the net point effect a reversal of the
	// reference would undo right now: reversed entries and reversal
	// entries are excluded.
	SumByReference(ctx context.Context, customerID int64, reference string) (int64, error)

	// InTx runs fn holding an exclusive lock on the customer's account row,
	// creating the row first when absent. The balance mutation and the new
	// entry commit together or not at all. A lock wait past the configured
	// timeout surfaces ErrBusy.
	InTx(ctx context.Context, customerID int64, fn func(tx AccountTx) error) error
}

// AccountTx is the view of one locked account inside a transaction.
type AccountTx interface {
	// Account returns the locked row as of lock acquisition.
	Account() *Account

	// EntriesByReference locks and returns every live entry of this customer
	// carrying the reference, oldest first. Entries already consumed by a
	// reversal, and reversal entries themselves, are not live.
	EntriesByReference(reference string) ([]Entry, error)

	// MarkReversed tags every live entry under the reference as consumed.
	MarkReversed(reference string) error

	// Apply writes the new balance and tier and appends the entry.
	Apply(newBalance int64, tier string, entry *Entry) error
}
