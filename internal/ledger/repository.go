package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// lockNotAvailable is the postgres SQLSTATE raised when lock_timeout expires.
const lockNotAvailable = "55P03"

const accountColumns = `id, customer_id, balance, tier, created_at, updated_at`

const entryColumns = `id, customer_id, occurred_at, kind, amount_money, points_earned,
		points_spent, resulting_balance, reference, actor, reason, reversed, metadata`

type repository struct {
	db          *sqlx.DB
	lockTimeout time.Duration
}

func NewRepository(db *sqlx.DB, lockTimeout time.Duration) Repository {
	return &repository{db: db, lockTimeout: lockTimeout}
}

func (r *repository) GetOrCreateAccount(ctx context.Context, customerID int64) (*Account, error) {
	a := &Account{}
	err := r.db.GetContext(ctx, a,
		`SELECT `+accountColumns+` FROM loyalty_accounts WHERE customer_id = $1`, customerID)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO loyalty_accounts (customer_id)
		 VALUES ($1)
		 ON CONFLICT (customer_id) DO UPDATE SET updated_at = loyalty_accounts.updated_at
		 RETURNING `+accountColumns,
		customerID,
	).StructScan(a)
	if err != nil {
		return nil, err
	}

	return a, nil
}

func (r *repository) History(ctx context.Context, customerID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	entries := []Entry{}
	err := r.db.SelectContext(ctx, &entries,
		`SELECT `+entryColumns+`
		 FROM loyalty_entries
		 WHERE customer_id = $1
		 ORDER BY occurred_at DESC
		 LIMIT $2`,
		customerID, limit)
	if err != nil {
		return nil, err
	}

	return entries, nil
}

func (r *repository) SumByReference(ctx context.Context, customerID int64, reference string) (int64, error) {
	var net int64
	err := r.db.GetContext(ctx, &net,
		`SELECT COALESCE(SUM(points_earned - points_spent), 0)
		 FROM loyalty_entries
		 WHERE customer_id = $1 AND reference = $2
		   AND reversed = FALSE AND kind <> 'reversal'`,
		customerID, reference)
	if err != nil {
		return 0, err
	}
	return net, nil
}

func (r *repository) InTx(ctx context.Context, customerID int64, fn func(tx AccountTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if r.lockTimeout > 0 {
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds()))
		if err != nil {
			return err
		}
	}

	a := &Account{}
	err = tx.QueryRowxContext(ctx,
		`SELECT `+accountColumns+`
		 FROM loyalty_accounts
		 WHERE customer_id = $1
		 FOR UPDATE`,
		customerID,
	).StructScan(a)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Two first-touch operations can both miss the FOR UPDATE
			// select. The upsert makes the loser take the winner's row
			// (and its lock) instead of failing on the unique constraint.
			err = tx.QueryRowxContext(ctx,
				`INSERT INTO loyalty_accounts (customer_id)
				 VALUES ($1)
				 ON CONFLICT (customer_id) DO UPDATE SET updated_at = loyalty_accounts.updated_at
				 RETURNING `+accountColumns,
				customerID,
			).StructScan(a)
			if err != nil {
				return translateLockErr(err)
			}
		} else {
			return translateLockErr(err)
		}
	}

	if err := fn(&accountTx{ctx: ctx, tx: tx, account: a}); err != nil {
		return translateLockErr(err)
	}

	return tx.Commit()
}

type accountTx struct {
	ctx     context.Context
	tx      *sqlx.Tx
	account *Account
}

func (t *accountTx) Account() *Account {
	return t.account
}

func (t *accountTx) EntriesByReference(reference string) ([]Entry, error) {
	entries := []Entry{}
	err := t.tx.SelectContext(t.ctx, &entries,
		`SELECT `+entryColumns+`
		 FROM loyalty_entries
		 WHERE customer_id = $1 AND reference = $2
		   AND reversed = FALSE AND kind <> 'reversal'
		 ORDER BY occurred_at
		 FOR UPDATE`,
		t.account.CustomerID, reference)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (t *accountTx) MarkReversed(reference string) error {
	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE loyalty_entries
		 SET reversed = TRUE
		 WHERE customer_id = $1 AND reference = $2
		   AND reversed = FALSE AND kind <> 'reversal'`,
		t.account.CustomerID, reference)
	return err
}

func (t *accountTx) Apply(newBalance int64, tier string, entry *Entry) error {
	if newBalance < 0 {
		return ErrInsufficientBalance
	}

	entry.CustomerID = t.account.CustomerID
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
	entry.ResultingBalance = newBalance
	if err := entry.Validate(); err != nil {
		return err
	}

	_, err := t.tx.ExecContext(t.ctx,
		`UPDATE loyalty_accounts
		 SET balance = $1, tier = $2, updated_at = NOW()
		 WHERE id = $3`,
		newBalance, tier, t.account.ID)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(t.ctx,
		`INSERT INTO loyalty_entries
			(id, customer_id, occurred_at, kind, amount_money, points_earned,
			 points_spent, resulting_balance, reference, actor, reason, reversed, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.ID, entry.CustomerID, entry.OccurredAt, entry.Kind, entry.AmountMoney,
		entry.PointsEarned, entry.PointsSpent, entry.ResultingBalance,
		entry.Reference, entry.Actor, entry.Reason, entry.Reversed, entry.Metadata)
	if err != nil {
		return err
	}

	t.account.Balance = newBalance
	t.account.Tier = tier
	return nil
}

func translateLockErr(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == lockNotAvailable {
		return ErrBusy
	}
	return err
}
