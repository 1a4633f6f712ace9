package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindEarn       Kind = "earn"
	KindRedeem     Kind = "redeem"
	KindBonus      Kind = "bonus"
	KindAdjustment Kind = "adjustment"
	KindReversal   Kind = "reversal"
)

// Account is the per-customer balance row. The balance is mutated only
// through Service operations, inside the same transaction that appends the
// matching Entry.
type Account struct {
	ID         int64     `db:"id" json:"id"`
	CustomerID int64     `db:"customer_id" json:"customer_id"`
	Balance    int64     `db:"balance" json:"balance"`
	Tier       string    `db:"tier" json:"tier"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Entry is one immutable audit record. Entries are appended inside ledger
// operations and never deleted; the only field that ever changes after the
// fact is Reversed, set when a reversal consumes the entry so it cannot be
// reversed twice.
type Entry struct {
	ID               uuid.UUID       `db:"id" json:"id"`
	CustomerID       int64           `db:"customer_id" json:"customer_id"`
	OccurredAt       time.Time       `db:"occurred_at" json:"occurred_at"`
	Kind             Kind            `db:"kind" json:"kind"`
	AmountMoney      decimal.Decimal `db:"amount_money" json:"amount_money"`
	PointsEarned     int64           `db:"points_earned" json:"points_earned"`
	PointsSpent      int64           `db:"points_spent" json:"points_spent"`
	ResultingBalance int64           `db:"resulting_balance" json:"resulting_balance"`
	Reference        string          `db:"reference" json:"reference"`
	Actor            string          `db:"actor" json:"actor,omitempty"`
	Reason           string          `db:"reason" json:"reason"`
	Reversed         bool            `db:"reversed" json:"reversed"`
	Metadata         Metadata        `db:"metadata" json:"metadata,omitempty"`
}

// NetPoints is the signed point effect of the entry.
func (e *Entry) NetPoints() int64 {
	return e.PointsEarned - e.PointsSpent
}

// Validate enforces the entry invariants before it is persisted.
func (e *Entry) Validate() error {
	if e.PointsEarned < 0 || e.PointsSpent < 0 {
		return errors.New("entry points must be non-negative")
	}
	if e.PointsEarned > 0 && e.PointsSpent > 0 {
		return errors.New("entry cannot both earn and spend points")
	}
	if e.ResultingBalance < 0 {
		return errors.New("entry resulting balance must be non-negative")
	}
	switch e.Kind {
	case KindEarn, KindRedeem, KindBonus, KindAdjustment, KindReversal:
	default:
		return fmt.Errorf("unknown entry kind %q", e.Kind)
	}
	return nil
}

// Metadata is a free-form key/value payload stored as JSONB.
type Metadata map[string]any

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(src any) error {
	if src == nil {
		*m = Metadata{}
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	if len(data) == 0 {
		*m = Metadata{}
		return nil
	}
	return json.Unmarshal(data, m)
}
