package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"pointsledger/internal/logger"
	"pointsledger/internal/metrics"
	"pointsledger/internal/points"
	"pointsledger/internal/program"
)

// ServiceRef identifies the billed service for exclusion checks.
type ServiceRef struct {
	ID       int64
	Name     string
	Category string
}

// Service is the transactional ledger core. Every mutating operation runs
// inside a single customer-row-locked transaction: the balance change and its
// audit entry commit together or not at all.
type Service interface {
	// Grant credits points for a completed transaction and returns how many
	// were granted. Excluded services and zero-point computations return 0
	// without touching the ledger.
	Grant(ctx context.Context, customerID int64, subtotal decimal.Decimal, reference, actor, reason string, svc *ServiceRef) (int64, error)

	// Redeem debits points and returns their currency value.
	Redeem(ctx context.Context, customerID, pts int64, reference, actor, reason string) (decimal.Decimal, error)

	// Adjust applies a manual delta, positive or negative.
	Adjust(ctx context.Context, customerID, delta int64, reference, actor, reason string) error

	// ReverseByReference undoes the net point effect of every live entry
	// carrying the reference and returns that net. Consumed entries are
	// tagged reversed, so a repeat invocation finds nothing live and fails
	// with ErrNoEntriesForReference. A zero net is a no-op returning 0.
	ReverseByReference(ctx context.Context, customerID int64, reference, actor, reason string) (int64, error)

	CurrentBalance(ctx context.Context, customerID int64) (int64, error)
	History(ctx context.Context, customerID int64, limit int) ([]Entry, error)
}

type service struct {
	repo    Repository
	configs program.ConfigStore
}

func NewService(repo Repository, configs program.ConfigStore) Service {
	return &service{
		repo:    repo,
		configs: configs,
	}
}

func (s *service) Grant(ctx context.Context, customerID int64, subtotal decimal.Decimal, reference, actor, reason string, svc *ServiceRef) (int64, error) {
	cfg, err := s.configs.Load(ctx)
	if err != nil {
		recordResult("grant", err)
		return 0, err
	}

	if svc != nil && !cfg.AllowsService(svc.ID, svc.Category) {
		metrics.RecordOperation("grant", "excluded")
		return 0, nil
	}

	var granted int64
	err = s.repo.InTx(ctx, customerID, func(tx AccountTx) error {
		account := tx.Account()
		comp := points.Compute(subtotal, cfg, cfg.Tiers, account.Balance)
		if comp.Points <= 0 {
			logger.WithFields(map[string]any{
				"customer_id": customerID,
				"reference":   reference,
			}).Debug("grant computed zero points", "detail", comp.Description)
			return nil
		}

		newBalance := account.Balance + comp.Points
		tier := tierNameFor(cfg.Tiers, newBalance)

		metadata := Metadata(comp.Metadata)
		metadata["detail"] = comp.Description
		if svc != nil {
			metadata["service_id"] = svc.ID
			if svc.Name != "" {
				metadata["service"] = svc.Name
			}
		}

		entryReason := reason
		if entryReason == "" {
			entryReason = comp.Description
		}

		granted = comp.Points
		return tx.Apply(newBalance, tier, &Entry{
			Kind:         KindEarn,
			AmountMoney:  comp.Subtotal.Round(2),
			PointsEarned: comp.Points,
			Reference:    reference,
			Actor:        actor,
			Reason:       entryReason,
			Metadata:     metadata,
		})
	})
	if err != nil {
		recordResult("grant", err)
		return 0, err
	}

	metrics.RecordOperation("grant", "ok")
	metrics.RecordPointsGranted(granted)
	return granted, nil
}

func (s *service) Redeem(ctx context.Context, customerID, pts int64, reference, actor, reason string) (decimal.Decimal, error) {
	if pts <= 0 {
		recordResult("redeem", ErrInvalidAmount)
		return decimal.Zero, ErrInvalidAmount
	}

	cfg, err := s.configs.Load(ctx)
	if err != nil {
		recordResult("redeem", err)
		return decimal.Zero, err
	}

	value := points.RedemptionValue(pts, cfg)
	if !value.IsPositive() {
		recordResult("redeem", ErrRedemptionNotConfigured)
		return decimal.Zero, ErrRedemptionNotConfigured
	}

	err = s.repo.InTx(ctx, customerID, func(tx AccountTx) error {
		account := tx.Account()
		if account.Balance < pts {
			return ErrInsufficientBalance
		}

		newBalance := account.Balance - pts
		tier := tierNameFor(cfg.Tiers, newBalance)

		entryReason := reason
		if entryReason == "" {
			entryReason = "Points redeemed"
		}

		return tx.Apply(newBalance, tier, &Entry{
			Kind:        KindRedeem,
			AmountMoney: value.Neg(),
			PointsSpent: pts,
			Reference:   reference,
			Actor:       actor,
			Reason:      entryReason,
			Metadata: Metadata{
				"points":        pts,
				"value":         value.String(),
				"redeem_points": cfg.RedeemRatePoints,
				"redeem_amount": cfg.RedeemRateAmount,
			},
		})
	})
	if err != nil {
		recordResult("redeem", err)
		return decimal.Zero, err
	}

	metrics.RecordOperation("redeem", "ok")
	metrics.RecordPointsRedeemed(pts)
	return value, nil
}

func (s *service) Adjust(ctx context.Context, customerID, delta int64, reference, actor, reason string) error {
	if delta == 0 {
		recordResult("adjust", ErrInvalidAmount)
		return ErrInvalidAmount
	}

	cfg, err := s.configs.Load(ctx)
	if err != nil {
		recordResult("adjust", err)
		return err
	}

	err = s.repo.InTx(ctx, customerID, func(tx AccountTx) error {
		account := tx.Account()
		newBalance := account.Balance + delta
		if newBalance < 0 {
			return ErrInsufficientBalance
		}

		tier := tierNameFor(cfg.Tiers, newBalance)

		entry := &Entry{
			Kind:      KindAdjustment,
			Reference: reference,
			Actor:     actor,
			Reason:    reason,
			Metadata:  Metadata{"delta": delta},
		}
		if delta > 0 {
			entry.Kind = KindBonus
			entry.PointsEarned = delta
		} else {
			entry.PointsSpent = -delta
		}

		return tx.Apply(newBalance, tier, entry)
	})
	if err != nil {
		recordResult("adjust", err)
		return err
	}

	metrics.RecordOperation("adjust", "ok")
	return nil
}

func (s *service) ReverseByReference(ctx context.Context, customerID int64, reference, actor, reason string) (int64, error) {
	cfg, err := s.configs.Load(ctx)
	if err != nil {
		recordResult("reverse", err)
		return 0, err
	}

	var net int64
	err = s.repo.InTx(ctx, customerID, func(tx AccountTx) error {
		entries, err := tx.EntriesByReference(reference)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return ErrNoEntriesForReference
		}

		net = 0
		for i := range entries {
			net += entries[i].NetPoints()
		}
		if net == 0 {
			// Already balanced out, nothing to reverse.
			return nil
		}

		account := tx.Account()
		newBalance := account.Balance - net
		clamped := false
		if newBalance < 0 {
			newBalance = 0
			clamped = true
		}

		tier := tierNameFor(cfg.Tiers, newBalance)

		entryReason := reason
		if entryReason == "" {
			entryReason = "Automatic reversal"
		}

		entry := &Entry{
			Kind:      KindReversal,
			Reference: reference,
			Actor:     actor,
			Reason:    entryReason,
			Metadata: Metadata{
				"reversed_net":     net,
				"reversed_entries": len(entries),
				"clamped":          clamped,
			},
		}
		if net > 0 {
			// The clamp may undo fewer points than the reference earned.
			entry.PointsSpent = account.Balance - newBalance
		} else {
			entry.PointsEarned = -net
		}

		if err := tx.MarkReversed(reference); err != nil {
			return err
		}
		return tx.Apply(newBalance, tier, entry)
	})
	if err != nil {
		recordResult("reverse", err)
		return 0, err
	}

	metrics.RecordOperation("reverse", "ok")
	return net, nil
}

func (s *service) CurrentBalance(ctx context.Context, customerID int64) (int64, error) {
	account, err := s.repo.GetOrCreateAccount(ctx, customerID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

func (s *service) History(ctx context.Context, customerID int64, limit int) ([]Entry, error) {
	return s.repo.History(ctx, customerID, limit)
}

func tierNameFor(tiers []program.Tier, balance int64) string {
	tier, ok := program.TierForBalance(tiers, balance)
	if !ok {
		return ""
	}
	return tier.Name
}

func recordResult(op string, err error) {
	switch {
	case errors.Is(err, ErrBusy):
		metrics.RecordLockBusy()
		metrics.RecordOperation(op, "busy")
	default:
		metrics.RecordOperation(op, "error")
	}
}
