package program

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
)

// Store persists the program configuration as a single row with pk 1. A
// second instance cannot be created: Load get-or-creates that row and Save
// only ever upserts it.
type Store struct {
	db       *sqlx.DB
	validate *validator.Validate
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{
		db:       db,
		validate: validator.New(),
	}
}

type configRow struct {
	ID                  int64     `db:"id"`
	RatePoints          int64     `db:"rate_points"`
	RateBaseAmount      int64     `db:"rate_base_amount"`
	RedeemRatePoints    int64     `db:"redeem_rate_points"`
	RedeemRateAmount    int64     `db:"redeem_rate_amount"`
	MaxPointsPerInvoice int64     `db:"max_points_per_invoice"`
	ExcludedServiceIDs  []byte    `db:"excluded_service_ids"`
	ExcludedCategories  []byte    `db:"excluded_categories"`
	Tiers               []byte    `db:"tiers"`
	UpdatedAt           time.Time `db:"updated_at"`
}

const configColumns = `id, rate_points, rate_base_amount, redeem_rate_points, redeem_rate_amount,
		max_points_per_invoice, excluded_service_ids, excluded_categories, tiers, updated_at`

// Load returns the singleton configuration, creating it with defaults when
// missing.
func (s *Store) Load(ctx context.Context) (*Config, error) {
	var row configRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+configColumns+` FROM loyalty_program_config WHERE id = 1`)
	if err == nil {
		return rowToConfig(&row)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to load program config: %w", err)
	}

	defaults := DefaultConfig()
	err = s.db.QueryRowxContext(ctx,
		`INSERT INTO loyalty_program_config
			(id, rate_points, rate_base_amount, redeem_rate_points, redeem_rate_amount,
			 max_points_per_invoice, excluded_service_ids, excluded_categories, tiers)
		 VALUES (1, $1, $2, $3, $4, $5, '[]', '[]', '{}')
		 ON CONFLICT (id) DO UPDATE SET id = loyalty_program_config.id
		 RETURNING `+configColumns,
		defaults.RatePoints, defaults.RateBaseAmount,
		defaults.RedeemRatePoints, defaults.RedeemRateAmount,
		defaults.MaxPointsPerInvoice,
	).StructScan(&row)
	if err != nil {
		return nil, fmt.Errorf("failed to create default program config: %w", err)
	}

	return rowToConfig(&row)
}

// Save validates and upserts the singleton row. The incoming ID is ignored.
func (s *Store) Save(ctx context.Context, cfg *Config) error {
	if err := s.validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid program config: %w", err)
	}

	excludedIDs, err := json.Marshal(orEmptyIDs(cfg.ExcludedServiceIDs))
	if err != nil {
		return err
	}
	excludedCategories, err := json.Marshal(orEmptyStrings(cfg.ExcludedCategories))
	if err != nil {
		return err
	}
	tiersRaw := cfg.TiersRaw
	if tiersRaw == nil {
		tiersRaw = map[string]any{}
	}
	tiers, err := json.Marshal(tiersRaw)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO loyalty_program_config
			(id, rate_points, rate_base_amount, redeem_rate_points, redeem_rate_amount,
			 max_points_per_invoice, excluded_service_ids, excluded_categories, tiers, updated_at)
		 VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 ON CONFLICT (id) DO UPDATE SET
			rate_points = EXCLUDED.rate_points,
			rate_base_amount = EXCLUDED.rate_base_amount,
			redeem_rate_points = EXCLUDED.redeem_rate_points,
			redeem_rate_amount = EXCLUDED.redeem_rate_amount,
			max_points_per_invoice = EXCLUDED.max_points_per_invoice,
			excluded_service_ids = EXCLUDED.excluded_service_ids,
			excluded_categories = EXCLUDED.excluded_categories,
			tiers = EXCLUDED.tiers,
			updated_at = NOW()`,
		cfg.RatePoints, cfg.RateBaseAmount,
		cfg.RedeemRatePoints, cfg.RedeemRateAmount,
		cfg.MaxPointsPerInvoice,
		excludedIDs, excludedCategories, tiers,
	)
	if err != nil {
		return fmt.Errorf("failed to save program config: %w", err)
	}

	cfg.ID = 1
	cfg.Tiers = ParseTiers(tiersRaw)
	return nil
}

func rowToConfig(row *configRow) (*Config, error) {
	cfg := &Config{
		ID:                  row.ID,
		RatePoints:          row.RatePoints,
		RateBaseAmount:      row.RateBaseAmount,
		RedeemRatePoints:    row.RedeemRatePoints,
		RedeemRateAmount:    row.RedeemRateAmount,
		MaxPointsPerInvoice: row.MaxPointsPerInvoice,
		ExcludedServiceIDs:  []int64{},
		ExcludedCategories:  []string{},
		TiersRaw:            map[string]any{},
		UpdatedAt:           row.UpdatedAt,
	}

	if len(row.ExcludedServiceIDs) > 0 {
		if err := json.Unmarshal(row.ExcludedServiceIDs, &cfg.ExcludedServiceIDs); err != nil {
			return nil, fmt.Errorf("failed to decode excluded services: %w", err)
		}
	}
	if len(row.ExcludedCategories) > 0 {
		if err := json.Unmarshal(row.ExcludedCategories, &cfg.ExcludedCategories); err != nil {
			return nil, fmt.Errorf("failed to decode excluded categories: %w", err)
		}
	}
	if len(row.Tiers) > 0 {
		if err := json.Unmarshal(row.Tiers, &cfg.TiersRaw); err != nil {
			return nil, fmt.Errorf("failed to decode tiers: %w", err)
		}
	}

	cfg.Tiers = ParseTiers(cfg.TiersRaw)
	return cfg, nil
}

func orEmptyIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func orEmptyStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
