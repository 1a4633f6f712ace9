package program

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tier is one loyalty level. A customer qualifies for the tier with the
// largest Threshold not exceeding their balance.
type Tier struct {
	Name       string          `json:"name"`
	Threshold  int64           `json:"threshold"`
	Multiplier decimal.Decimal `json:"multiplier"`
	FixedBonus int64           `json:"fixed_bonus"`
}

// Config holds the program-wide loyalty parameters. Exactly one row exists
// system-wide; the store enforces that.
type Config struct {
	ID int64 `db:"id" json:"id"`

	// RatePoints points are granted for every RateBaseAmount of subtotal.
	RatePoints     int64 `db:"rate_points" json:"rate_points" validate:"gte=0"`
	RateBaseAmount int64 `db:"rate_base_amount" json:"rate_base_amount" validate:"gte=0"`

	// RedeemRatePoints points are worth RedeemRateAmount of currency on redemption.
	RedeemRatePoints int64 `db:"redeem_rate_points" json:"redeem_rate_points" validate:"gte=0"`
	RedeemRateAmount int64 `db:"redeem_rate_amount" json:"redeem_rate_amount" validate:"gte=0"`

	// MaxPointsPerInvoice caps a single grant. 0 means unlimited.
	MaxPointsPerInvoice int64 `db:"max_points_per_invoice" json:"max_points_per_invoice" validate:"gte=0"`

	ExcludedServiceIDs []int64  `json:"excluded_service_ids"`
	ExcludedCategories []string `json:"excluded_categories"`

	// TiersRaw is the admin-edited tier blob. Tiers is its normalized form,
	// rebuilt by ParseTiers on every load.
	TiersRaw map[string]any `json:"tiers_raw"`
	Tiers    []Tier         `json:"tiers"`

	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultConfig mirrors the historical program defaults: 1 point per 1000
// of subtotal, 100 points redeem for 1000 of currency, no cap.
func DefaultConfig() *Config {
	return &Config{
		ID:                 1,
		RatePoints:         1,
		RateBaseAmount:     1000,
		RedeemRatePoints:   100,
		RedeemRateAmount:   1000,
		ExcludedServiceIDs: []int64{},
		ExcludedCategories: []string{},
		TiersRaw:           map[string]any{},
	}
}

// AllowsService reports whether a service may earn points under this config.
func (c *Config) AllowsService(serviceID int64, category string) bool {
	for _, id := range c.ExcludedServiceIDs {
		if id == serviceID {
			return false
		}
	}
	if category != "" {
		for _, excluded := range c.ExcludedCategories {
			if excluded == category {
				return false
			}
		}
	}
	return true
}
