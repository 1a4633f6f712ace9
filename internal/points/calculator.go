// Package points computes loyalty points for a transaction. Everything here
// is pure: soft conditions (non-positive subtotal, incomplete configuration)
// yield a zero result with an explanatory reason instead of an error, so the
// grant path can no-op silently.
package points

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"pointsledger/internal/program"
)

// Computation is the full breakdown of one points calculation.
type Computation struct {
	Points     int64
	BasePoints int64
	TierBonus  int64
	FixedBonus int64

	Subtotal    decimal.Decimal
	Description string
	Metadata    map[string]any
}

// Compute calculates the points earned for a subtotal given the program
// configuration, the normalized tier list and the customer's balance before
// the transaction. Points round half-up to the nearest integer.
func Compute(subtotal decimal.Decimal, cfg *program.Config, tiers []program.Tier, balanceBefore int64) Computation {
	metadata := map[string]any{
		"subtotal":         subtotal.Round(2).String(),
		"rate_points":      cfg.RatePoints,
		"rate_base_amount": cfg.RateBaseAmount,
	}

	if !subtotal.IsPositive() {
		metadata["reason"] = "subtotal_not_positive"
		return Computation{
			Subtotal:    subtotal,
			Description: "Subtotal too low to earn points.",
			Metadata:    metadata,
		}
	}
	if cfg.RatePoints <= 0 || cfg.RateBaseAmount <= 0 {
		metadata["reason"] = "config_incomplete"
		return Computation{
			Subtotal:    subtotal,
			Description: "Points configuration incomplete.",
			Metadata:    metadata,
		}
	}

	basePoints := roundHalfUp(subtotal.
		Mul(decimal.NewFromInt(cfg.RatePoints)).
		Div(decimal.NewFromInt(cfg.RateBaseAmount)))
	if basePoints < 0 {
		basePoints = 0
	}

	var parts []string
	if basePoints > 0 {
		parts = append(parts, fmt.Sprintf("%d pts base (%d per %d)",
			basePoints, cfg.RatePoints, cfg.RateBaseAmount))
	} else {
		parts = append(parts, fmt.Sprintf("Purchase below the %d base unit", cfg.RateBaseAmount))
	}

	var tierBonus, fixedBonus int64
	tier, hasTier := program.TierForBalance(tiers, balanceBefore)
	if hasTier {
		multiplier := tier.Multiplier
		if multiplier.IsNegative() {
			multiplier = decimal.Zero
		}
		withMultiplier := roundHalfUp(decimal.NewFromInt(basePoints).Mul(multiplier))
		tierBonus = withMultiplier - basePoints

		metadata["tier"] = tier.Name
		metadata["multiplier"] = multiplier.String()
		if tierBonus != 0 {
			sign := ""
			if tierBonus > 0 {
				sign = "+"
			}
			parts = append(parts, fmt.Sprintf("%s%d pts tier %s x%s",
				sign, tierBonus, tier.Name, multiplier.String()))
		}

		fixedBonus = tier.FixedBonus
		if fixedBonus < 0 {
			fixedBonus = 0
		}
		if fixedBonus > 0 {
			parts = append(parts, fmt.Sprintf("+%d pts fixed bonus tier %s", fixedBonus, tier.Name))
		}
	} else {
		metadata["tier"] = ""
		metadata["multiplier"] = "1"
	}

	total := basePoints + tierBonus + fixedBonus
	if total < 0 {
		total = 0
	}

	metadata["base_points"] = basePoints
	metadata["tier_bonus"] = tierBonus
	metadata["fixed_bonus"] = fixedBonus

	if cfg.MaxPointsPerInvoice > 0 && total > cfg.MaxPointsPerInvoice {
		parts = append(parts, fmt.Sprintf("Cap of %d pts applied", cfg.MaxPointsPerInvoice))
		metadata["cap_applied"] = cfg.MaxPointsPerInvoice
		total = cfg.MaxPointsPerInvoice
	}

	if next, ok := program.NextTier(tiers, balanceBefore+total); ok {
		metadata["next_tier"] = map[string]any{
			"name":      next.Name,
			"threshold": next.Threshold,
			"missing":   next.Threshold - (balanceBefore + total),
		}
	}

	metadata["total_points"] = total

	return Computation{
		Points:      total,
		BasePoints:  basePoints,
		TierBonus:   tierBonus,
		FixedBonus:  fixedBonus,
		Subtotal:    subtotal,
		Description: strings.Join(parts, "; "),
		Metadata:    metadata,
	}
}

// RedemptionValue converts points to their currency value at the configured
// redemption rate, quantized to two decimals. Non-positive points or an
// unconfigured rate yield zero.
func RedemptionValue(points int64, cfg *program.Config) decimal.Decimal {
	if points <= 0 || cfg.RedeemRatePoints <= 0 || cfg.RedeemRateAmount <= 0 {
		return decimal.Zero.Round(2)
	}
	return decimal.NewFromInt(points).
		Mul(decimal.NewFromInt(cfg.RedeemRateAmount)).
		Div(decimal.NewFromInt(cfg.RedeemRatePoints)).
		Round(2)
}

// roundHalfUp rounds to the nearest integer, halves away from zero.
func roundHalfUp(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
