package program

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"pointsledger/internal/logger"
)

// ParseTiers normalizes the admin-edited tier blob into a validated list.
// Each value is either a bare number (the threshold) or an object whose keys
// come in several historical spellings. Malformed entries are dropped with a
// warning, an object carrying no threshold key at all counts as malformed,
// and an explicit zero multiplier is honored rather than treated as unset.
// Parsing never fails as a whole. The result is sorted ascending by
// (threshold, name).
func ParseTiers(raw map[string]any) []Tier {
	tiers := make([]Tier, 0, len(raw))

	for name, value := range raw {
		var (
			rawThreshold  any
			rawMultiplier any = 1
			rawBonus      any = 0
		)

		if obj, ok := value.(map[string]any); ok {
			rawThreshold = firstKey(obj, "threshold", "umbral", "minimo")
			if v := firstKey(obj, "multiplier", "multiplicador", "factor"); v != nil {
				rawMultiplier = v
			}
			if v := firstKey(obj, "fixed_bonus", "bono_fijo", "bono"); v != nil {
				rawBonus = v
			}
		} else {
			rawThreshold = value
		}

		threshold, ok := toInt64(rawThreshold)
		if !ok || threshold < 0 {
			logger.Warn("skipping malformed tier", "tier", name, "threshold", rawThreshold)
			continue
		}

		multiplier, ok := toDecimal(rawMultiplier)
		if !ok {
			multiplier = decimal.NewFromInt(1)
		}
		if multiplier.IsNegative() {
			multiplier = decimal.Zero
		}
		multiplier = multiplier.Round(4)

		bonus, ok := toInt64(rawBonus)
		if !ok || bonus < 0 {
			bonus = 0
		}

		tiers = append(tiers, Tier{
			Name:       name,
			Threshold:  threshold,
			Multiplier: multiplier,
			FixedBonus: bonus,
		})
	}

	sort.Slice(tiers, func(i, j int) bool {
		if tiers[i].Threshold != tiers[j].Threshold {
			return tiers[i].Threshold < tiers[j].Threshold
		}
		return tiers[i].Name < tiers[j].Name
	})

	return tiers
}

func firstKey(obj map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func toInt64(value any) (int64, bool) {
	switch v := value.(type) {
	case nil:
		return 0, false
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return int64(f), true
	default:
		return 0, false
	}
}

func toDecimal(value any) (decimal.Decimal, bool) {
	switch v := value.(type) {
	case nil:
		return decimal.Zero, false
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case float64:
		return decimal.NewFromFloat(v), true
	case json.Number:
		d, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	case decimal.Decimal:
		return v, true
	default:
		return decimal.Zero, false
	}
}

// TierForBalance picks the tier with the largest threshold not exceeding the
// balance. On equal thresholds the later entry in the sorted list wins. An
// empty name means no tier qualifies.
func TierForBalance(tiers []Tier, balance int64) (Tier, bool) {
	var (
		chosen       Tier
		found        bool
		maxThreshold int64 = -1
	)
	for _, tier := range tiers {
		if balance >= tier.Threshold && tier.Threshold >= maxThreshold {
			chosen = tier
			maxThreshold = tier.Threshold
			found = true
		}
	}
	return chosen, found
}

// NextTier returns the first tier whose threshold is still above the balance.
func NextTier(tiers []Tier, balance int64) (Tier, bool) {
	for _, tier := range tiers {
		if tier.Threshold > balance {
			return tier, true
		}
	}
	return Tier{}, false
}
