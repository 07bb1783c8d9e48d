// Package allocation derives percentage allocation breakdowns from snapshot
// market values.
package allocation

import (
	"math"
	"sort"

	"github.com/ledgerview/ledgerview/internal/domain"
)

// Apply sets each position's allocation percentage from its market value and
// the snapshot's total. Positions without a usable price get 0%, as does
// everything when the total value is 0. Values are left unrounded so totals
// re-derived later don't accumulate rounding error; Round applies the display
// rounding as the final step.
func Apply(snap *domain.PortfolioSnapshot) {
	for i := range snap.Positions {
		pos := &snap.Positions[i]
		if pos.MarketValue == nil || snap.TotalValue <= 0 {
			pos.AllocationPct = 0
			continue
		}
		pos.AllocationPct = *pos.MarketValue / snap.TotalValue * 100
	}
}

// CategoryAllocation is the aggregated allocation for one asset category
type CategoryAllocation struct {
	Category      string  `json:"category"`
	Value         float64 `json:"value"`
	AllocationPct float64 `json:"allocation_pct"`
}

// ByCategory aggregates a snapshot's market values by asset category.
// Positions without a usable price contribute nothing.
func ByCategory(snap domain.PortfolioSnapshot) []CategoryAllocation {
	values := make(map[string]float64)
	for _, pos := range snap.Positions {
		if pos.MarketValue == nil {
			continue
		}
		category := pos.Category
		if category == "" {
			category = "Uncategorized"
		}
		values[category] += *pos.MarketValue
	}

	result := make([]CategoryAllocation, 0, len(values))
	for category, value := range values {
		pct := 0.0
		if snap.TotalValue > 0 {
			pct = value / snap.TotalValue * 100
		}
		result = append(result, CategoryAllocation{
			Category:      category,
			Value:         round(value, 2),
			AllocationPct: round(pct, 2),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Category < result[j].Category
	})

	return result
}

// Round applies two-decimal display rounding to a snapshot's monetary and
// percentage fields. Must run after every total has been derived.
func Round(snap *domain.PortfolioSnapshot) {
	for i := range snap.Positions {
		pos := &snap.Positions[i]
		pos.AvgCost = round(pos.AvgCost, 2)
		pos.Cost = round(pos.Cost, 2)
		pos.AllocationPct = round(pos.AllocationPct, 2)
		roundPtr(pos.Price)
		roundPtr(pos.MarketValue)
		roundPtr(pos.ProfitLoss)
		roundPtr(pos.ProfitLossPct)
	}
	snap.TotalValue = round(snap.TotalValue, 2)
	snap.TotalCost = round(snap.TotalCost, 2)
	snap.ProfitLoss = round(snap.ProfitLoss, 2)
	snap.ProfitLossPct = round(snap.ProfitLossPct, 2)
}

func roundPtr(v *float64) {
	if v != nil {
		*v = round(*v, 2)
	}
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(val*multiplier) / multiplier
}
