package valuation

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/ledgerview/ledgerview/internal/domain"
)

// HistoryReport is a historical price series with summary statistics derived
// from its daily returns.
type HistoryReport struct {
	Symbol          string              `json:"symbol"`
	Range           string              `json:"range"`
	Points          []domain.PricePoint `json:"points"`
	FirstPrice      float64             `json:"first_price"`
	LastPrice       float64             `json:"last_price"`
	TotalReturnPct  float64             `json:"total_return_pct"`
	MeanDailyReturn float64             `json:"mean_daily_return"`
	Volatility      float64             `json:"volatility"`
	MaxDrawdownPct  float64             `json:"max_drawdown_pct"`
}

// HistoryReport fetches the symbol's price series for the given range and
// derives return statistics from it. Statistics are zero when the series has
// fewer than two points.
func (e *Engine) HistoryReport(ctx context.Context, symbol, historyRange string) (HistoryReport, error) {
	points, err := e.quotes.History(ctx, symbol, historyRange)
	if err != nil {
		return HistoryReport{}, fmt.Errorf("failed to build history report for %s: %w", symbol, err)
	}

	report := HistoryReport{
		Symbol: symbol,
		Range:  historyRange,
		Points: points,
	}
	if len(points) == 0 {
		return report, nil
	}

	report.FirstPrice = points[0].Price
	report.LastPrice = points[len(points)-1].Price
	if report.FirstPrice > 0 {
		report.TotalReturnPct = round((report.LastPrice-report.FirstPrice)/report.FirstPrice*100, 2)
	}

	if len(points) < 2 {
		return report, nil
	}

	returns := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev := points[i-1].Price
		if prev <= 0 {
			continue
		}
		returns = append(returns, (points[i].Price-prev)/prev)
	}
	if len(returns) > 0 {
		report.MeanDailyReturn = stat.Mean(returns, nil)
		if len(returns) > 1 {
			report.Volatility = stat.StdDev(returns, nil)
		}
	}

	report.MaxDrawdownPct = round(maxDrawdown(points)*100, 2)

	return report, nil
}

// maxDrawdown returns the largest peak-to-trough decline in the series as a
// positive fraction.
func maxDrawdown(points []domain.PricePoint) float64 {
	peak := points[0].Price
	worst := 0.0
	for _, p := range points[1:] {
		if p.Price > peak {
			peak = p.Price
			continue
		}
		if peak > 0 {
			drawdown := (peak - p.Price) / peak
			worst = math.Max(worst, drawdown)
		}
	}
	return worst
}

func round(val float64, decimals int) float64 {
	multiplier := math.Pow(10, float64(decimals))
	return math.Round(val*multiplier) / multiplier
}
