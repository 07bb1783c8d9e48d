// Package valuation combines ledger holdings with oracle quotes into
// portfolio snapshots.
package valuation

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ledgerview/ledgerview/internal/domain"
	"github.com/ledgerview/ledgerview/internal/modules/allocation"
	"github.com/ledgerview/ledgerview/internal/modules/holdings"
)

// TransactionSource provides the consistent ledger read a snapshot starts from
type TransactionSource interface {
	Query(ctx context.Context, ownerID, symbol string) ([]domain.Transaction, error)
}

// QuoteSource provides price quotes and history series. CurrentPrice never
// fails - degradation is encoded in the quote's provenance.
type QuoteSource interface {
	CurrentPrice(ctx context.Context, symbol string) domain.PriceQuote
	History(ctx context.Context, symbol, historyRange string) ([]domain.PricePoint, error)
}

// Config holds valuation engine tuning
type Config struct {
	LookupConcurrency int           // Concurrent price lookups per snapshot
	SnapshotTimeout   time.Duration // Wall-clock bound on the whole fan-in
}

// DefaultConfig returns the default engine tuning
func DefaultConfig() Config {
	return Config{
		LookupConcurrency: 8,
		SnapshotTimeout:   15 * time.Second,
	}
}

// Engine computes portfolio snapshots.
//
// Price lookups fan out one goroutine per distinct held symbol, bounded by
// the configured concurrency limit, and all join before the snapshot is
// assembled - no partial snapshot is ever returned. Symbols whose lookup has
// not resolved when the snapshot deadline passes come back UNAVAILABLE from
// the oracle's context handling and simply degrade the snapshot.
type Engine struct {
	ledger TransactionSource
	quotes QuoteSource
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time
}

// NewEngine creates a new valuation engine
func NewEngine(ledger TransactionSource, quotes QuoteSource, cfg Config, log zerolog.Logger) *Engine {
	if cfg.LookupConcurrency < 1 {
		cfg.LookupConcurrency = DefaultConfig().LookupConcurrency
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = DefaultConfig().SnapshotTimeout
	}
	return &Engine{
		ledger: ledger,
		quotes: quotes,
		cfg:    cfg,
		log:    log.With().Str("service", "valuation").Logger(),
		now:    time.Now,
	}
}

// ComputeSnapshot values an owner's entire portfolio.
//
// The ledger is read once up front, so transactions arriving mid-computation
// cannot produce a torn view across symbols. Closed positions (quantity 0)
// are dropped. Symbols with a usable price get market value and P/L; symbols
// with an UNAVAILABLE quote still appear, with absent monetary fields, and
// set the snapshot's degraded flag - as do STALE prices.
func (e *Engine) ComputeSnapshot(ctx context.Context, ownerID string) (domain.PortfolioSnapshot, error) {
	if strings.TrimSpace(ownerID) == "" {
		return domain.PortfolioSnapshot{}, fmt.Errorf("owner id is required")
	}

	txs, err := e.ledger.Query(ctx, ownerID, "")
	if err != nil {
		return domain.PortfolioSnapshot{}, fmt.Errorf("failed to read ledger: %w", err)
	}

	var open []domain.Holding
	for _, h := range holdings.Aggregate(ownerID, txs) {
		if h.Quantity > 0 {
			open = append(open, h)
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Symbol < open[j].Symbol })

	snapCtx, cancel := context.WithTimeout(ctx, e.cfg.SnapshotTimeout)
	defer cancel()

	quotes := make([]domain.PriceQuote, len(open))
	var g errgroup.Group
	g.SetLimit(e.cfg.LookupConcurrency)
	for i, h := range open {
		i, symbol := i, h.Symbol
		g.Go(func() error {
			quotes[i] = e.quotes.CurrentPrice(snapCtx, symbol)
			return nil
		})
	}
	// CurrentPrice never errors; Wait is the fan-in barrier.
	_ = g.Wait()

	snap := domain.PortfolioSnapshot{
		GeneratedAt: e.now().UTC(),
		OwnerID:     ownerID,
		Positions:   make([]domain.SymbolValuation, 0, len(open)),
	}

	for i, h := range open {
		quote := quotes[i]
		pos := domain.SymbolValuation{
			Symbol:     h.Symbol,
			Category:   h.Category,
			Provenance: quote.Provenance,
			Quantity:   h.Quantity,
			AvgCost:    h.AvgCost,
			Cost:       h.Quantity * h.AvgCost,
		}

		if quote.Usable() {
			price := *quote.Price
			marketValue := h.Quantity * price
			profitLoss := marketValue - pos.Cost

			pos.Price = &price
			pos.MarketValue = &marketValue
			pos.ProfitLoss = &profitLoss
			profitLossPct := 0.0
			if pos.Cost != 0 {
				profitLossPct = profitLoss / pos.Cost * 100
			}
			pos.ProfitLossPct = &profitLossPct

			snap.TotalValue += marketValue
			snap.TotalCost += pos.Cost
		}

		if quote.Provenance == domain.ProvenanceStale || quote.Provenance == domain.ProvenanceUnavailable {
			snap.Degraded = true
			snap.DegradedSymbols = append(snap.DegradedSymbols, h.Symbol)
		}

		snap.Positions = append(snap.Positions, pos)
	}

	snap.ProfitLoss = snap.TotalValue - snap.TotalCost
	if snap.TotalCost != 0 {
		snap.ProfitLossPct = snap.ProfitLoss / snap.TotalCost * 100
	}

	allocation.Apply(&snap)
	allocation.Round(&snap)

	e.log.Debug().
		Str("owner", ownerID).
		Int("positions", len(snap.Positions)).
		Bool("degraded", snap.Degraded).
		Float64("total_value", snap.TotalValue).
		Msg("Snapshot computed")

	return snap, nil
}

// CategoryBreakdown returns the snapshot's allocation aggregated by asset
// category.
func (e *Engine) CategoryBreakdown(ctx context.Context, ownerID string) ([]allocation.CategoryAllocation, error) {
	snap, err := e.ComputeSnapshot(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return allocation.ByCategory(snap), nil
}
