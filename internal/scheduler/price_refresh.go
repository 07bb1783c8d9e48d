package scheduler

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// SymbolLister reports the symbols currently held across all owners
type SymbolLister interface {
	HeldSymbols(ctx context.Context) ([]string, error)
}

// QuoteRefresher force-fetches fresh quotes for a set of symbols
type QuoteRefresher interface {
	RefreshSymbols(ctx context.Context, symbols []string) error
}

// PriceRefreshJob keeps quotes for held symbols warm so snapshot requests hit
// the cache instead of the provider.
type PriceRefreshJob struct {
	symbols SymbolLister
	quotes  QuoteRefresher
	log     zerolog.Logger
}

// NewPriceRefreshJob creates a new price refresh job
func NewPriceRefreshJob(symbols SymbolLister, quotes QuoteRefresher, log zerolog.Logger) *PriceRefreshJob {
	return &PriceRefreshJob{
		symbols: symbols,
		quotes:  quotes,
		log:     log.With().Str("job", "price_refresh").Logger(),
	}
}

// Name returns the job name
func (j *PriceRefreshJob) Name() string {
	return "price_refresh"
}

// Run refreshes quotes for every held symbol
func (j *PriceRefreshJob) Run(ctx context.Context) error {
	symbols, err := j.symbols.HeldSymbols(ctx)
	if err != nil {
		return fmt.Errorf("failed to list held symbols: %w", err)
	}
	if len(symbols) == 0 {
		j.log.Debug().Msg("No held symbols, nothing to refresh")
		return nil
	}

	if err := j.quotes.RefreshSymbols(ctx, symbols); err != nil {
		return fmt.Errorf("quote refresh failed: %w", err)
	}

	j.log.Debug().Int("symbols", len(symbols)).Msg("Refreshed held symbol quotes")
	return nil
}
