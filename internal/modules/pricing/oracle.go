// Package pricing wraps the external market data provider behind a caching,
// failure-isolating price oracle.
//
// The oracle never surfaces a provider failure as an error: every lookup
// produces a PriceQuote whose provenance tag (LIVE, CACHED, STALE,
// UNAVAILABLE) encodes how the price was obtained, so a single unreachable
// symbol can never abort valuation of the rest of a portfolio.
package pricing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ledgerview/ledgerview/internal/domain"
)

// ProviderQuote is a successful price observation from the provider
type ProviderQuote struct {
	Price    float64
	Currency string
}

// Provider is the external market data source. Implementations are assumed
// to be network-bound, unreliable and rate-limited; the oracle handles all
// three.
type Provider interface {
	FetchQuote(ctx context.Context, symbol string) (ProviderQuote, error)
	FetchHistory(ctx context.Context, symbol, historyRange string) ([]domain.PricePoint, error)
}

// Config holds oracle tuning
type Config struct {
	QuoteTTL     time.Duration // Freshness window for cached quotes
	HistoryTTL   time.Duration // Freshness window for cached history series
	FetchTimeout time.Duration // Per-call bound on provider requests
}

// DefaultConfig returns the default oracle tuning
func DefaultConfig() Config {
	return Config{
		QuoteTTL:     60 * time.Second,
		HistoryTTL:   15 * time.Minute,
		FetchTimeout: 5 * time.Second,
	}
}

type quoteEntry struct {
	price     float64
	currency  string
	fetchedAt time.Time
}

type historyEntry struct {
	points    []domain.PricePoint
	fetchedAt time.Time
}

// Oracle caches quotes per symbol and degrades gracefully when the provider
// fails. The cache is shared across callers and owners - prices are
// symbol-scoped - and supports concurrent readers with short write sections.
type Oracle struct {
	provider Provider
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time

	flight singleflight.Group

	mu        sync.RWMutex
	quotes    map[string]quoteEntry
	histories map[string]historyEntry
}

// New creates a new price oracle
func New(provider Provider, cfg Config, log zerolog.Logger) *Oracle {
	return NewWithClock(provider, cfg, time.Now, log)
}

// NewWithClock creates an oracle with a custom clock. This is primarily used
// for testing TTL behavior.
func NewWithClock(provider Provider, cfg Config, clock func() time.Time, log zerolog.Logger) *Oracle {
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = DefaultConfig().QuoteTTL
	}
	if cfg.HistoryTTL <= 0 {
		cfg.HistoryTTL = DefaultConfig().HistoryTTL
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultConfig().FetchTimeout
	}
	return &Oracle{
		provider:  provider,
		cfg:       cfg,
		log:       log.With().Str("service", "price_oracle").Logger(),
		now:       clock,
		quotes:    make(map[string]quoteEntry),
		histories: make(map[string]historyEntry),
	}
}

// CurrentPrice resolves a quote for one symbol:
//
//  1. A cache entry within TTL is returned tagged CACHED.
//  2. Otherwise the provider is asked, bounded by the fetch timeout;
//     success stores the entry and returns it tagged LIVE.
//  3. On failure an expired entry, if any, is returned tagged STALE with its
//     age; with no entry at all the quote is UNAVAILABLE with a nil price.
//
// Concurrent lookups for the same cold symbol share a single provider call.
func (o *Oracle) CurrentPrice(ctx context.Context, symbol string) domain.PriceQuote {
	now := o.now()

	o.mu.RLock()
	entry, ok := o.quotes[symbol]
	o.mu.RUnlock()

	if ok && now.Sub(entry.fetchedAt) <= o.cfg.QuoteTTL {
		return o.quoteFrom(entry, symbol, domain.ProvenanceCached)
	}

	fresh, err := o.fetchLive(ctx, symbol)
	if err == nil {
		return o.quoteFrom(fresh, symbol, domain.ProvenanceLive)
	}

	notFound := errors.Is(err, domain.ErrSymbolNotFound)
	if ok {
		o.log.Warn().
			Err(err).
			Str("symbol", symbol).
			Dur("age", now.Sub(entry.fetchedAt)).
			Msg("Provider fetch failed, serving stale quote")
		return o.quoteFrom(entry, symbol, domain.ProvenanceStale)
	}

	o.log.Warn().
		Err(err).
		Str("symbol", symbol).
		Bool("not_found", notFound).
		Msg("Provider fetch failed with no cached quote")

	return domain.PriceQuote{
		Symbol:     symbol,
		ObservedAt: now,
		Provenance: domain.ProvenanceUnavailable,
		NotFound:   notFound,
	}
}

// fetchLive asks the provider for a fresh price and stores it on success.
// Callers racing on the same symbol are collapsed into one provider call. The
// shared call runs detached, bounded only by the fetch timeout, so one
// caller's cancellation cannot fail the fetch for the waiters sharing it;
// each waiter still stops waiting when its own context ends.
func (o *Oracle) fetchLive(ctx context.Context, symbol string) (quoteEntry, error) {
	ch := o.flight.DoChan(symbol, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.Background(), o.cfg.FetchTimeout)
		defer cancel()

		pq, err := o.provider.FetchQuote(fetchCtx, symbol)
		if err != nil {
			return quoteEntry{}, err
		}

		entry := quoteEntry{price: pq.Price, currency: pq.Currency, fetchedAt: o.now()}

		o.mu.Lock()
		o.quotes[symbol] = entry
		o.mu.Unlock()

		return entry, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return quoteEntry{}, res.Err
		}
		return res.Val.(quoteEntry), nil
	case <-ctx.Done():
		return quoteEntry{}, ctx.Err()
	}
}

func (o *Oracle) quoteFrom(entry quoteEntry, symbol string, provenance domain.Provenance) domain.PriceQuote {
	price := entry.price
	return domain.PriceQuote{
		Symbol:     symbol,
		Price:      &price,
		Currency:   entry.currency,
		ObservedAt: entry.fetchedAt,
		Provenance: provenance,
		Age:        o.now().Sub(entry.fetchedAt),
	}
}

// History returns a finite, ascending price series for the symbol and range,
// cached with its own longer TTL. When the provider fails but an expired
// series is cached, the cached series is served; with nothing cached the
// provider error propagates.
func (o *Oracle) History(ctx context.Context, symbol, historyRange string) ([]domain.PricePoint, error) {
	key := symbol + "|" + historyRange
	now := o.now()

	o.mu.RLock()
	entry, ok := o.histories[key]
	o.mu.RUnlock()

	if ok && now.Sub(entry.fetchedAt) <= o.cfg.HistoryTTL {
		return copyPoints(entry.points), nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, o.cfg.FetchTimeout)
	defer cancel()

	points, err := o.provider.FetchHistory(fetchCtx, symbol, historyRange)
	if err != nil {
		if ok {
			o.log.Warn().
				Err(err).
				Str("symbol", symbol).
				Str("range", historyRange).
				Msg("History fetch failed, serving cached series")
			return copyPoints(entry.points), nil
		}
		return nil, fmt.Errorf("failed to fetch history for %s: %w", symbol, err)
	}

	sort.Slice(points, func(i, j int) bool { return points[i].At.Before(points[j].At) })

	o.mu.Lock()
	o.histories[key] = historyEntry{points: points, fetchedAt: o.now()}
	o.mu.Unlock()

	return copyPoints(points), nil
}

// RefreshSymbols force-fetches fresh quotes for the given symbols, bypassing
// the TTL check. Used by the background refresh job to keep quotes for held
// symbols warm. Returns an error only when every symbol fails.
func (o *Oracle) RefreshSymbols(ctx context.Context, symbols []string) error {
	if len(symbols) == 0 {
		return nil
	}

	var mu sync.Mutex
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			if _, err := o.fetchLive(gctx, symbol); err != nil {
				o.log.Warn().Err(err).Str("symbol", symbol).Msg("Refresh fetch failed")
				mu.Lock()
				failed++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	o.log.Debug().
		Int("symbols", len(symbols)).
		Int("failed", failed).
		Msg("Quote refresh completed")

	if failed == len(symbols) {
		return fmt.Errorf("all %d quote refreshes failed", failed)
	}
	return nil
}

func copyPoints(points []domain.PricePoint) []domain.PricePoint {
	out := make([]domain.PricePoint, len(points))
	copy(out, points)
	return out
}
