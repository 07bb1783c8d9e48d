// Package domain provides core domain models and types.
package domain

import "time"

// TransactionType represents the direction of a ledger transaction
type TransactionType string

const (
	// TransactionBuy increases a position and moves its average cost
	TransactionBuy TransactionType = "BUY"
	// TransactionSell reduces a position without touching its average cost
	TransactionSell TransactionType = "SELL"
)

// Valid reports whether the transaction type is a known value
func (t TransactionType) Valid() bool {
	return t == TransactionBuy || t == TransactionSell
}

// Transaction represents a single accepted buy/sell event.
// Once accepted into the ledger a transaction is immutable - corrections are
// recorded as new transactions, never as edits or deletes.
type Transaction struct {
	ExecutedAt time.Time       `json:"executed_at"`
	CreatedAt  time.Time       `json:"created_at"`
	OwnerID    string          `json:"owner_id"`
	Symbol     string          `json:"symbol"`
	Category   string          `json:"category,omitempty"`
	Type       TransactionType `json:"type"`
	ImportID   string          `json:"import_id,omitempty"`
	ID         int64           `json:"id"`
	Quantity   float64         `json:"quantity"`
	Price      float64         `json:"price"`
}

// TransactionSpec is a submission that has not been accepted yet.
// ExecutedAt may be zero, in which case the ledger stamps the current time.
type TransactionSpec struct {
	ExecutedAt time.Time       `json:"executed_at,omitempty"`
	Symbol     string          `json:"symbol"`
	Category   string          `json:"category,omitempty"`
	Type       TransactionType `json:"type"`
	Quantity   float64         `json:"quantity"`
	Price      float64         `json:"price"`
}

// Holding is the derived current position for one (owner, symbol).
// It is recomputable from the transaction sequence at any time and is never
// stored - the ledger stays the single source of truth.
type Holding struct {
	OwnerID  string  `json:"owner_id"`
	Symbol   string  `json:"symbol"`
	Category string  `json:"category,omitempty"`
	Quantity float64 `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
}

// Provenance tags how fresh a price quote is
type Provenance string

const (
	// ProvenanceLive means the price came from the provider on this lookup
	ProvenanceLive Provenance = "LIVE"
	// ProvenanceCached means the price came from a cache entry within TTL
	ProvenanceCached Provenance = "CACHED"
	// ProvenanceStale means the provider failed and an expired entry was served
	ProvenanceStale Provenance = "STALE"
	// ProvenanceUnavailable means no price could be produced at all
	ProvenanceUnavailable Provenance = "UNAVAILABLE"
)

// PriceQuote is a price observation with provenance. Price is nil when the
// quote is UNAVAILABLE; callers must check Usable before doing arithmetic.
type PriceQuote struct {
	ObservedAt time.Time     `json:"observed_at"`
	Symbol     string        `json:"symbol"`
	Currency   string        `json:"currency,omitempty"`
	Provenance Provenance    `json:"provenance"`
	Price      *float64      `json:"price,omitempty"`
	Age        time.Duration `json:"age_ns,omitempty"`
	NotFound   bool          `json:"not_found,omitempty"`
}

// Usable reports whether the quote carries a price that valuation may use.
// STALE quotes are usable; only UNAVAILABLE ones are not.
func (q PriceQuote) Usable() bool {
	return q.Price != nil && q.Provenance != ProvenanceUnavailable
}

// PricePoint is one observation in a historical price series
type PricePoint struct {
	At    time.Time `json:"at"`
	Price float64   `json:"price"`
}

// SymbolValuation is the valuation of a single held symbol inside a snapshot.
// MarketValue, ProfitLoss and ProfitLossPct are nil when the symbol's quote
// is UNAVAILABLE; such symbols contribute nothing to portfolio totals.
type SymbolValuation struct {
	Symbol        string     `json:"symbol"`
	Category      string     `json:"category,omitempty"`
	Provenance    Provenance `json:"provenance"`
	Quantity      float64    `json:"quantity"`
	AvgCost       float64    `json:"avg_cost"`
	Cost          float64    `json:"cost"`
	Price         *float64   `json:"price,omitempty"`
	MarketValue   *float64   `json:"market_value,omitempty"`
	ProfitLoss    *float64   `json:"profit_loss,omitempty"`
	ProfitLossPct *float64   `json:"profit_loss_pct,omitempty"`
	AllocationPct float64    `json:"allocation_pct"`
}

// PortfolioSnapshot is a point-in-time valuation of one owner's portfolio.
// Degraded is true when at least one symbol's quote is STALE or UNAVAILABLE;
// a degraded snapshot is still fully usable.
type PortfolioSnapshot struct {
	GeneratedAt     time.Time         `json:"generated_at"`
	OwnerID         string            `json:"owner_id"`
	Positions       []SymbolValuation `json:"positions"`
	DegradedSymbols []string          `json:"degraded_symbols,omitempty"`
	TotalValue      float64           `json:"total_value"`
	TotalCost       float64           `json:"total_cost"`
	ProfitLoss      float64           `json:"profit_loss"`
	ProfitLossPct   float64           `json:"profit_loss_pct"`
	Degraded        bool              `json:"degraded"`
}
