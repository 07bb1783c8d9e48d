package holdings

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerview/ledgerview/internal/domain"
)

func tx(id int64, symbol string, txType domain.TransactionType, quantity, price float64, at time.Time) domain.Transaction {
	return domain.Transaction{
		ID:         id,
		OwnerID:    "owner-1",
		Symbol:     symbol,
		Type:       txType,
		Quantity:   quantity,
		Price:      price,
		ExecutedAt: at,
	}
}

func TestAggregate_BuysAverageCost(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	result := Aggregate("owner-1", []domain.Transaction{
		tx(1, "AAPL", domain.TransactionBuy, 10, 100, base),
		tx(2, "AAPL", domain.TransactionBuy, 10, 200, base.Add(time.Hour)),
	})

	h := result["AAPL"]
	assert.Equal(t, 20.0, h.Quantity)
	assert.Equal(t, 150.0, h.AvgCost)
}

func TestAggregate_SellKeepsBasis(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	result := Aggregate("owner-1", []domain.Transaction{
		tx(1, "AAPL", domain.TransactionBuy, 10, 100, base),
		tx(2, "AAPL", domain.TransactionSell, 4, 130, base.Add(time.Hour)),
	})

	h := result["AAPL"]
	assert.Equal(t, 6.0, h.Quantity)
	assert.Equal(t, 100.0, h.AvgCost)
}

func TestAggregate_BasisResetsWhenPositionCloses(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	result := Aggregate("owner-1", []domain.Transaction{
		tx(1, "AAPL", domain.TransactionBuy, 10, 100, base),
		tx(2, "AAPL", domain.TransactionSell, 10, 120, base.Add(time.Hour)),
		tx(3, "AAPL", domain.TransactionBuy, 5, 250, base.Add(2*time.Hour)),
	})

	h := result["AAPL"]
	assert.Equal(t, 5.0, h.Quantity)
	assert.Equal(t, 250.0, h.AvgCost, "no residual basis should carry into a re-opened position")
}

func TestAggregate_OrdersByTimestampThenID(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	// Deliberately shuffled input; the fold must order by executed_at, id.
	result := Aggregate("owner-1", []domain.Transaction{
		tx(3, "MSFT", domain.TransactionBuy, 5, 300, base.Add(2*time.Hour)),
		tx(1, "MSFT", domain.TransactionBuy, 10, 100, base),
		tx(2, "MSFT", domain.TransactionSell, 10, 110, base.Add(time.Hour)),
	})

	h := result["MSFT"]
	assert.Equal(t, 5.0, h.Quantity)
	assert.Equal(t, 300.0, h.AvgCost)
}

func TestAggregate_Deterministic(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	txs := []domain.Transaction{
		tx(1, "AAPL", domain.TransactionBuy, 3, 187.5, base),
		tx(2, "VWCE", domain.TransactionBuy, 12, 105.2, base.Add(time.Minute)),
		tx(3, "AAPL", domain.TransactionSell, 1, 190, base.Add(2*time.Minute)),
		tx(4, "AAPL", domain.TransactionBuy, 2, 191.3, base.Add(3*time.Minute)),
	}

	first := Aggregate("owner-1", txs)
	second := Aggregate("owner-1", txs)

	require.Equal(t, first, second, "re-deriving holdings from scratch must be idempotent")
}

func TestAggregate_MultipleSymbolsAndCategory(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	a := tx(1, "AAPL", domain.TransactionBuy, 10, 100, base)
	a.Category = "Stocks"
	b := tx(2, "BTC-USD", domain.TransactionBuy, 0.5, 40000, base.Add(time.Hour))
	b.Category = "Crypto"

	result := Aggregate("owner-1", []domain.Transaction{a, b})

	require.Len(t, result, 2)
	assert.Equal(t, "Stocks", result["AAPL"].Category)
	assert.Equal(t, "Crypto", result["BTC-USD"].Category)
	assert.Equal(t, "owner-1", result["AAPL"].OwnerID)
}

func TestAggregate_SellBeforeBuyDoesNotMintPosition(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	// A sell ordered before any buy leaves the interval negative; the later
	// buy must net against it, not restart the count from zero.
	result := Aggregate("owner-1", []domain.Transaction{
		tx(1, "AAPL", domain.TransactionSell, 10, 120, base),
		tx(2, "AAPL", domain.TransactionBuy, 10, 100, base.Add(time.Hour)),
	})

	h := result["AAPL"]
	assert.Equal(t, 0.0, h.Quantity, "net of buys minus sells is zero")
	assert.Equal(t, 0.0, h.AvgCost)
}

func TestAggregate_MaterialNegativeQuantityIsPreserved(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	result := Aggregate("owner-1", []domain.Transaction{
		tx(1, "AAPL", domain.TransactionBuy, 5, 100, base),
		tx(2, "AAPL", domain.TransactionSell, 10, 120, base.Add(time.Hour)),
	})

	assert.Equal(t, -5.0, result["AAPL"].Quantity,
		"only float noise may be clamped, never a material shortfall")
}

func TestAggregate_FloatResidueClampsToZero(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	// 0.1 + 0.2 leaves 0.30000000000000004; selling 0.3 must close cleanly.
	result := Aggregate("owner-1", []domain.Transaction{
		tx(1, "AAPL", domain.TransactionBuy, 0.1, 100, base),
		tx(2, "AAPL", domain.TransactionBuy, 0.2, 100, base.Add(time.Minute)),
		tx(3, "AAPL", domain.TransactionSell, 0.3, 100, base.Add(2*time.Minute)),
	})

	h := result["AAPL"]
	assert.Equal(t, 0.0, h.Quantity)
	assert.Equal(t, 0.0, h.AvgCost)
}

func TestFirstOversell_CleanSequence(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	_, _, found := FirstOversell([]domain.Transaction{
		tx(1, "AAPL", domain.TransactionBuy, 10, 100, base),
		tx(2, "AAPL", domain.TransactionSell, 10, 120, base.Add(time.Hour)),
		tx(3, "AAPL", domain.TransactionBuy, 5, 110, base.Add(2*time.Hour)),
	})
	assert.False(t, found)
}

func TestFirstOversell_DetectsIntermediateShortfall(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	// Final net is positive, but at the sell's timestamp only 10 were held.
	sell, held, found := FirstOversell([]domain.Transaction{
		tx(1, "AAPL", domain.TransactionBuy, 10, 100, base),
		tx(2, "AAPL", domain.TransactionSell, 15, 120, base.Add(time.Hour)),
		tx(3, "AAPL", domain.TransactionBuy, 20, 110, base.Add(2*time.Hour)),
	})

	require.True(t, found)
	assert.Equal(t, int64(2), sell.ID)
	assert.Equal(t, 10.0, held)
}

func TestFirstOversell_ToleratesFloatResidue(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	_, _, found := FirstOversell([]domain.Transaction{
		tx(1, "AAPL", domain.TransactionBuy, 0.1, 100, base),
		tx(2, "AAPL", domain.TransactionBuy, 0.2, 100, base.Add(time.Minute)),
		tx(3, "AAPL", domain.TransactionSell, 0.3, 100, base.Add(2*time.Minute)),
	})
	assert.False(t, found, "accumulated float noise is not an oversell")
}

func TestForSymbol_IgnoresOtherSymbols(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	h := ForSymbol("owner-1", "AAPL", []domain.Transaction{
		tx(1, "AAPL", domain.TransactionBuy, 10, 100, base),
		tx(2, "MSFT", domain.TransactionBuy, 99, 1, base),
	})

	assert.Equal(t, 10.0, h.Quantity)
	assert.Equal(t, 100.0, h.AvgCost)
}

func TestForSymbol_UnknownSymbolIsEmpty(t *testing.T) {
	h := ForSymbol("owner-1", "ZZZ", nil)
	assert.Equal(t, 0.0, h.Quantity)
	assert.Equal(t, 0.0, h.AvgCost)
}
