// Package holdings derives current positions from transaction sequences.
//
// The aggregator is a pure fold: it holds no state of its own and produces
// the same holdings every time it is given the same transaction sequence.
// Positions are therefore always re-derivable from the ledger and can never
// drift from it.
package holdings

import (
	"math"
	"sort"

	"github.com/ledgerview/ledgerview/internal/domain"
)

// zeroTolerance absorbs float64 noise when a position is sold down to zero.
const zeroTolerance = 1e-9

// Aggregate folds a transaction sequence into one holding per symbol using
// average-cost accounting:
//
//   - BUY moves the average cost to the quantity-weighted mean of the old
//     position and the new lot, then increases quantity.
//   - SELL decreases quantity and leaves the average cost untouched. When a
//     position reaches zero the basis resets to zero, so a re-opened position
//     starts from its new BUY price with no residual basis.
//
// Transactions are processed in ascending executed-at order, ties broken by
// ledger id. Symbols whose quantity has returned to zero are still present in
// the result; callers that only care about open positions filter them out.
func Aggregate(ownerID string, txs []domain.Transaction) map[string]domain.Holding {
	ordered := make([]domain.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].ExecutedAt.Equal(ordered[j].ExecutedAt) {
			return ordered[i].ExecutedAt.Before(ordered[j].ExecutedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	result := make(map[string]domain.Holding)
	for _, tx := range ordered {
		h := result[tx.Symbol]
		h.OwnerID = ownerID
		h.Symbol = tx.Symbol
		if tx.Category != "" {
			h.Category = tx.Category
		}

		switch tx.Type {
		case domain.TransactionBuy:
			total := h.Quantity + tx.Quantity
			if total > zeroTolerance {
				h.AvgCost = (h.Quantity*h.AvgCost + tx.Quantity*tx.Price) / total
			} else {
				h.AvgCost = 0
			}
			h.Quantity = total

		case domain.TransactionSell:
			h.Quantity -= tx.Quantity
			// The clamp absorbs float noise only. A materially negative
			// quantity is preserved so oversold sequences stay visible to
			// validation instead of silently minting a fresh position.
			if math.Abs(h.Quantity) <= zeroTolerance {
				h.Quantity = 0
				h.AvgCost = 0
			}
		}

		result[tx.Symbol] = h
	}

	return result
}

// FirstOversell replays a transaction sequence in ascending executed-at order
// (ties by id) and returns the first SELL that would take its symbol's
// quantity below zero, together with the quantity held at that point. The
// ledger uses it to validate candidate transactions at their claimed position
// in the sequence, so a backdated SELL is held to the quantity that was
// actually available at its timestamp, not to the final folded total.
func FirstOversell(txs []domain.Transaction) (sell domain.Transaction, held float64, found bool) {
	ordered := make([]domain.Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].ExecutedAt.Equal(ordered[j].ExecutedAt) {
			return ordered[i].ExecutedAt.Before(ordered[j].ExecutedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	quantities := make(map[string]float64)
	for _, tx := range ordered {
		switch tx.Type {
		case domain.TransactionBuy:
			quantities[tx.Symbol] += tx.Quantity

		case domain.TransactionSell:
			q := quantities[tx.Symbol]
			if tx.Quantity > q+zeroTolerance {
				return tx, q, true
			}
			q -= tx.Quantity
			if math.Abs(q) <= zeroTolerance {
				q = 0
			}
			quantities[tx.Symbol] = q
		}
	}

	return domain.Transaction{}, 0, false
}

// ForSymbol folds only the transactions matching one symbol and returns that
// symbol's holding.
func ForSymbol(ownerID, symbol string, txs []domain.Transaction) domain.Holding {
	filtered := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Symbol == symbol {
			filtered = append(filtered, tx)
		}
	}
	if h, ok := Aggregate(ownerID, filtered)[symbol]; ok {
		return h
	}
	return domain.Holding{OwnerID: ownerID, Symbol: symbol}
}
