package domain

import "errors"

// Ledger validation errors. These are synchronous and fatal only to the
// submission that caused them; the ledger's visible state is unchanged after
// a rejection.
var (
	// ErrInvalidTransaction is returned for a non-positive quantity or price,
	// a blank symbol, or an unrecognized transaction type.
	ErrInvalidTransaction = errors.New("invalid transaction")

	// ErrInsufficientHoldings is returned when a SELL exceeds the currently
	// held quantity for that owner and symbol.
	ErrInsufficientHoldings = errors.New("insufficient holdings")
)

// ErrSymbolNotFound is reported by market data providers when a symbol does
// not exist. The price oracle absorbs it into quote provenance; it never
// aborts a snapshot computation.
var ErrSymbolNotFound = errors.New("symbol not found")
