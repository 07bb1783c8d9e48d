package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceQuote_Usable(t *testing.T) {
	price := 190.5

	assert.True(t, PriceQuote{Price: &price, Provenance: ProvenanceLive}.Usable())
	assert.True(t, PriceQuote{Price: &price, Provenance: ProvenanceStale}.Usable())
	assert.False(t, PriceQuote{Provenance: ProvenanceUnavailable}.Usable())
	assert.False(t, PriceQuote{Price: &price, Provenance: ProvenanceUnavailable}.Usable())
}

func TestPriceQuote_AgeMarshalsInNanoseconds(t *testing.T) {
	price := 190.5
	quote := PriceQuote{
		Symbol:     "AAPL",
		Price:      &price,
		Provenance: ProvenanceCached,
		Age:        30 * time.Second,
	}

	data, err := json.Marshal(quote)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	// time.Duration marshals as its nanosecond count; the key says so.
	assert.Contains(t, decoded, "age_ns")
	assert.Equal(t, float64(30*time.Second), decoded["age_ns"])
}

func TestTransactionType_Valid(t *testing.T) {
	assert.True(t, TransactionBuy.Valid())
	assert.True(t, TransactionSell.Valid())
	assert.False(t, TransactionType("TRANSFER").Valid())
	assert.False(t, TransactionType("").Valid())
}
