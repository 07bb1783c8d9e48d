package ledger

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/ledgerview/ledgerview/internal/domain"
)

// setupTestLedgerDB creates an in-memory SQLite database with the transactions table
func setupTestLedgerDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// In-memory databases are per-connection; keep the pool at one.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE transactions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			owner_id    TEXT    NOT NULL,
			symbol      TEXT    NOT NULL,
			category    TEXT    NOT NULL DEFAULT '',
			type        TEXT    NOT NULL,
			quantity    REAL    NOT NULL,
			price       REAL    NOT NULL,
			executed_at INTEGER NOT NULL,
			import_id   TEXT    NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL
		)
	`)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestService(t *testing.T) *Service {
	db := setupTestLedgerDB(t)
	log := zerolog.Nop()
	return NewService(NewRepository(db, log), log)
}

func buySpec(symbol string, quantity, price float64) domain.TransactionSpec {
	return domain.TransactionSpec{Symbol: symbol, Type: domain.TransactionBuy, Quantity: quantity, Price: price}
}

func sellSpec(symbol string, quantity, price float64) domain.TransactionSpec {
	return domain.TransactionSpec{Symbol: symbol, Type: domain.TransactionSell, Quantity: quantity, Price: price}
}

func TestAppend_RejectsInvalidSubmissions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		spec domain.TransactionSpec
	}{
		{"zero quantity", buySpec("AAPL", 0, 100)},
		{"negative quantity", buySpec("AAPL", -1, 100)},
		{"zero price", buySpec("AAPL", 10, 0)},
		{"negative price", buySpec("AAPL", 10, -5)},
		{"blank symbol", buySpec("   ", 10, 100)},
		{"unknown type", domain.TransactionSpec{Symbol: "AAPL", Type: "TRANSFER", Quantity: 10, Price: 100}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Append(ctx, "owner-1", tc.spec)
			assert.ErrorIs(t, err, domain.ErrInvalidTransaction)
		})
	}

	txs, err := svc.Query(ctx, "owner-1", "")
	require.NoError(t, err)
	assert.Empty(t, txs, "rejected submissions must not touch the ledger")
}

func TestAppend_RejectsMissingOwner(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Append(context.Background(), "", buySpec("AAPL", 1, 100))
	assert.ErrorIs(t, err, domain.ErrInvalidTransaction)
}

func TestAppend_OversellRejectedLedgerUnchanged(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Append(ctx, "owner-1", buySpec("AAPL", 10, 100))
	require.NoError(t, err)

	_, err = svc.Append(ctx, "owner-1", sellSpec("AAPL", 11, 120))
	assert.ErrorIs(t, err, domain.ErrInsufficientHoldings)

	txs, err := svc.Query(ctx, "owner-1", "AAPL")
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, domain.TransactionBuy, txs[0].Type)
}

func TestAppend_BackdatedSellHeldToQuantityAtItsTimestamp(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	buy := buySpec("AAPL", 10, 100)
	buy.ExecutedAt = base.Add(time.Hour)
	_, err := svc.Append(ctx, "owner-1", buy)
	require.NoError(t, err)

	// Nothing was held at base; the final folded quantity is irrelevant.
	backdated := sellSpec("AAPL", 10, 120)
	backdated.ExecutedAt = base
	_, err = svc.Append(ctx, "owner-1", backdated)
	assert.ErrorIs(t, err, domain.ErrInsufficientHoldings)

	txs, err := svc.Query(ctx, "owner-1", "AAPL")
	require.NoError(t, err)
	require.Len(t, txs, 1, "rejected backdated sell must not touch the ledger")

	// The position is still only 10: selling it twice must fail the second time.
	sellAll := sellSpec("AAPL", 10, 120)
	sellAll.ExecutedAt = base.Add(2 * time.Hour)
	_, err = svc.Append(ctx, "owner-1", sellAll)
	require.NoError(t, err)

	again := sellSpec("AAPL", 10, 120)
	again.ExecutedAt = base.Add(3 * time.Hour)
	_, err = svc.Append(ctx, "owner-1", again)
	assert.ErrorIs(t, err, domain.ErrInsufficientHoldings)
}

func TestAppend_ConcurrentSellsNeverExceedPosition(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Append(ctx, "owner-1", buySpec("AAPL", 10, 100))
	require.NoError(t, err)

	var wg sync.WaitGroup
	var accepted, rejected atomic.Int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Append(ctx, "owner-1", sellSpec("AAPL", 1, 110))
			if err == nil {
				accepted.Add(1)
				return
			}
			if assert.ErrorIs(t, err, domain.ErrInsufficientHoldings) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), accepted.Load(), "exactly the held quantity may be sold")
	assert.Equal(t, int32(10), rejected.Load())

	txs, err := svc.Query(ctx, "owner-1", "AAPL")
	require.NoError(t, err)
	assert.Len(t, txs, 11, "one buy plus the ten accepted sells")
}

func TestAppend_SellNeverForOtherOwnersPosition(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, err := svc.Append(ctx, "owner-1", buySpec("AAPL", 10, 100))
	require.NoError(t, err)

	_, err = svc.Append(ctx, "owner-2", sellSpec("AAPL", 1, 100))
	assert.ErrorIs(t, err, domain.ErrInsufficientHoldings)
}

func TestAppend_NormalizesSymbolAndStampsTimestamps(t *testing.T) {
	svc := newTestService(t)

	before := time.Now().UTC().Add(-time.Second)
	tx, err := svc.Append(context.Background(), "owner-1", buySpec("  aapl ", 10, 100))
	require.NoError(t, err)

	assert.Equal(t, "AAPL", tx.Symbol)
	assert.False(t, tx.ExecutedAt.Before(before), "omitted timestamp should default to now")
	assert.NotZero(t, tx.ID)
}

func TestQuery_OrdersByTimestampThenInsertion(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	later := buySpec("AAPL", 1, 110)
	later.ExecutedAt = base.Add(time.Hour)
	_, err := svc.Append(ctx, "owner-1", later)
	require.NoError(t, err)

	earlier := buySpec("AAPL", 2, 100)
	earlier.ExecutedAt = base
	_, err = svc.Append(ctx, "owner-1", earlier)
	require.NoError(t, err)

	// Same timestamp as the first row; must sort after it by insertion order.
	tied := buySpec("AAPL", 3, 120)
	tied.ExecutedAt = base.Add(time.Hour)
	_, err = svc.Append(ctx, "owner-1", tied)
	require.NoError(t, err)

	txs, err := svc.Query(ctx, "owner-1", "AAPL")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, 2.0, txs[0].Quantity)
	assert.Equal(t, 1.0, txs[1].Quantity)
	assert.Equal(t, 3.0, txs[2].Quantity)
}

func TestQuery_PreservesSubSecondOrdering(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	// Inserted in reverse of executed order, 400ms apart within one second.
	second := buySpec("AAPL", 2, 110)
	second.ExecutedAt = base.Add(500 * time.Millisecond)
	_, err := svc.Append(ctx, "owner-1", second)
	require.NoError(t, err)

	first := buySpec("AAPL", 1, 100)
	first.ExecutedAt = base.Add(100 * time.Millisecond)
	_, err = svc.Append(ctx, "owner-1", first)
	require.NoError(t, err)

	txs, err := svc.Query(ctx, "owner-1", "AAPL")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, 1.0, txs[0].Quantity)
	assert.Equal(t, 2.0, txs[1].Quantity)
	assert.True(t, txs[0].ExecutedAt.Equal(base.Add(100*time.Millisecond)),
		"sub-second precision must survive the round trip")
}

func TestImportBatch_AllOrNothingOnOversell(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	specs := make([]domain.TransactionSpec, 0, 10)
	for i := 0; i < 9; i++ {
		specs = append(specs, buySpec("AAPL", 1, 100))
	}
	// One oversell among ten otherwise-valid entries.
	specs = append(specs, sellSpec("AAPL", 50, 100))

	_, err := svc.ImportBatch(ctx, "owner-1", specs)
	assert.ErrorIs(t, err, domain.ErrInsufficientHoldings)

	txs, err := svc.Query(ctx, "owner-1", "")
	require.NoError(t, err)
	assert.Empty(t, txs, "a rejected batch must commit zero transactions")
}

func TestImportBatch_SellMayConsumeEarlierBatchBuys(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	inserted, err := svc.ImportBatch(ctx, "owner-1", []domain.TransactionSpec{
		buySpec("AAPL", 10, 100),
		sellSpec("AAPL", 4, 110),
	})
	require.NoError(t, err)
	require.Len(t, inserted, 2)

	assert.NotEmpty(t, inserted[0].ImportID)
	assert.Equal(t, inserted[0].ImportID, inserted[1].ImportID, "batch entries share one import id")
}

func TestImportBatch_BackdatedSellRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	buy := buySpec("AAPL", 10, 100)
	buy.ExecutedAt = base.AddDate(0, 0, 2)
	_, err := svc.Append(ctx, "owner-1", buy)
	require.NoError(t, err)

	backdated := sellSpec("AAPL", 10, 120)
	backdated.ExecutedAt = base.AddDate(0, 0, 1)
	_, err = svc.ImportBatch(ctx, "owner-1", []domain.TransactionSpec{backdated})
	assert.ErrorIs(t, err, domain.ErrInsufficientHoldings)

	txs, err := svc.Query(ctx, "owner-1", "")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}

func TestImportBatch_BackdatedSellMayNotStarveRecordedSell(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	buy := buySpec("AAPL", 10, 100)
	buy.ExecutedAt = base.AddDate(0, 0, 1)
	_, err := svc.Append(ctx, "owner-1", buy)
	require.NoError(t, err)

	recorded := sellSpec("AAPL", 10, 120)
	recorded.ExecutedAt = base.AddDate(0, 0, 3)
	_, err = svc.Append(ctx, "owner-1", recorded)
	require.NoError(t, err)

	// The batch slots a sell between the recorded buy and sell; replayed in
	// order, the recorded sell would then exceed what remains.
	between := sellSpec("AAPL", 5, 115)
	between.ExecutedAt = base.AddDate(0, 0, 2)
	rebuy := buySpec("AAPL", 5, 118)
	rebuy.ExecutedAt = base.AddDate(0, 0, 4)
	_, err = svc.ImportBatch(ctx, "owner-1", []domain.TransactionSpec{between, rebuy})
	assert.ErrorIs(t, err, domain.ErrInsufficientHoldings)

	txs, err := svc.Query(ctx, "owner-1", "")
	require.NoError(t, err)
	assert.Len(t, txs, 2, "a rejected batch must commit zero transactions")
}

func TestImportBatch_RejectsInvalidEntry(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ImportBatch(context.Background(), "owner-1", []domain.TransactionSpec{
		buySpec("AAPL", 10, 100),
		buySpec("MSFT", -1, 100),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidTransaction)
}

func TestHeldSymbols_OnlyOpenPositions(t *testing.T) {
	db := setupTestLedgerDB(t)
	log := zerolog.Nop()
	repo := NewRepository(db, log)
	svc := NewService(repo, log)
	ctx := context.Background()

	_, err := svc.Append(ctx, "owner-1", buySpec("AAPL", 10, 100))
	require.NoError(t, err)
	_, err = svc.Append(ctx, "owner-1", buySpec("MSFT", 5, 300))
	require.NoError(t, err)
	_, err = svc.Append(ctx, "owner-1", sellSpec("MSFT", 5, 310))
	require.NoError(t, err)
	_, err = svc.Append(ctx, "owner-2", buySpec("VWCE", 2, 105))
	require.NoError(t, err)

	symbols, err := repo.HeldSymbols(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "VWCE"}, symbols)
}
