// Package ledger stores and validates the append-only transaction ledger.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ledgerview/ledgerview/internal/database"
	"github.com/ledgerview/ledgerview/internal/domain"
)

// Repository handles transaction persistence.
// Database: ledger.db (transactions table). Rows are inserted once and never
// updated or deleted.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

const insertQuery = `
	INSERT INTO transactions (owner_id, symbol, category, type, quantity, price, executed_at, import_id, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Insert appends a single transaction and returns it with its assigned id.
// Timestamps are stored at nanosecond precision so sub-second ordering
// survives the round trip.
func (r *Repository) Insert(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	res, err := r.db.ExecContext(ctx, insertQuery,
		tx.OwnerID, tx.Symbol, tx.Category, string(tx.Type),
		tx.Quantity, tx.Price, tx.ExecutedAt.UnixNano(), tx.ImportID, tx.CreatedAt.UnixNano(),
	)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to insert transaction: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to read inserted transaction id: %w", err)
	}

	tx.ID = id
	return tx, nil
}

// InsertBatch appends a sequence of transactions inside a single database
// transaction. Either every row is committed or none are.
func (r *Repository) InsertBatch(ctx context.Context, txs []domain.Transaction) ([]domain.Transaction, error) {
	inserted := make([]domain.Transaction, 0, len(txs))

	err := database.WithTransaction(r.db, func(dbTx *sql.Tx) error {
		stmt, err := dbTx.PrepareContext(ctx, insertQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, tx := range txs {
			res, err := stmt.ExecContext(ctx,
				tx.OwnerID, tx.Symbol, tx.Category, string(tx.Type),
				tx.Quantity, tx.Price, tx.ExecutedAt.UnixNano(), tx.ImportID, tx.CreatedAt.UnixNano(),
			)
			if err != nil {
				return fmt.Errorf("failed to insert transaction for %s: %w", tx.Symbol, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to read inserted transaction id: %w", err)
			}
			tx.ID = id
			inserted = append(inserted, tx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return inserted, nil
}

// Query returns an owner's transactions in ascending executed-at order, ties
// broken by insertion order. An empty symbol returns all of the owner's
// transactions.
func (r *Repository) Query(ctx context.Context, ownerID, symbol string) ([]domain.Transaction, error) {
	query := `SELECT id, owner_id, symbol, category, type, quantity, price, executed_at, import_id, created_at
	          FROM transactions WHERE owner_id = ?`
	args := []interface{}{ownerID}

	if symbol != "" {
		query += " AND symbol = ?"
		args = append(args, symbol)
	}

	query += " ORDER BY executed_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var txs []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return txs, nil
}

// HeldSymbols returns every symbol with a positive net quantity for at least
// one owner. Used by the background price refresh to warm the oracle cache.
func (r *Repository) HeldSymbols(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT symbol FROM (
			SELECT owner_id, symbol,
			       SUM(CASE WHEN type = 'BUY' THEN quantity ELSE -quantity END) AS net
			FROM transactions
			GROUP BY owner_id, symbol
		) WHERE net > 0
		ORDER BY symbol`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query held symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan held symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating held symbols: %w", err)
	}

	return symbols, nil
}

func scanTransaction(rows *sql.Rows) (domain.Transaction, error) {
	var tx domain.Transaction
	var txType string
	var executedAtNanos, createdAtNanos int64

	if err := rows.Scan(
		&tx.ID,
		&tx.OwnerID,
		&tx.Symbol,
		&tx.Category,
		&txType,
		&tx.Quantity,
		&tx.Price,
		&executedAtNanos,
		&tx.ImportID,
		&createdAtNanos,
	); err != nil {
		return domain.Transaction{}, fmt.Errorf("failed to scan transaction: %w", err)
	}

	tx.Type = domain.TransactionType(txType)
	tx.ExecutedAt = time.Unix(0, executedAtNanos).UTC()
	tx.CreatedAt = time.Unix(0, createdAtNanos).UTC()
	return tx, nil
}
