package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ledgerview/ledgerview/internal/domain"
	"github.com/ledgerview/ledgerview/internal/modules/holdings"
)

// Service validates submissions against the ledger's invariants before they
// become permanent.
//
// Appends for the same owner are serialized so the oversell check is atomic
// with respect to concurrent submissions for the same position: between the
// fold that computes the current quantity and the insert, no other append for
// that owner can slip in.
type Service struct {
	repo *Repository
	log  zerolog.Logger

	mu     sync.Mutex
	owners map[string]*sync.Mutex
}

// NewService creates a new ledger service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		log:    log.With().Str("service", "ledger").Logger(),
		owners: make(map[string]*sync.Mutex),
	}
}

// validationIDBase is assigned to candidate transactions while they are
// replayed against the stored sequence. It is far above any real rowid, so a
// candidate sharing a timestamp with a stored row sorts after it, matching
// the insertion order it would get on commit.
const validationIDBase = int64(1) << 62

// ownerLock returns the mutex serializing appends for one owner
func (s *Service) ownerLock(ownerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.owners[ownerID]
	if !ok {
		lock = &sync.Mutex{}
		s.owners[ownerID] = lock
	}
	return lock
}

// Append validates and stores a single transaction. It returns
// domain.ErrInvalidTransaction for malformed submissions and
// domain.ErrInsufficientHoldings for a SELL exceeding the current position;
// in both cases the ledger is left untouched.
func (s *Service) Append(ctx context.Context, ownerID string, spec domain.TransactionSpec) (domain.Transaction, error) {
	tx, err := normalize(ownerID, spec, "")
	if err != nil {
		return domain.Transaction{}, err
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	// A candidate SELL is replayed at its claimed timestamp position inside
	// the full stored sequence for the symbol. Checking only the final folded
	// quantity would let a backdated SELL dip an intermediate quantity below
	// zero and have a later BUY paper over it.
	if tx.Type == domain.TransactionSell {
		prior, err := s.repo.Query(ctx, ownerID, tx.Symbol)
		if err != nil {
			return domain.Transaction{}, fmt.Errorf("failed to read current position: %w", err)
		}
		candidate := tx
		candidate.ID = validationIDBase
		if sell, held, found := holdings.FirstOversell(append(prior, candidate)); found {
			return domain.Transaction{}, fmt.Errorf(
				"%w: sell of %g %s exceeds held quantity %g at %s",
				domain.ErrInsufficientHoldings, sell.Quantity, sell.Symbol, held,
				sell.ExecutedAt.Format(time.RFC3339))
		}
	}

	accepted, err := s.repo.Insert(ctx, tx)
	if err != nil {
		return domain.Transaction{}, err
	}

	s.log.Info().
		Str("owner", ownerID).
		Str("symbol", accepted.Symbol).
		Str("type", string(accepted.Type)).
		Float64("quantity", accepted.Quantity).
		Float64("price", accepted.Price).
		Int64("id", accepted.ID).
		Msg("Transaction accepted")

	return accepted, nil
}

// ImportBatch validates and stores a sequence of transactions atomically:
// either every spec in the batch is accepted or none are. Each spec is held
// to the same rules as an individual Append, validated in order against the
// current ledger state plus the earlier entries of the batch itself.
func (s *Service) ImportBatch(ctx context.Context, ownerID string, specs []domain.TransactionSpec) ([]domain.Transaction, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: empty batch", domain.ErrInvalidTransaction)
	}

	importID := uuid.NewString()

	candidates := make([]domain.Transaction, 0, len(specs))
	for i, spec := range specs {
		tx, err := normalize(ownerID, spec, importID)
		if err != nil {
			return nil, fmt.Errorf("batch entry %d: %w", i, err)
		}
		candidates = append(candidates, tx)
	}

	lock := s.ownerLock(ownerID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.repo.Query(ctx, ownerID, "")
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger for batch validation: %w", err)
	}

	// Replay the stored sequence with the batch entries merged in at their
	// claimed timestamps. A SELL anywhere in the merged order, batch entry or
	// stored row, that dips a quantity below zero rejects the whole batch
	// before a single row is written.
	merged := make([]domain.Transaction, 0, len(existing)+len(candidates))
	merged = append(merged, existing...)
	for i, tx := range candidates {
		tx.ID = validationIDBase + int64(i)
		merged = append(merged, tx)
	}
	if sell, held, found := holdings.FirstOversell(merged); found {
		if sell.ID >= validationIDBase {
			return nil, fmt.Errorf(
				"batch entry %d: %w: sell of %g %s exceeds held quantity %g at %s",
				sell.ID-validationIDBase, domain.ErrInsufficientHoldings,
				sell.Quantity, sell.Symbol, held, sell.ExecutedAt.Format(time.RFC3339))
		}
		return nil, fmt.Errorf(
			"%w: batch would leave recorded sell of %g %s exceeding held quantity %g at %s",
			domain.ErrInsufficientHoldings, sell.Quantity, sell.Symbol, held,
			sell.ExecutedAt.Format(time.RFC3339))
	}

	inserted, err := s.repo.InsertBatch(ctx, candidates)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("owner", ownerID).
		Str("import_id", importID).
		Int("count", len(inserted)).
		Msg("Batch import committed")

	return inserted, nil
}

// Query returns an owner's transactions, optionally filtered to one symbol,
// in ascending timestamp order with ties broken by insertion order.
func (s *Service) Query(ctx context.Context, ownerID, symbol string) ([]domain.Transaction, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", domain.ErrInvalidTransaction)
	}
	return s.repo.Query(ctx, ownerID, strings.ToUpper(strings.TrimSpace(symbol)))
}

// normalize turns a spec into a storable transaction, applying the shared
// validation rules for single appends and batch entries.
func normalize(ownerID string, spec domain.TransactionSpec, importID string) (domain.Transaction, error) {
	symbol := strings.ToUpper(strings.TrimSpace(spec.Symbol))

	switch {
	case strings.TrimSpace(ownerID) == "":
		return domain.Transaction{}, fmt.Errorf("%w: owner id is required", domain.ErrInvalidTransaction)
	case symbol == "":
		return domain.Transaction{}, fmt.Errorf("%w: symbol is required", domain.ErrInvalidTransaction)
	case !spec.Type.Valid():
		return domain.Transaction{}, fmt.Errorf("%w: unrecognized type %q", domain.ErrInvalidTransaction, spec.Type)
	case spec.Quantity <= 0:
		return domain.Transaction{}, fmt.Errorf("%w: quantity must be positive, got %g", domain.ErrInvalidTransaction, spec.Quantity)
	case spec.Price <= 0:
		return domain.Transaction{}, fmt.Errorf("%w: price must be positive, got %g", domain.ErrInvalidTransaction, spec.Price)
	}

	now := time.Now().UTC()
	executedAt := spec.ExecutedAt
	if executedAt.IsZero() {
		executedAt = now
	}

	return domain.Transaction{
		OwnerID:    ownerID,
		Symbol:     symbol,
		Category:   strings.TrimSpace(spec.Category),
		Type:       spec.Type,
		Quantity:   spec.Quantity,
		Price:      spec.Price,
		ExecutedAt: executedAt.UTC(),
		ImportID:   importID,
		CreatedAt:  now,
	}, nil
}
