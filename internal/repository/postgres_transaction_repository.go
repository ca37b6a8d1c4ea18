package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/commercekit/stripe-service/internal/domain"
	"github.com/commercekit/stripe-service/pkg/database"
)

// PostgresTransactionRepository implements TransactionRepository using
// PostgreSQL.
type PostgresTransactionRepository struct {
	db *database.PostgresDB
}

// NewPostgresTransactionRepository creates a new PostgreSQL transaction
// repository.
func NewPostgresTransactionRepository(db *database.PostgresDB) *PostgresTransactionRepository {
	return &PostgresTransactionRepository{db: db}
}

// selectColumns defines the columns to select for transaction queries
const selectColumns = `
	id, action, amount, currency, payment_method, active, successful,
	entity_class, entity_id, payment_intent_id, charge_id,
	options, response, source_transaction_id, refunded_amount,
	version, created_at, updated_at
`

// Create inserts a new transaction and populates its ID and version
func (r *PostgresTransactionRepository) Create(ctx context.Context, tx *domain.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (
			action, amount, currency, payment_method, active, successful,
			entity_class, entity_id, payment_intent_id, charge_id,
			options, response, source_transaction_id, refunded_amount,
			version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		) RETURNING id`

	optionsJSON, err := json.Marshal(tx.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	responseJSON, err := json.Marshal(tx.Response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	tx.Version = 1

	err = r.db.Pool().QueryRow(ctx, query,
		string(tx.Action),
		tx.Amount,
		tx.Currency,
		tx.PaymentMethod,
		tx.Active,
		tx.Successful,
		tx.EntityClass,
		tx.EntityID,
		nullString(tx.PaymentIntentID),
		nullString(tx.ChargeID),
		optionsJSON,
		responseJSON,
		tx.SourceTransactionID,
		tx.RefundedAmount,
		tx.Version,
		tx.CreatedAt,
		tx.UpdatedAt,
	).Scan(&tx.ID)

	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a transaction by its ID
func (r *PostgresTransactionRepository) GetByID(ctx context.Context, id int64) (*domain.PaymentTransaction, error) {
	query := `SELECT ` + selectColumns + ` FROM payment_transactions WHERE id = $1`
	return r.scanTransaction(r.db.Pool().QueryRow(ctx, query, id))
}

// GetByIDs retrieves the transactions for the given ids
func (r *PostgresTransactionRepository) GetByIDs(ctx context.Context, ids []int64) ([]*domain.PaymentTransaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + selectColumns + ` FROM payment_transactions WHERE id = ANY($1) ORDER BY id`

	rows, err := r.db.Pool().Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var transactions []*domain.PaymentTransaction
	for rows.Next() {
		tx, err := r.scanTransactionFromRows(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}

	return transactions, nil
}

// GetByPaymentIntentID retrieves the transaction owning the payment intent
func (r *PostgresTransactionRepository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*domain.PaymentTransaction, error) {
	query := `SELECT ` + selectColumns + ` FROM payment_transactions WHERE payment_intent_id = $1 ORDER BY id DESC LIMIT 1`
	return r.scanTransaction(r.db.Pool().QueryRow(ctx, query, paymentIntentID))
}

// Update persists the transaction's mutable fields with optimistic locking.
// The row only changes when its stored version still matches the version the
// caller read.
func (r *PostgresTransactionRepository) Update(ctx context.Context, tx *domain.PaymentTransaction) error {
	query := `
		UPDATE payment_transactions SET
			active = $1,
			successful = $2,
			payment_intent_id = $3,
			charge_id = $4,
			options = $5,
			response = $6,
			refunded_amount = $7,
			version = version + 1,
			updated_at = $8
		WHERE id = $9 AND version = $10`

	optionsJSON, err := json.Marshal(tx.Options)
	if err != nil {
		return fmt.Errorf("failed to marshal options: %w", err)
	}
	responseJSON, err := json.Marshal(tx.Response)
	if err != nil {
		return fmt.Errorf("failed to marshal response: %w", err)
	}

	tag, err := r.db.Pool().Exec(ctx, query,
		tx.Active,
		tx.Successful,
		nullString(tx.PaymentIntentID),
		nullString(tx.ChargeID),
		optionsJSON,
		responseJSON,
		tx.RefundedAmount,
		tx.UpdatedAt,
		tx.ID,
		tx.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Distinguish a stale version from a missing row
		var exists bool
		checkErr := r.db.Pool().QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM payment_transactions WHERE id = $1)`, tx.ID,
		).Scan(&exists)
		if checkErr != nil {
			return fmt.Errorf("failed to check transaction existence: %w", checkErr)
		}
		if !exists {
			return domain.ErrTransactionNotFound
		}
		return domain.ErrTransactionConflict
	}

	tx.Version++
	return nil
}

// HasSuccessfulSibling reports whether a successful transaction with the
// given action references sourceID as its source.
func (r *PostgresTransactionRepository) HasSuccessfulSibling(ctx context.Context, sourceID int64, action domain.TransactionAction) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM payment_transactions
			WHERE source_transaction_id = $1 AND action = $2 AND successful = true
		)`

	var exists bool
	if err := r.db.Pool().QueryRow(ctx, query, sourceID, string(action)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check sibling transactions: %w", err)
	}
	return exists, nil
}

// IterateExpiringAuthorizationIDs streams candidate authorization ids created
// inside [from, to] in keyset-paginated batches. Keyset pagination keeps each
// query cheap regardless of how deep the scan goes.
func (r *PostgresTransactionRepository) IterateExpiringAuthorizationIDs(ctx context.Context, methods []string, from, to time.Time, batchSize int, fn func(ids []int64) error) error {
	if len(methods) == 0 {
		return nil
	}

	query := `
		SELECT id FROM payment_transactions
		WHERE action = $1
		  AND payment_method = ANY($2)
		  AND active = true
		  AND successful = true
		  AND created_at >= $3
		  AND created_at <= $4
		  AND id > $5
		ORDER BY id
		LIMIT $6`

	lastID := int64(0)

	for {
		rows, err := r.db.Pool().Query(ctx, query, string(domain.ActionAuthorize), methods, from, to, lastID, batchSize)
		if err != nil {
			return fmt.Errorf("failed to query expiring authorizations: %w", err)
		}

		ids := make([]int64, 0, batchSize)
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan transaction id: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to iterate expiring authorizations: %w", err)
		}

		if len(ids) == 0 {
			return nil
		}

		if err := fn(ids); err != nil {
			return err
		}

		lastID = ids[len(ids)-1]
		if len(ids) < batchSize {
			return nil
		}
	}
}

// rowScanner abstracts pgx.Row and pgx.Rows for the scan helpers
type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresTransactionRepository) scanTransaction(row pgx.Row) (*domain.PaymentTransaction, error) {
	tx, err := scanInto(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return tx, nil
}

func (r *PostgresTransactionRepository) scanTransactionFromRows(rows pgx.Rows) (*domain.PaymentTransaction, error) {
	tx, err := scanInto(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	return tx, nil
}

func scanInto(s rowScanner) (*domain.PaymentTransaction, error) {
	var (
		tx              domain.PaymentTransaction
		action          string
		paymentIntentID *string
		chargeID        *string
		optionsJSON     []byte
		responseJSON    []byte
	)

	err := s.Scan(
		&tx.ID,
		&action,
		&tx.Amount,
		&tx.Currency,
		&tx.PaymentMethod,
		&tx.Active,
		&tx.Successful,
		&tx.EntityClass,
		&tx.EntityID,
		&paymentIntentID,
		&chargeID,
		&optionsJSON,
		&responseJSON,
		&tx.SourceTransactionID,
		&tx.RefundedAmount,
		&tx.Version,
		&tx.CreatedAt,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	tx.Action = domain.TransactionAction(action)
	if paymentIntentID != nil {
		tx.PaymentIntentID = *paymentIntentID
	}
	if chargeID != nil {
		tx.ChargeID = *chargeID
	}
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &tx.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options: %w", err)
		}
	}
	if len(responseJSON) > 0 {
		if err := json.Unmarshal(responseJSON, &tx.Response); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return &tx, nil
}

// nullString returns nil if string is empty, otherwise returns pointer to string
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
