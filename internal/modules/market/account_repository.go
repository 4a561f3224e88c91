package market

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/insushim/alchan-sub004/internal/database"
	"github.com/insushim/alchan-sub004/internal/domain"
)

// AccountRepository handles account database operations
type AccountRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *sql.DB, log zerolog.Logger) *AccountRepository {
	return &AccountRepository{
		db:  db,
		log: log.With().Str("repository", "account").Logger(),
	}
}

// GetByID retrieves an account by id, nil if it does not exist
func (r *AccountRepository) GetByID(id string) (*domain.Account, error) {
	var acc domain.Account
	var updatedAt string

	err := r.db.QueryRow(`
		SELECT id, class_code, holder, balance, updated_at FROM accounts WHERE id = ?
	`, id).Scan(&acc.ID, &acc.ClassCode, &acc.Holder, &acc.Balance, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", id, err)
	}

	acc.UpdatedAt = parseTime(updatedAt)
	return &acc, nil
}

// GetByClass retrieves every account in a class
func (r *AccountRepository) GetByClass(classCode string) ([]domain.Account, error) {
	rows, err := r.db.Query(`
		SELECT id, class_code, holder, balance, updated_at
		FROM accounts WHERE class_code = ? ORDER BY id
	`, classCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts for class %s: %w", classCode, err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var acc domain.Account
		var updatedAt string
		if err := rows.Scan(&acc.ID, &acc.ClassCode, &acc.Holder, &acc.Balance, &updatedAt); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan account row")
			continue
		}
		acc.UpdatedAt = parseTime(updatedAt)
		accounts = append(accounts, acc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// ListClasses returns every class code that has at least one account
func (r *AccountRepository) ListClasses() ([]string, error) {
	rows, err := r.db.Query(`SELECT DISTINCT class_code FROM accounts ORDER BY class_code`)
	if err != nil {
		return nil, fmt.Errorf("failed to query class codes: %w", err)
	}
	defer rows.Close()

	var classes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		classes = append(classes, code)
	}
	return classes, rows.Err()
}

// Create inserts a new account
func (r *AccountRepository) Create(acc domain.Account) error {
	_, err := r.db.Exec(`
		INSERT INTO accounts (id, class_code, holder, balance, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, acc.ID, acc.ClassCode, acc.Holder, acc.Balance, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to create account %s: %w", acc.ID, err)
	}
	return nil
}

// AtomicAdd applies a signed delta to an account balance as a single
// read-modify-write inside the store. This is the ledger's atomic-add
// primitive: concurrent callers serialize on the row, never on
// application-level locks.
func (r *AccountRepository) AtomicAdd(accountID string, delta int64) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		return r.AtomicAddTx(tx, accountID, delta)
	})
}

// AtomicAddTx applies a signed balance delta within an existing transaction
func (r *AccountRepository) AtomicAddTx(tx *sql.Tx, accountID string, delta int64) error {
	res, err := tx.Exec(`
		UPDATE accounts SET balance = balance + ?, updated_at = ? WHERE id = ?
	`, delta, formatTime(time.Now()), accountID)
	if err != nil {
		return fmt.Errorf("failed to adjust balance of %s: %w", accountID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check balance update of %s: %w", accountID, err)
	}
	if affected == 0 {
		return fmt.Errorf("account %s not found", accountID)
	}
	return nil
}

// BatchAdd applies balance deltas to many accounts in one transaction.
// Returns the number of accounts adjusted.
func (r *AccountRepository) BatchAdd(deltas map[string]int64) (int, error) {
	if len(deltas) == 0 {
		return 0, nil
	}

	applied := 0
	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		applied = 0
		for accountID, delta := range deltas {
			if delta == 0 {
				continue
			}
			if err := r.AtomicAddTx(tx, accountID, delta); err != nil {
				return err
			}
			applied++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}
