package market

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/insushim/alchan-sub004/internal/domain"
)

// PositionRepository handles position database operations
type PositionRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPositionRepository creates a new position repository
func NewPositionRepository(db *sql.DB, log zerolog.Logger) *PositionRepository {
	return &PositionRepository{
		db:  db,
		log: log.With().Str("repository", "position").Logger(),
	}
}

// Get retrieves a position, nil if the account holds none
func (r *PositionRepository) Get(accountID, instrumentID string) (*domain.Position, error) {
	return r.get(r.db.QueryRow(`
		SELECT account_id, instrument_id, quantity, avg_price, last_buy_at, updated_at
		FROM positions WHERE account_id = ? AND instrument_id = ?
	`, accountID, instrumentID))
}

// GetTx retrieves a position within a transaction
func (r *PositionRepository) GetTx(tx *sql.Tx, accountID, instrumentID string) (*domain.Position, error) {
	return r.get(tx.QueryRow(`
		SELECT account_id, instrument_id, quantity, avg_price, last_buy_at, updated_at
		FROM positions WHERE account_id = ? AND instrument_id = ?
	`, accountID, instrumentID))
}

func (r *PositionRepository) get(row *sql.Row) (*domain.Position, error) {
	var pos domain.Position
	var lastBuyAt sql.NullString
	var updatedAt string

	err := row.Scan(&pos.AccountID, &pos.InstrumentID, &pos.Quantity, &pos.AvgPrice, &lastBuyAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position: %w", err)
	}

	if lastBuyAt.Valid && lastBuyAt.String != "" {
		t := parseTime(lastBuyAt.String)
		pos.LastBuyAt = &t
	}
	pos.UpdatedAt = parseTime(updatedAt)
	return &pos, nil
}

// GetByAccount retrieves every position held by an account
func (r *PositionRepository) GetByAccount(accountID string) ([]domain.Position, error) {
	rows, err := r.db.Query(`
		SELECT account_id, instrument_id, quantity, avg_price, last_buy_at, updated_at
		FROM positions WHERE account_id = ? ORDER BY instrument_id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions for %s: %w", accountID, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var pos domain.Position
		var lastBuyAt sql.NullString
		var updatedAt string
		if err := rows.Scan(&pos.AccountID, &pos.InstrumentID, &pos.Quantity, &pos.AvgPrice, &lastBuyAt, &updatedAt); err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan position row")
			continue
		}
		if lastBuyAt.Valid && lastBuyAt.String != "" {
			t := parseTime(lastBuyAt.String)
			pos.LastBuyAt = &t
		}
		pos.UpdatedAt = parseTime(updatedAt)
		positions = append(positions, pos)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}

	return positions, nil
}

// CountHoldersTx counts accounts holding an instrument within a transaction
func (r *PositionRepository) CountHoldersTx(tx *sql.Tx, instrumentID string) (int, error) {
	var count int
	err := tx.QueryRow(`
		SELECT COUNT(*) FROM positions WHERE instrument_id = ? AND quantity > 0
	`, instrumentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count holders of %s: %w", instrumentID, err)
	}
	return count, nil
}

// UpsertTx inserts or overwrites a position within a transaction
func (r *PositionRepository) UpsertTx(tx *sql.Tx, pos domain.Position) error {
	var lastBuyAt interface{}
	if pos.LastBuyAt != nil {
		lastBuyAt = formatTime(*pos.LastBuyAt)
	}

	_, err := tx.Exec(`
		INSERT INTO positions (account_id, instrument_id, quantity, avg_price, last_buy_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, instrument_id) DO UPDATE SET
			quantity = excluded.quantity,
			avg_price = excluded.avg_price,
			last_buy_at = excluded.last_buy_at,
			updated_at = excluded.updated_at
	`, pos.AccountID, pos.InstrumentID, pos.Quantity, pos.AvgPrice, lastBuyAt, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to upsert position: %w", err)
	}
	return nil
}

// DeleteTx removes a position within a transaction
func (r *PositionRepository) DeleteTx(tx *sql.Tx, accountID, instrumentID string) error {
	_, err := tx.Exec(`
		DELETE FROM positions WHERE account_id = ? AND instrument_id = ?
	`, accountID, instrumentID)
	if err != nil {
		return fmt.Errorf("failed to delete position: %w", err)
	}
	return nil
}
