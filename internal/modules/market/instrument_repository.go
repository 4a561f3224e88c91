// Package market holds the ledger-side repositories for instruments,
// accounts and positions, plus market seeding.
package market

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/insushim/alchan-sub004/internal/database"
	"github.com/insushim/alchan-sub004/internal/domain"
)

// InstrumentRepository handles instrument database operations
type InstrumentRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewInstrumentRepository creates a new instrument repository
func NewInstrumentRepository(db *sql.DB, log zerolog.Logger) *InstrumentRepository {
	return &InstrumentRepository{
		db:  db,
		log: log.With().Str("repository", "instrument").Logger(),
	}
}

const instrumentColumns = `id, name, current_price, initial_price, min_relist_price,
	listed, manual, uses_real_data, external_symbol, sector, product_type,
	volatility, price_history, holder_count, buy_volume, sell_volume,
	ext_last_price, ext_prev_close, ext_change_pct, ext_currency, ext_session,
	ext_fetched_at, updated_at`

// GetByID retrieves an instrument by id, nil if it does not exist
func (r *InstrumentRepository) GetByID(id string) (*domain.Instrument, error) {
	row := r.db.QueryRow(`SELECT `+instrumentColumns+` FROM instruments WHERE id = ?`, id)

	inst, err := scanInstrument(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instrument %s: %w", id, err)
	}
	return inst, nil
}

// GetAll retrieves every instrument
func (r *InstrumentRepository) GetAll() ([]domain.Instrument, error) {
	return r.query(`SELECT ` + instrumentColumns + ` FROM instruments ORDER BY id`)
}

// GetListed retrieves every listed instrument
func (r *InstrumentRepository) GetListed() ([]domain.Instrument, error) {
	return r.query(`SELECT ` + instrumentColumns + ` FROM instruments WHERE listed = 1 ORDER BY id`)
}

// GetListedBySector retrieves listed instruments in a sector
func (r *InstrumentRepository) GetListedBySector(sector string) ([]domain.Instrument, error) {
	return r.query(`SELECT `+instrumentColumns+` FROM instruments WHERE listed = 1 AND sector = ? ORDER BY id`, sector)
}

func (r *InstrumentRepository) query(q string, args ...interface{}) ([]domain.Instrument, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	var instruments []domain.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			r.log.Warn().Err(err).Msg("Failed to scan instrument row")
			continue
		}
		instruments = append(instruments, *inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instruments: %w", err)
	}

	return instruments, nil
}

// Create inserts a new instrument
func (r *InstrumentRepository) Create(inst domain.Instrument) error {
	history, err := json.Marshal(inst.PriceHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal price history: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO instruments (`+instrumentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		inst.ID, inst.Name, inst.CurrentPrice, inst.InitialPrice, inst.MinRelistPrice,
		boolToInt(inst.Listed), boolToInt(inst.Manual), boolToInt(inst.UsesRealData),
		inst.ExternalSymbol, inst.Sector, string(inst.ProductType),
		inst.Volatility, string(history), inst.HolderCount, inst.BuyVolume, inst.SellVolume,
		inst.External.LastPrice, inst.External.PreviousClose, inst.External.ChangePercent,
		string(inst.External.Currency), string(inst.External.Session),
		formatTime(inst.External.FetchedAt), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to create instrument %s: %w", inst.ID, err)
	}
	return nil
}

// Update overwrites an instrument record
func (r *InstrumentRepository) Update(inst domain.Instrument) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		return r.updateTx(tx, inst)
	})
}

// UpdateBatch writes a batch of updated instruments in a single transaction
func (r *InstrumentRepository) UpdateBatch(instruments []domain.Instrument) error {
	if len(instruments) == 0 {
		return nil
	}

	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, inst := range instruments {
			if err := r.updateTx(tx, inst); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *InstrumentRepository) updateTx(tx *sql.Tx, inst domain.Instrument) error {
	history, err := json.Marshal(inst.PriceHistory)
	if err != nil {
		return fmt.Errorf("failed to marshal price history: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE instruments SET
			name = ?, current_price = ?, initial_price = ?, min_relist_price = ?,
			listed = ?, manual = ?, uses_real_data = ?, external_symbol = ?,
			sector = ?, product_type = ?, volatility = ?, price_history = ?,
			holder_count = ?, buy_volume = ?, sell_volume = ?,
			ext_last_price = ?, ext_prev_close = ?, ext_change_pct = ?,
			ext_currency = ?, ext_session = ?, ext_fetched_at = ?, updated_at = ?
		WHERE id = ?
	`,
		inst.Name, inst.CurrentPrice, inst.InitialPrice, inst.MinRelistPrice,
		boolToInt(inst.Listed), boolToInt(inst.Manual), boolToInt(inst.UsesRealData),
		inst.ExternalSymbol, inst.Sector, string(inst.ProductType),
		inst.Volatility, string(history), inst.HolderCount, inst.BuyVolume, inst.SellVolume,
		inst.External.LastPrice, inst.External.PreviousClose, inst.External.ChangePercent,
		string(inst.External.Currency), string(inst.External.Session),
		formatTime(inst.External.FetchedAt), formatTime(time.Now()),
		inst.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update instrument %s: %w", inst.ID, err)
	}
	return nil
}

// AddVolumeTx increments trading-volume counters within a transaction
func (r *InstrumentRepository) AddVolumeTx(tx *sql.Tx, id string, buyQty, sellQty int64) error {
	_, err := tx.Exec(`
		UPDATE instruments
		SET buy_volume = buy_volume + ?, sell_volume = sell_volume + ?, updated_at = ?
		WHERE id = ?
	`, buyQty, sellQty, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to add volume for %s: %w", id, err)
	}
	return nil
}

// SetHolderCountTx overwrites the holder count within a transaction
func (r *InstrumentRepository) SetHolderCountTx(tx *sql.Tx, id string, count int) error {
	_, err := tx.Exec(`UPDATE instruments SET holder_count = ?, updated_at = ? WHERE id = ?`,
		count, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to set holder count for %s: %w", id, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInstrument(row rowScanner) (*domain.Instrument, error) {
	var inst domain.Instrument
	var listed, manual, usesRealData int
	var productType, extCurrency, extSession, history string
	var extFetchedAt, updatedAt string

	err := row.Scan(
		&inst.ID, &inst.Name, &inst.CurrentPrice, &inst.InitialPrice, &inst.MinRelistPrice,
		&listed, &manual, &usesRealData, &inst.ExternalSymbol, &inst.Sector, &productType,
		&inst.Volatility, &history, &inst.HolderCount, &inst.BuyVolume, &inst.SellVolume,
		&inst.External.LastPrice, &inst.External.PreviousClose, &inst.External.ChangePercent,
		&extCurrency, &extSession, &extFetchedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	inst.Listed = listed != 0
	inst.Manual = manual != 0
	inst.UsesRealData = usesRealData != 0
	inst.ProductType = domain.ProductType(productType)
	inst.External.Currency = domain.Currency(extCurrency)
	inst.External.Session = domain.MarketSession(extSession)
	inst.External.FetchedAt = parseTime(extFetchedAt)
	inst.UpdatedAt = parseTime(updatedAt)

	if err := json.Unmarshal([]byte(history), &inst.PriceHistory); err != nil {
		inst.PriceHistory = nil
	}

	return &inst, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
