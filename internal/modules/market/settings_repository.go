package market

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// Well-known settings keys
const (
	SettingVacationMode        = "vacation_mode"
	SettingExchangeRate        = "exchange_rate"
	SettingExchangeRateUpdated = "exchange_rate_updated_at"
	SettingExchangeRateSource  = "exchange_rate_source"
)

// SettingsRepository handles durable key/value state
type SettingsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSettingsRepository creates a new settings repository
func NewSettingsRepository(db *sql.DB, log zerolog.Logger) *SettingsRepository {
	return &SettingsRepository{
		db:  db,
		log: log.With().Str("repository", "settings").Logger(),
	}
}

// Get retrieves a setting value by key, nil if unset
func (r *SettingsRepository) Get(key string) (*string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return &value, nil
}

// Set sets a setting value
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// GetBool retrieves a boolean setting, defaultValue if unset or malformed
func (r *SettingsRepository) GetBool(key string, defaultValue bool) (bool, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseBool(*value)
	if err != nil {
		r.log.Warn().Str("key", key).Str("value", *value).Msg("Malformed boolean setting")
		return defaultValue, nil
	}
	return parsed, nil
}

// SetBool stores a boolean setting
func (r *SettingsRepository) SetBool(key string, value bool) error {
	return r.Set(key, strconv.FormatBool(value))
}

// GetFloat retrieves a float setting, defaultValue if unset or malformed
func (r *SettingsRepository) GetFloat(key string, defaultValue float64) (float64, error) {
	value, err := r.Get(key)
	if err != nil {
		return defaultValue, err
	}
	if value == nil {
		return defaultValue, nil
	}
	parsed, err := strconv.ParseFloat(*value, 64)
	if err != nil {
		r.log.Warn().Str("key", key).Str("value", *value).Msg("Malformed float setting")
		return defaultValue, nil
	}
	return parsed, nil
}

// SetFloat stores a float setting
func (r *SettingsRepository) SetFloat(key string, value float64) error {
	return r.Set(key, strconv.FormatFloat(value, 'f', -1, 64))
}
