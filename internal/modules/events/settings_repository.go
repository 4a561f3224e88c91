package events

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/insushim/alchan-sub004/internal/database"
)

// Settings holds a class's economic-event configuration
type Settings struct {
	ClassCode   string   `json:"class_code"`
	Enabled     []string `json:"enabled"`      // template names; empty enables all
	Params      Params   `json:"params"`       // template parameters
	LastApplied string   `json:"last_applied"` // YYYY-MM-DD cooldown gate
}

// Templates resolves the enabled templates into concrete effects
func (s Settings) Templates() []Effect {
	names := s.Enabled
	if len(names) == 0 {
		names = templateNames
	}

	effects := make([]Effect, 0, len(names))
	for _, name := range names {
		if effect, ok := buildTemplate(name, s.Params); ok {
			effects = append(effects, effect)
		}
	}
	return effects
}

// SettingsRepository handles per-class event settings
type SettingsRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSettingsRepository creates a new event settings repository
func NewSettingsRepository(db *sql.DB, log zerolog.Logger) *SettingsRepository {
	return &SettingsRepository{
		db:  db,
		log: log.With().Str("repository", "event_settings").Logger(),
	}
}

// Get retrieves a class's settings, falling back to defaults when the class
// never configured any
func (r *SettingsRepository) Get(classCode string) (Settings, error) {
	settings := Settings{ClassCode: classCode, Params: DefaultParams}

	var enabled, params, lastApplied string
	err := r.db.QueryRow(`
		SELECT enabled, params, last_applied FROM event_settings WHERE class_code = ?
	`, classCode).Scan(&enabled, &params, &lastApplied)
	if err == sql.ErrNoRows {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("failed to get event settings for %s: %w", classCode, err)
	}

	settings.LastApplied = lastApplied
	if err := json.Unmarshal([]byte(enabled), &settings.Enabled); err != nil {
		r.log.Warn().Str("class", classCode).Msg("Malformed enabled templates, using all")
		settings.Enabled = nil
	}
	if params != "" && params != "{}" {
		if err := json.Unmarshal([]byte(params), &settings.Params); err != nil {
			r.log.Warn().Str("class", classCode).Msg("Malformed event params, using defaults")
			settings.Params = DefaultParams
		}
	}

	return settings, nil
}

// Upsert stores a class's settings
func (r *SettingsRepository) Upsert(settings Settings) error {
	enabled, err := json.Marshal(settings.Enabled)
	if err != nil {
		return fmt.Errorf("failed to marshal enabled templates: %w", err)
	}
	params, err := json.Marshal(settings.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal event params: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO event_settings (class_code, enabled, params, last_applied)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(class_code) DO UPDATE SET
			enabled = excluded.enabled,
			params = excluded.params,
			last_applied = excluded.last_applied
	`, settings.ClassCode, string(enabled), string(params), settings.LastApplied)
	if err != nil {
		return fmt.Errorf("failed to upsert event settings for %s: %w", settings.ClassCode, err)
	}
	return nil
}

// TryAdvanceCooldown atomically advances the per-class last-applied date to
// today. It returns false when the date already reads today - the compare and
// the write happen in one statement, so racing scheduler firings cannot both
// win.
func (r *SettingsRepository) TryAdvanceCooldown(classCode, today string) (bool, error) {
	won := false

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		won = false

		_, err := tx.Exec(`
			INSERT OR IGNORE INTO event_settings (class_code) VALUES (?)
		`, classCode)
		if err != nil {
			return fmt.Errorf("failed to ensure event settings row: %w", err)
		}

		res, err := tx.Exec(`
			UPDATE event_settings SET last_applied = ?
			WHERE class_code = ? AND last_applied <> ?
		`, today, classCode, today)
		if err != nil {
			return fmt.Errorf("failed to advance cooldown: %w", err)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check cooldown advance: %w", err)
		}
		won = affected > 0
		return nil
	})
	if err != nil {
		return false, err
	}

	return won, nil
}

// AdvanceCooldown unconditionally sets the last-applied date (FORCE path)
func (r *SettingsRepository) AdvanceCooldown(classCode, today string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO event_settings (class_code) VALUES (?)`, classCode); err != nil {
			return fmt.Errorf("failed to ensure event settings row: %w", err)
		}
		if _, err := tx.Exec(`UPDATE event_settings SET last_applied = ? WHERE class_code = ?`, today, classCode); err != nil {
			return fmt.Errorf("failed to set cooldown: %w", err)
		}
		return nil
	})
}
