// Package snapshot maintains the single materialized view over all listed
// instruments. Read-heavy clients consult this document instead of fanning
// out over instrument records.
package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/insushim/alchan-sub004/internal/domain"
	"github.com/insushim/alchan-sub004/internal/modules/market"
)

// snapshotKey is the row key of the one market snapshot document
const snapshotKey = "market"

// Service builds and serves the materialized market snapshot
type Service struct {
	instruments *market.InstrumentRepository
	db          *sql.DB
	log         zerolog.Logger
}

// NewService creates a new snapshot service
func NewService(instruments *market.InstrumentRepository, db *sql.DB, log zerolog.Logger) *Service {
	return &Service{
		instruments: instruments,
		db:          db,
		log:         log.With().Str("service", "snapshot").Logger(),
	}
}

// Rebuild projects all listed instruments into one snapshot document and
// overwrites the stored copy. The snapshot is derived data: losing it only
// costs a rebuild.
func (s *Service) Rebuild(ctx context.Context) error {
	snap, err := s.rebuild(ctx)
	if err != nil {
		return err
	}

	s.log.Debug().Int("count", snap.Count).Msg("Snapshot rebuilt")
	return nil
}

// Get returns the market snapshot, rebuilding it lazily when the stored
// document is missing. A missing document means "needs rebuild", not an
// error.
func (s *Service) Get(ctx context.Context) (*domain.MarketSnapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE key = ?`, snapshotKey).Scan(&data)
	if err == sql.ErrNoRows {
		return s.rebuild(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap domain.MarketSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		s.log.Warn().Err(err).Msg("Stored snapshot undecodable, rebuilding")
		return s.rebuild(ctx)
	}

	return &snap, nil
}

func (s *Service) rebuild(ctx context.Context) (*domain.MarketSnapshot, error) {
	instruments, err := s.instruments.GetListed()
	if err != nil {
		return nil, fmt.Errorf("failed to load listed instruments: %w", err)
	}

	snap := &domain.MarketSnapshot{
		Instruments: make([]domain.SnapshotInstrument, 0, len(instruments)),
		RefreshedAt: time.Now().UTC(),
	}

	for _, inst := range instruments {
		snap.Instruments = append(snap.Instruments, project(inst))
	}
	snap.Count = len(snap.Instruments)

	data, err := msgpack.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (key, data, count, refreshed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			data = excluded.data,
			count = excluded.count,
			refreshed_at = excluded.refreshed_at
	`, snapshotKey, data, snap.Count, snap.RefreshedAt.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("failed to store snapshot: %w", err)
	}

	return snap, nil
}

// project caps the exported history at the documented bound even if the
// source record carries more samples.
func project(inst domain.Instrument) domain.SnapshotInstrument {
	history := inst.PriceHistory
	if len(history) > domain.PriceHistoryLimit {
		history = history[len(history)-domain.PriceHistoryLimit:]
	}

	return domain.SnapshotInstrument{
		ID:            inst.ID,
		Name:          inst.Name,
		CurrentPrice:  inst.CurrentPrice,
		InitialPrice:  inst.InitialPrice,
		Sector:        inst.Sector,
		ProductType:   inst.ProductType,
		Volatility:    inst.Volatility,
		PriceHistory:  history,
		HolderCount:   inst.HolderCount,
		ChangePercent: inst.External.ChangePercent,
		Session:       inst.External.Session,
	}
}
