package snapshot

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insushim/alchan-sub004/internal/database"
	"github.com/insushim/alchan-sub004/internal/domain"
	"github.com/insushim/alchan-sub004/internal/modules/market"
)

func setupSnapshot(t *testing.T) (*Service, *market.InstrumentRepository, *database.DB) {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	instruments := market.NewInstrumentRepository(db.Conn(), zerolog.Nop())
	return NewService(instruments, db.Conn(), zerolog.Nop()), instruments, db
}

func TestGet_LazyRebuildWhenMissing(t *testing.T) {
	svc, instruments, db := setupSnapshot(t)

	require.NoError(t, instruments.Create(
		market.NewInstrument("samsung", "삼성전자", 70000, "tech", domain.ProductStock)))

	// No snapshot row exists yet; Get must rebuild instead of erroring
	snap, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Count)
	assert.Equal(t, "samsung", snap.Instruments[0].ID)
	assert.Equal(t, int64(70000), snap.Instruments[0].CurrentPrice)

	var count int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&count))
	assert.Equal(t, 1, count, "Lazy rebuild stores the document")
}

func TestGet_ServesStoredDocument(t *testing.T) {
	svc, instruments, _ := setupSnapshot(t)

	inst := market.NewInstrument("samsung", "삼성전자", 70000, "tech", domain.ProductStock)
	require.NoError(t, instruments.Create(inst))
	require.NoError(t, svc.Rebuild(context.Background()))

	// Mutate the source after the rebuild; Get serves the materialized copy
	inst.CurrentPrice = 99999
	require.NoError(t, instruments.Update(inst))

	snap, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(70000), snap.Instruments[0].CurrentPrice)

	// Until the next rebuild
	require.NoError(t, svc.Rebuild(context.Background()))
	snap, err = svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(99999), snap.Instruments[0].CurrentPrice)
}

func TestGet_RebuildsUndecodableDocument(t *testing.T) {
	svc, instruments, db := setupSnapshot(t)

	require.NoError(t, instruments.Create(
		market.NewInstrument("samsung", "삼성전자", 70000, "tech", domain.ProductStock)))

	_, err := db.Conn().Exec(`
		INSERT INTO snapshots (key, data, count, refreshed_at) VALUES ('market', X'DEADBEEF', 0, '')
	`)
	require.NoError(t, err)

	snap, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Count)
}

func TestRebuild_ExcludesDelisted(t *testing.T) {
	svc, instruments, _ := setupSnapshot(t)

	require.NoError(t, instruments.Create(
		market.NewInstrument("samsung", "삼성전자", 70000, "tech", domain.ProductStock)))

	delisted := market.NewInstrument("gone", "상장폐지", 500, "tech", domain.ProductStock)
	delisted.Listed = false
	require.NoError(t, instruments.Create(delisted))

	snap, err := svc.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, snap.Count)
	assert.Equal(t, "samsung", snap.Instruments[0].ID)
}
