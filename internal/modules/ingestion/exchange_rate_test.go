package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insushim/alchan-sub004/internal/database"
	"github.com/insushim/alchan-sub004/internal/modules/market"
)

type fakeRateFetcher struct {
	rate float64
	err  error
}

func (f *fakeRateFetcher) GetRate(context.Context, string, string) (float64, error) {
	return f.rate, f.err
}

func setupRates(t *testing.T, fetcher RateFetcher) (*ExchangeRateService, *market.SettingsRepository) {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	settings := market.NewSettingsRepository(db.Conn(), zerolog.Nop())
	return NewExchangeRateService(fetcher, settings, zerolog.Nop()), settings
}

func TestExchangeRate_DefaultWhenNeverFetched(t *testing.T) {
	svc, _ := setupRates(t, &fakeRateFetcher{})

	rate := svc.LoadRate()
	assert.Equal(t, DefaultExchangeRate, rate.Rate)
	assert.Equal(t, "default", rate.Source)
}

func TestExchangeRate_UpdatePersists(t *testing.T) {
	fetcher := &fakeRateFetcher{rate: 1342.5}
	svc, settings := setupRates(t, fetcher)

	rate := svc.UpdateRate(context.Background())
	assert.Equal(t, 1342.5, rate.Rate)
	assert.Equal(t, "provider", rate.Source)

	// A fresh service over the same store reads the persisted value
	fresh := NewExchangeRateService(fetcher, settings, zerolog.Nop())
	loaded := fresh.LoadRate()
	assert.Equal(t, 1342.5, loaded.Rate)
	assert.Equal(t, "provider", loaded.Source)
}

func TestExchangeRate_FailureKeepsLastKnown(t *testing.T) {
	fetcher := &fakeRateFetcher{rate: 1342.5}
	svc, _ := setupRates(t, fetcher)

	svc.UpdateRate(context.Background())

	fetcher.err = errors.New("provider down")
	rate := svc.UpdateRate(context.Background())
	assert.Equal(t, 1342.5, rate.Rate, "Failed fetch keeps the previous rate")
}

func TestExchangeRate_NeverZero(t *testing.T) {
	svc, settings := setupRates(t, &fakeRateFetcher{err: errors.New("down")})

	// Even a corrupt persisted zero resolves to the default
	require.NoError(t, settings.SetFloat(market.SettingExchangeRate, 0))

	rate := svc.UpdateRate(context.Background())
	assert.Equal(t, DefaultExchangeRate, rate.Rate)
	assert.Greater(t, rate.Rate, 0.0)
}
