package ingestion

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insushim/alchan-sub004/internal/clients/finance"
	"github.com/insushim/alchan-sub004/internal/database"
	"github.com/insushim/alchan-sub004/internal/domain"
	"github.com/insushim/alchan-sub004/internal/modules/market"
)

// fakeQuoteFetcher serves canned quotes per symbol
type fakeQuoteFetcher struct {
	quotes map[string]*finance.Quote
	errs   map[string]error
	calls  []string
}

func (f *fakeQuoteFetcher) GetQuote(_ context.Context, symbol string) (*finance.Quote, error) {
	f.calls = append(f.calls, symbol)
	if err, ok := f.errs[symbol]; ok {
		return nil, err
	}
	if q, ok := f.quotes[symbol]; ok {
		return q, nil
	}
	return nil, errors.New("no quote")
}

// nopPacer lets tests run without real delays
type nopPacer struct{ waits int }

func (p *nopPacer) Wait(ctx context.Context) error {
	p.waits++
	return ctx.Err()
}

type rebuildRecorder struct{ rebuilds int }

func (r *rebuildRecorder) Rebuild(context.Context) error {
	r.rebuilds++
	return nil
}

type serviceFixture struct {
	svc      *Service
	inst     *market.InstrumentRepository
	fetcher  *fakeQuoteFetcher
	pacer    *nopPacer
	snapshot *rebuildRecorder
}

func setupService(t *testing.T) *serviceFixture {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	log := zerolog.Nop()
	instruments := market.NewInstrumentRepository(db.Conn(), log)
	settings := market.NewSettingsRepository(db.Conn(), log)

	fetcher := &fakeQuoteFetcher{quotes: map[string]*finance.Quote{}, errs: map[string]error{}}
	pacer := &nopPacer{}
	snapshot := &rebuildRecorder{}
	rates := NewExchangeRateService(nil, settings, log)

	return &serviceFixture{
		svc:      NewService(fetcher, rates, instruments, snapshot, pacer, log),
		inst:     instruments,
		fetcher:  fetcher,
		pacer:    pacer,
		snapshot: snapshot,
	}
}

func (f *serviceFixture) seed(t *testing.T, inst domain.Instrument) {
	t.Helper()
	require.NoError(t, f.inst.Create(inst))
}

func krwQuote(price float64) *finance.Quote {
	return &finance.Quote{LastPrice: price, Currency: "KRW", MarketState: "REGULAR"}
}

func realInstrument(id, symbol string, price int64) domain.Instrument {
	inst := market.NewInstrument(id, id, price, "tech", domain.ProductStock)
	inst.UsesRealData = true
	inst.ExternalSymbol = symbol
	return inst
}

func TestUpdateRealPrices_UpdatesAndSkips(t *testing.T) {
	f := setupService(t)
	f.seed(t, realInstrument("samsung", "005930.KS", 70000))
	f.seed(t, market.NewInstrument("class-etf", "class-etf", 10000, "mixed", domain.ProductETF))

	manual := realInstrument("frozen", "FRZN", 5000)
	manual.Manual = true
	f.seed(t, manual)

	f.fetcher.quotes["005930.KS"] = krwQuote(71500)

	report, err := f.svc.UpdateRealPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Updated: 1, Failed: 0, Skipped: 2}, report)

	got, err := f.inst.GetByID("samsung")
	require.NoError(t, err)
	assert.Equal(t, int64(71500), got.CurrentPrice)
	assert.Equal(t, []int64{70000, 71500}, got.PriceHistory)
	assert.Equal(t, domain.SessionRegular, got.External.Session)

	assert.Equal(t, 1, f.snapshot.rebuilds, "Snapshot rebuilds eagerly after updates")
	assert.Equal(t, []string{"005930.KS"}, f.fetcher.calls, "Skipped instruments never hit the provider")
}

func TestUpdateRealPrices_FailureIsolation(t *testing.T) {
	f := setupService(t)
	f.seed(t, realInstrument("broken", "BRKN", 1000))
	f.seed(t, realInstrument("samsung", "005930.KS", 70000))

	f.fetcher.errs["BRKN"] = errors.New("upstream 429")
	f.fetcher.quotes["005930.KS"] = krwQuote(69000)

	report, err := f.svc.UpdateRealPrices(context.Background())
	require.NoError(t, err, "One bad symbol never fails the run")
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Failed)

	got, err := f.inst.GetByID("samsung")
	require.NoError(t, err)
	assert.Equal(t, int64(69000), got.CurrentPrice)

	untouched, err := f.inst.GetByID("broken")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), untouched.CurrentPrice)
}

func TestUpdateRealPrices_NonPositivePriceFails(t *testing.T) {
	f := setupService(t)
	f.seed(t, realInstrument("samsung", "005930.KS", 70000))
	f.fetcher.quotes["005930.KS"] = krwQuote(0)

	report, err := f.svc.UpdateRealPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Failed: 1}, report)
	assert.Zero(t, f.snapshot.rebuilds, "No updates, no rebuild")
}

func TestUpdateRealPrices_CancelledContextReturnsPartialReport(t *testing.T) {
	f := setupService(t)
	f.seed(t, realInstrument("samsung", "005930.KS", 70000))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.UpdateRealPrices(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.fetcher.calls, "No request goes out after cancellation")
}

func TestUpdateRealPrices_CurrencyConversion(t *testing.T) {
	f := setupService(t)
	f.seed(t, realInstrument("apple", "AAPL", 250000))

	// Cold rate cache falls back to the 1300 default: 185.5 * 1300 = 241150
	f.fetcher.quotes["AAPL"] = &finance.Quote{LastPrice: 185.5, Currency: "USD", MarketState: "CLOSED"}

	report, err := f.svc.UpdateRealPrices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)

	got, err := f.inst.GetByID("apple")
	require.NoError(t, err)
	assert.Equal(t, int64(241150), got.CurrentPrice)
	assert.Equal(t, domain.SessionClosed, got.External.Session)
}

func TestConvertToWon_HalfUpRounding(t *testing.T) {
	f := setupService(t)

	// KRW passes through untouched
	assert.Equal(t, int64(71500), f.svc.convertToWon(krwQuote(71500)))

	// 0.37 * 1300 = 481.0 exactly; 0.123 * 1300 = 159.9 rounds to 160
	assert.Equal(t, int64(481), f.svc.convertToWon(&finance.Quote{LastPrice: 0.37, Currency: "USD"}))
	assert.Equal(t, int64(160), f.svc.convertToWon(&finance.Quote{LastPrice: 0.123, Currency: "USD"}))
}

func TestHistoryVolatility(t *testing.T) {
	assert.Zero(t, historyVolatility(nil))
	assert.Zero(t, historyVolatility([]int64{100, 110}), "Too-short history reads as zero")
	assert.Zero(t, historyVolatility([]int64{100, 100, 100}), "Constant prices have zero volatility")
	assert.Greater(t, historyVolatility([]int64{100, 110, 90, 120}), 0.0)
}

func TestHistoryCap(t *testing.T) {
	inst := market.NewInstrument("x", "x", 100, "tech", domain.ProductStock)
	for i := 0; i < 30; i++ {
		inst.AppendPrice(int64(100 + i))
	}
	assert.Len(t, inst.PriceHistory, domain.PriceHistoryLimit)
	assert.Equal(t, int64(129), inst.PriceHistory[len(inst.PriceHistory)-1])
}
