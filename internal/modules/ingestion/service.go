// Package ingestion fetches third-party reference prices and exchange rates
// and applies them to the simulated market.
package ingestion

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/insushim/alchan-sub004/internal/clients/finance"
	"github.com/insushim/alchan-sub004/internal/domain"
	"github.com/insushim/alchan-sub004/internal/modules/market"
)

// QuoteFetcher fetches one reference quote per external symbol
type QuoteFetcher interface {
	GetQuote(ctx context.Context, symbol string) (*finance.Quote, error)
}

// SnapshotRebuilder refreshes the materialized market view after a batch of
// price mutations
type SnapshotRebuilder interface {
	Rebuild(ctx context.Context) error
}

// Report summarizes one ingestion run. The run never aborts early: every
// per-instrument failure lands in Failed and the loop continues.
type Report struct {
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Service ingests external prices into the instrument table
type Service struct {
	quotes      QuoteFetcher
	rates       *ExchangeRateService
	instruments *market.InstrumentRepository
	snapshot    SnapshotRebuilder
	pacer       Pacer
	log         zerolog.Logger
}

// NewService creates a new ingestion service
func NewService(
	quotes QuoteFetcher,
	rates *ExchangeRateService,
	instruments *market.InstrumentRepository,
	snapshot SnapshotRebuilder,
	pacer Pacer,
	log zerolog.Logger,
) *Service {
	return &Service{
		quotes:      quotes,
		rates:       rates,
		instruments: instruments,
		snapshot:    snapshot,
		pacer:       pacer,
		log:         log.With().Str("service", "ingestion").Logger(),
	}
}

// UpdateRealPrices refreshes every listed, externally-priced instrument from
// the reference provider. Requests go out sequentially through the pacer to
// avoid upstream throttling. All successful updates are written in a single
// batch, followed by an eager snapshot rebuild.
func (s *Service) UpdateRealPrices(ctx context.Context) (Report, error) {
	s.log.Info().Msg("Starting price ingestion")
	startTime := time.Now()

	var report Report

	instruments, err := s.instruments.GetListed()
	if err != nil {
		return report, err
	}

	var updates []domain.Instrument

	for _, inst := range instruments {
		if inst.Manual || !inst.UsesRealData || inst.ExternalSymbol == "" {
			report.Skipped++
			continue
		}

		if err := s.pacer.Wait(ctx); err != nil {
			// Run cancelled; report what happened so far
			return report, err
		}

		quote, err := s.quotes.GetQuote(ctx, inst.ExternalSymbol)
		if err != nil {
			s.log.Warn().Err(err).Str("instrument", inst.ID).Msg("Quote fetch failed")
			report.Failed++
			continue
		}

		price := s.convertToWon(quote)
		if price <= 0 {
			s.log.Warn().Str("instrument", inst.ID).Float64("raw", quote.LastPrice).Msg("Converted price not positive")
			report.Failed++
			continue
		}

		inst.CurrentPrice = price
		inst.AppendPrice(price)
		inst.Volatility = historyVolatility(inst.PriceHistory)
		inst.External = domain.ExternalData{
			LastPrice:     quote.LastPrice,
			PreviousClose: quote.PreviousClose,
			ChangePercent: quote.ChangePercent(),
			Currency:      domain.Currency(quote.Currency),
			Session:       DetermineSession(quote),
			FetchedAt:     time.Now().UTC(),
		}

		updates = append(updates, inst)
		report.Updated++
	}

	if err := s.instruments.UpdateBatch(updates); err != nil {
		s.log.Error().Err(err).Msg("Batch price write failed")
		report.Failed += report.Updated
		report.Updated = 0
		return report, nil
	}

	if s.snapshot != nil && report.Updated > 0 {
		if err := s.snapshot.Rebuild(ctx); err != nil {
			s.log.Warn().Err(err).Msg("Snapshot rebuild failed after ingestion")
		}
	}

	s.log.Info().
		Int("updated", report.Updated).
		Int("failed", report.Failed).
		Int("skipped", report.Skipped).
		Dur("duration", time.Since(startTime)).
		Msg("Price ingestion complete")

	return report, nil
}

// convertToWon converts a quote to whole won, half-up. Foreign-currency
// quotes use the cached USD/KRW rate; a cold cache falls back to the
// persisted value, never to zero.
func (s *Service) convertToWon(quote *finance.Quote) int64 {
	price := decimal.NewFromFloat(quote.LastPrice)

	if quote.Currency != "" && domain.Currency(quote.Currency) != domain.CurrencyKRW {
		rate := s.rates.LoadRate()
		price = price.Mul(decimal.NewFromFloat(rate.Rate))
	}

	return price.Round(0).IntPart()
}

// historyVolatility is the standard deviation of simple returns over the
// bounded price history. Too-short histories read as zero volatility.
func historyVolatility(history []int64) float64 {
	if len(history) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(history)-1)
	for i := 1; i < len(history); i++ {
		prev := history[i-1]
		if prev == 0 {
			continue
		}
		returns = append(returns, float64(history[i]-prev)/float64(prev))
	}

	if len(returns) < 2 {
		return 0
	}

	return stat.StdDev(returns, nil)
}
