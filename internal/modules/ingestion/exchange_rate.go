package ingestion

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/insushim/alchan-sub004/internal/domain"
	"github.com/insushim/alchan-sub004/internal/modules/market"
)

// DefaultExchangeRate seeds the USD/KRW rate before the first successful
// fetch. The persisted rate must never be null or zero.
const DefaultExchangeRate = 1300.0

// RateFetcher fetches a single currency pair from the external provider
type RateFetcher interface {
	GetRate(ctx context.Context, base, target string) (float64, error)
}

// ExchangeRateService maintains the singleton USD/KRW reference rate.
// The persisted value is authoritative across restarts; the in-memory mirror
// only serves the current run. On any fetch failure the previous value is
// retained - callers never see an error or a zero rate.
type ExchangeRateService struct {
	fetcher  RateFetcher
	settings *market.SettingsRepository
	log      zerolog.Logger

	mu     sync.RWMutex
	mirror *domain.ExchangeRate
}

// NewExchangeRateService creates a new exchange rate service
func NewExchangeRateService(fetcher RateFetcher, settings *market.SettingsRepository, log zerolog.Logger) *ExchangeRateService {
	return &ExchangeRateService{
		fetcher:  fetcher,
		settings: settings,
		log:      log.With().Str("service", "exchange_rate").Logger(),
	}
}

// UpdateRate fetches a fresh rate and persists it. On failure the last known
// value is returned untouched.
func (s *ExchangeRateService) UpdateRate(ctx context.Context) domain.ExchangeRate {
	rate, err := s.fetcher.GetRate(ctx, "USD", "KRW")
	if err != nil {
		s.log.Warn().Err(err).Msg("Exchange rate fetch failed, keeping last known value")
		return s.LoadRate()
	}

	updated := domain.ExchangeRate{
		Rate:      rate,
		UpdatedAt: time.Now().UTC(),
		Source:    "provider",
	}

	if err := s.persist(updated); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist exchange rate")
	}

	s.mu.Lock()
	s.mirror = &updated
	s.mu.Unlock()

	s.log.Info().Float64("rate", rate).Msg("Exchange rate updated")
	return updated
}

// LoadRate returns the current rate: the in-memory mirror if warm, otherwise
// the persisted value, otherwise the seeded default. Never zero.
func (s *ExchangeRateService) LoadRate() domain.ExchangeRate {
	s.mu.RLock()
	if s.mirror != nil {
		cached := *s.mirror
		s.mu.RUnlock()
		return cached
	}
	s.mu.RUnlock()

	loaded := s.loadPersisted()

	s.mu.Lock()
	s.mirror = &loaded
	s.mu.Unlock()

	return loaded
}

func (s *ExchangeRateService) loadPersisted() domain.ExchangeRate {
	// Read the raw setting so an unset key is distinguishable from a
	// stored value. GetFloat would fold both into the default.
	raw, err := s.settings.Get(market.SettingExchangeRate)
	if err != nil || raw == nil {
		return domain.ExchangeRate{Rate: DefaultExchangeRate, Source: "default"}
	}
	rate, err := strconv.ParseFloat(*raw, 64)
	if err != nil || rate <= 0 {
		return domain.ExchangeRate{Rate: DefaultExchangeRate, Source: "default"}
	}

	result := domain.ExchangeRate{Rate: rate, Source: "persisted"}

	if updatedAt, err := s.settings.Get(market.SettingExchangeRateUpdated); err == nil && updatedAt != nil {
		if t, err := time.Parse(time.RFC3339, *updatedAt); err == nil {
			result.UpdatedAt = t
		}
	}
	if source, err := s.settings.Get(market.SettingExchangeRateSource); err == nil && source != nil {
		result.Source = *source
	}

	return result
}

func (s *ExchangeRateService) persist(rate domain.ExchangeRate) error {
	if err := s.settings.SetFloat(market.SettingExchangeRate, rate.Rate); err != nil {
		return err
	}
	if err := s.settings.Set(market.SettingExchangeRateUpdated, rate.UpdatedAt.Format(time.RFC3339)); err != nil {
		return err
	}
	return s.settings.Set(market.SettingExchangeRateSource, rate.Source)
}
