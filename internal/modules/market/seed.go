package market

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/insushim/alchan-sub004/internal/domain"
)

// NewInstrument builds a freshly listed instrument. The minimum re-listing
// price is fixed here, at creation, and never recalculated afterwards.
func NewInstrument(id, name string, initialPrice int64, sector string, productType domain.ProductType) domain.Instrument {
	return domain.Instrument{
		ID:             id,
		Name:           name,
		CurrentPrice:   initialPrice,
		InitialPrice:   initialPrice,
		MinRelistPrice: int64(math.Floor(float64(initialPrice)*domain.MinRelistRatio + 0.5)),
		Listed:         true,
		Sector:         sector,
		ProductType:    productType,
		PriceHistory:   []int64{initialPrice},
		External: domain.ExternalData{
			Session: domain.SessionClosed,
		},
	}
}

// defaultInstruments is the market seeded for a new class
var defaultInstruments = []domain.Instrument{
	withRealData(NewInstrument("samsung-elec", "삼성전자", 70000, "tech", domain.ProductStock), "005930.KS"),
	withRealData(NewInstrument("hyundai-motor", "현대차", 200000, "auto", domain.ProductStock), "005380.KS"),
	withRealData(NewInstrument("kakao", "카카오", 45000, "tech", domain.ProductStock), "035720.KS"),
	withRealData(NewInstrument("apple", "애플", 250000, "tech", domain.ProductStock), "AAPL"),
	NewInstrument("class-etf", "우리반 ETF", 10000, "mixed", domain.ProductETF),
	NewInstrument("class-bond", "우리반 채권", 10000, "bond", domain.ProductBond),
	NewInstrument("class-land", "교실 부동산", 100000, "real_estate", domain.ProductRealEstate),
}

func withRealData(inst domain.Instrument, symbol string) domain.Instrument {
	inst.UsesRealData = true
	inst.ExternalSymbol = symbol
	return inst
}

// Seeder creates the initial instrument set on first startup
type Seeder struct {
	instruments *InstrumentRepository
	log         zerolog.Logger
}

// NewSeeder creates a new market seeder
func NewSeeder(instruments *InstrumentRepository, log zerolog.Logger) *Seeder {
	return &Seeder{
		instruments: instruments,
		log:         log.With().Str("service", "seeder").Logger(),
	}
}

// Seed creates any default instrument that does not exist yet.
// Existing instruments are never touched, so repeated startups are safe.
func (s *Seeder) Seed() error {
	created := 0
	for _, inst := range defaultInstruments {
		existing, err := s.instruments.GetByID(inst.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		if err := s.instruments.Create(inst); err != nil {
			return err
		}
		created++
	}

	if created > 0 {
		s.log.Info().Int("created", created).Msg("Seeded market instruments")
	}
	return nil
}
