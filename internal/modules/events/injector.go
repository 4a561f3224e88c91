package events

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/insushim/alchan-sub004/internal/domain"
	"github.com/insushim/alchan-sub004/internal/modules/market"
)

// ErrCooldownActive means the class already received an event today
var ErrCooldownActive = errors.New("economic event cooldown active")

// ErrNoTemplates means the class has no usable event templates
var ErrNoTemplates = errors.New("no enabled event templates")

// Summary describes one applied economic event
type Summary struct {
	ID            string    `json:"id"`
	ClassCode     string    `json:"class_code"`
	Kind          string    `json:"kind"`
	Trigger       Trigger   `json:"trigger"`
	AffectedCount int       `json:"affected_count"`
	TotalMoved    int64     `json:"total_moved"`
	AppliedAt     time.Time `json:"applied_at"`
}

// Injector selects and applies economic events to a class
type Injector struct {
	settings    *SettingsRepository
	instruments *market.InstrumentRepository
	accounts    *market.AccountRepository
	loc         *time.Location
	rng         *rand.Rand
	now         func() time.Time
	log         zerolog.Logger
}

// NewInjector creates a new event injector. The RNG is injectable so tests
// can pin the template selection and lottery draw.
func NewInjector(
	settings *SettingsRepository,
	instruments *market.InstrumentRepository,
	accounts *market.AccountRepository,
	loc *time.Location,
	rng *rand.Rand,
	log zerolog.Logger,
) *Injector {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Injector{
		settings:    settings,
		instruments: instruments,
		accounts:    accounts,
		loc:         loc,
		rng:         rng,
		now:         time.Now,
		log:         log.With().Str("service", "event_injector").Logger(),
	}
}

// TriggerClassEvent applies exactly one enabled event effect to a class.
//
// The per-class cooldown date is advanced atomically before any effect runs,
// so independent scheduler firings racing on the same day cannot
// double-apply. TriggerForce bypasses the cooldown for operator and test use
// and must never be the default.
func (i *Injector) TriggerClassEvent(ctx context.Context, classCode string, trigger Trigger) (*Summary, error) {
	settings, err := i.settings.Get(classCode)
	if err != nil {
		return nil, err
	}

	templates := settings.Templates()
	if len(templates) == 0 {
		return nil, ErrNoTemplates
	}

	// The cooldown is consumed before the effect applies and is not rolled
	// back if apply fails, so a failure cannot retry into a double payout.
	// A forced trigger is the recovery path for a blocked class.
	today := i.now().In(i.loc).Format("2006-01-02")
	if trigger == TriggerForce {
		if err := i.settings.AdvanceCooldown(classCode, today); err != nil {
			return nil, err
		}
	} else {
		won, err := i.settings.TryAdvanceCooldown(classCode, today)
		if err != nil {
			return nil, err
		}
		if !won {
			return nil, ErrCooldownActive
		}
	}

	effect := templates[i.rng.Intn(len(templates))]
	if err := Validate(effect); err != nil {
		return nil, err
	}

	affected, total, err := i.apply(ctx, classCode, effect)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		ID:            uuid.NewString(),
		ClassCode:     classCode,
		Kind:          effect.Kind(),
		Trigger:       trigger,
		AffectedCount: affected,
		TotalMoved:    total,
		AppliedAt:     i.now().UTC(),
	}

	i.log.Info().
		Str("class", classCode).
		Str("kind", summary.Kind).
		Str("trigger", string(trigger)).
		Int("affected", affected).
		Int64("total_moved", total).
		Msg("Economic event applied")

	return summary, nil
}

// apply dispatches exhaustively over the closed effect set
func (i *Injector) apply(ctx context.Context, classCode string, effect Effect) (int, int64, error) {
	switch e := effect.(type) {
	case RealEstateChange:
		return i.applyRealEstateChange(e)
	case TaxRefund:
		return i.applyProportional(classCode, e.Percent)
	case TaxExtra:
		return i.applyProportional(classCode, -e.Percent)
	case CashBonus:
		return i.applyFlat(classCode, e.Amount)
	case Lottery:
		return i.applyLottery(classCode, e)
	default:
		return 0, 0, fmt.Errorf("unhandled event kind %T", effect)
	}
}

func (i *Injector) applyRealEstateChange(e RealEstateChange) (int, int64, error) {
	instruments, err := i.instruments.GetListedBySector("real_estate")
	if err != nil {
		return 0, 0, err
	}
	if len(instruments) == 0 {
		return 0, 0, nil
	}

	factor := 1 + e.Percent/100
	var total int64
	updates := make([]domain.Instrument, 0, len(instruments))

	for _, inst := range instruments {
		newPrice := int64(math.Floor(float64(inst.CurrentPrice)*factor + 0.5))
		if newPrice < 1 {
			newPrice = 1 // price stays positive while listed
		}
		delta := newPrice - inst.CurrentPrice
		if delta < 0 {
			total -= delta
		} else {
			total += delta
		}

		inst.CurrentPrice = newPrice
		inst.AppendPrice(newPrice)
		updates = append(updates, inst)
	}

	if err := i.instruments.UpdateBatch(updates); err != nil {
		return 0, 0, err
	}
	return len(updates), total, nil
}

// applyProportional moves a balance fraction to (positive percent) or from
// (negative percent) every account in the class
func (i *Injector) applyProportional(classCode string, percent float64) (int, int64, error) {
	accounts, err := i.accounts.GetByClass(classCode)
	if err != nil {
		return 0, 0, err
	}

	deltas := make(map[string]int64, len(accounts))
	var total int64
	for _, acc := range accounts {
		delta := int64(math.Floor(math.Abs(float64(acc.Balance))*math.Abs(percent)/100 + 0.5))
		if delta == 0 {
			continue
		}
		if percent < 0 {
			deltas[acc.ID] = -delta
		} else {
			deltas[acc.ID] = delta
		}
		total += delta
	}

	affected, err := i.accounts.BatchAdd(deltas)
	if err != nil {
		return 0, 0, err
	}
	return affected, total, nil
}

func (i *Injector) applyFlat(classCode string, amount int64) (int, int64, error) {
	accounts, err := i.accounts.GetByClass(classCode)
	if err != nil {
		return 0, 0, err
	}

	deltas := make(map[string]int64, len(accounts))
	for _, acc := range accounts {
		deltas[acc.ID] = amount
	}

	affected, err := i.accounts.BatchAdd(deltas)
	if err != nil {
		return 0, 0, err
	}
	return affected, amount * int64(affected), nil
}

func (i *Injector) applyLottery(classCode string, e Lottery) (int, int64, error) {
	accounts, err := i.accounts.GetByClass(classCode)
	if err != nil {
		return 0, 0, err
	}
	if len(accounts) == 0 {
		return 0, 0, nil
	}

	winners := e.Winners
	if winners > len(accounts) {
		winners = len(accounts)
	}

	deltas := make(map[string]int64, winners)
	for _, idx := range i.rng.Perm(len(accounts))[:winners] {
		deltas[accounts[idx].ID] = e.Payout
	}

	affected, err := i.accounts.BatchAdd(deltas)
	if err != nil {
		return 0, 0, err
	}
	return affected, e.Payout * int64(affected), nil
}
