// Package events applies randomized macro-economic effects to a class's
// instruments and accounts.
package events

import "fmt"

// Trigger selects how an event application was initiated. FORCE bypasses the
// per-class cooldown and is reserved for operator and test use.
type Trigger string

const (
	TriggerScheduled Trigger = "SCHEDULED"
	TriggerForce     Trigger = "FORCE"
)

// Effect is the closed set of economic event effects. The applier matches
// exhaustively on it; adding a kind without handling it is caught at
// apply time, adding one without a constructor at compile time.
type Effect interface {
	Kind() string
	isEffect()
}

// RealEstateChange scales the current price of real-estate instruments by a
// signed percentage.
type RealEstateChange struct {
	Percent float64
}

// TaxRefund credits every account in the class proportionally to its balance.
type TaxRefund struct {
	Percent float64
}

// TaxExtra levies every account in the class proportionally to its balance.
type TaxExtra struct {
	Percent float64
}

// CashBonus credits a flat amount to every account in the class.
type CashBonus struct {
	Amount int64
}

// Lottery credits a fixed payout to N randomly selected accounts.
type Lottery struct {
	Winners int
	Payout  int64
}

func (RealEstateChange) Kind() string { return "real_estate_change" }
func (TaxRefund) Kind() string        { return "tax_refund" }
func (TaxExtra) Kind() string         { return "tax_extra" }
func (CashBonus) Kind() string        { return "cash_bonus" }
func (Lottery) Kind() string          { return "lottery" }

func (RealEstateChange) isEffect() {}
func (TaxRefund) isEffect()        {}
func (TaxExtra) isEffect()         {}
func (CashBonus) isEffect()        {}
func (Lottery) isEffect()          {}

// Validate rejects out-of-range parameters before any I/O happens
func Validate(effect Effect) error {
	switch e := effect.(type) {
	case RealEstateChange:
		if e.Percent <= -100 || e.Percent > 100 {
			return fmt.Errorf("real estate change percent %.1f out of range (-100, 100]", e.Percent)
		}
	case TaxRefund:
		if e.Percent <= 0 || e.Percent > 100 {
			return fmt.Errorf("tax refund percent %.1f out of range (0, 100]", e.Percent)
		}
	case TaxExtra:
		if e.Percent <= 0 || e.Percent > 100 {
			return fmt.Errorf("tax levy percent %.1f out of range (0, 100]", e.Percent)
		}
	case CashBonus:
		if e.Amount <= 0 {
			return fmt.Errorf("cash bonus amount %d must be positive", e.Amount)
		}
	case Lottery:
		if e.Winners <= 0 {
			return fmt.Errorf("lottery winner count %d must be positive", e.Winners)
		}
		if e.Payout <= 0 {
			return fmt.Errorf("lottery payout %d must be positive", e.Payout)
		}
	default:
		return fmt.Errorf("unhandled event kind %T", effect)
	}
	return nil
}

// Params are the per-class template parameters
type Params struct {
	RealEstatePercent float64 `json:"real_estate_percent"`
	TaxRefundPercent  float64 `json:"tax_refund_percent"`
	TaxExtraPercent   float64 `json:"tax_extra_percent"`
	BonusAmount       int64   `json:"bonus_amount"`
	LotteryWinners    int     `json:"lottery_winners"`
	LotteryPayout     int64   `json:"lottery_payout"`
}

// DefaultParams are used where a class has not configured its own
var DefaultParams = Params{
	RealEstatePercent: 10,
	TaxRefundPercent:  5,
	TaxExtraPercent:   5,
	BonusAmount:       1000,
	LotteryWinners:    3,
	LotteryPayout:     5000,
}

// templateNames enumerates every known template, in a stable order
var templateNames = []string{
	"real_estate_up",
	"real_estate_down",
	"tax_refund",
	"tax_extra",
	"cash_bonus",
	"lottery",
}

// buildTemplate turns a template name and parameters into an effect
func buildTemplate(name string, p Params) (Effect, bool) {
	switch name {
	case "real_estate_up":
		return RealEstateChange{Percent: p.RealEstatePercent}, true
	case "real_estate_down":
		return RealEstateChange{Percent: -p.RealEstatePercent}, true
	case "tax_refund":
		return TaxRefund{Percent: p.TaxRefundPercent}, true
	case "tax_extra":
		return TaxExtra{Percent: p.TaxExtraPercent}, true
	case "cash_bonus":
		return CashBonus{Amount: p.BonusAmount}, true
	case "lottery":
		return Lottery{Winners: p.LotteryWinners, Payout: p.LotteryPayout}, true
	}
	return nil, false
}
