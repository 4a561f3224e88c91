// Package settlement implements the pure trade-settlement calculator.
//
// Everything in this package is deterministic and performs no I/O: the
// trade-execution path calls it synchronously immediately before the atomic
// ledger write, and scheduled jobs use it for the market index.
package settlement

import (
	"math"
	"time"

	"github.com/insushim/alchan-sub004/internal/domain"
)

const (
	// DefaultCommissionRate is charged on both buy and sell notional
	DefaultCommissionRate = 0.003

	// TaxRateOrdinary applies to realized profit on stocks and ETFs
	TaxRateOrdinary = 0.22

	// TaxRateBond is the reduced rate for bond-class instruments
	TaxRateBond = 0.154

	// DefaultLockPeriod is the minimum time a position must be held
	// after a purchase before it may be sold
	DefaultLockPeriod = time.Hour

	// IndexBase is the default market index base value
	IndexBase = 1000.0
)

// BuyCost is the cost breakdown of a buy order
type BuyCost struct {
	TotalPrice int64 `json:"total_price"`
	Commission int64 `json:"commission"`
	TotalCost  int64 `json:"total_cost"`
}

// SellResult is the settlement breakdown of a sell order
type SellResult struct {
	GrossProceeds int64 `json:"gross_proceeds"`
	Commission    int64 `json:"commission"`
	Profit        int64 `json:"profit"`
	Tax           int64 `json:"tax"`
	NetProceeds   int64 `json:"net_proceeds"`
}

// BuyValidation is the outcome of an affordability check
type BuyValidation struct {
	CanBuy      bool   `json:"can_buy"`
	Reason      string `json:"reason,omitempty"`
	MaxQuantity int64  `json:"max_quantity"`
}

// SellLock is the outcome of a holding-lock check
type SellLock struct {
	CanSell   bool          `json:"can_sell"`
	Remaining time.Duration `json:"remaining"`
}

// roundHalfUp rounds to the nearest integer currency unit, halves up.
func roundHalfUp(x float64) int64 {
	return int64(math.Floor(x + 0.5))
}

// normalizeRate substitutes the standard commission rate for a missing one.
func normalizeRate(rate float64) float64 {
	if rate <= 0 {
		return DefaultCommissionRate
	}
	return rate
}

// TaxRate selects the tax rate for a product type
func TaxRate(productType domain.ProductType) float64 {
	if productType.IsBondClass() {
		return TaxRateBond
	}
	return TaxRateOrdinary
}

// CalculateBuyCost computes the full cost of buying qty units at price.
// Non-positive price or quantity fails closed with an all-zero result.
func CalculateBuyCost(price, qty int64, commissionRate float64) BuyCost {
	if price <= 0 || qty <= 0 {
		return BuyCost{}
	}

	rate := normalizeRate(commissionRate)
	totalPrice := price * qty
	commission := roundHalfUp(float64(totalPrice) * rate)

	return BuyCost{
		TotalPrice: totalPrice,
		Commission: commission,
		TotalCost:  totalPrice + commission,
	}
}

// CalculateSellResult computes the settlement of selling qty units bought at
// buyPrice for sellPrice each. Tax applies only to positive profit, at a rate
// selected by the product type. Profit is reduced by the sell-side commission
// only; the commission paid at purchase time does not enter the tax base.
func CalculateSellResult(sellPrice, buyPrice, qty int64, commissionRate float64, productType domain.ProductType) SellResult {
	if sellPrice <= 0 || qty <= 0 {
		return SellResult{}
	}

	rate := normalizeRate(commissionRate)
	gross := sellPrice * qty
	commission := roundHalfUp(float64(gross) * rate)
	profit := gross - buyPrice*qty - commission

	var tax int64
	if profit > 0 {
		tax = roundHalfUp(float64(profit) * TaxRate(productType))
	}

	return SellResult{
		GrossProceeds: gross,
		Commission:    commission,
		Profit:        profit,
		Tax:           tax,
		NetProceeds:   gross - commission - tax,
	}
}

// ValidateBuy checks whether cash covers buying qty units at price, and how
// many units the cash could cover at most.
func ValidateBuy(cash, price, qty int64, commissionRate float64) BuyValidation {
	if price <= 0 || qty <= 0 {
		return BuyValidation{
			CanBuy: false,
			Reason: "price and quantity must be positive",
		}
	}

	rate := normalizeRate(commissionRate)
	maxQuantity := int64(math.Floor(float64(cash) / (float64(price) * (1 + rate))))
	if maxQuantity < 0 {
		maxQuantity = 0
	}

	cost := CalculateBuyCost(price, qty, rate)
	if cost.TotalCost > cash {
		return BuyValidation{
			CanBuy:      false,
			Reason:      "insufficient cash",
			MaxQuantity: maxQuantity,
		}
	}

	return BuyValidation{
		CanBuy:      true,
		MaxQuantity: maxQuantity,
	}
}

// ValidateSellLock checks the holding lock. A nil last-buy time means the
// position was never bought in this window and is unlocked.
func ValidateSellLock(lastBuyAt *time.Time, now time.Time, lockPeriod time.Duration) SellLock {
	if lockPeriod <= 0 {
		lockPeriod = DefaultLockPeriod
	}
	if lastBuyAt == nil {
		return SellLock{CanSell: true}
	}

	remaining := lockPeriod - now.Sub(*lastBuyAt)
	if remaining <= 0 {
		return SellLock{CanSell: true}
	}

	return SellLock{CanSell: false, Remaining: remaining}
}

// CalculateNewAvgPrice returns the weighted-average cost after adding addQty
// units at addPrice to an existing lot of curQty units at curAvg. The average
// is only recomputed when quantity increases.
func CalculateNewAvgPrice(curQty, curAvg, addQty, addPrice int64) int64 {
	if addQty <= 0 {
		return curAvg
	}
	if curQty < 0 {
		curQty = 0
	}

	totalCost := float64(curQty*curAvg + addQty*addPrice)
	return roundHalfUp(totalCost / float64(curQty+addQty))
}

// CalculateMarketIndex computes the market index over listed plain stocks:
// the ratio of summed current prices to summed initial prices, scaled to
// base. ETFs, bonds and de-listed instruments are excluded. With no eligible
// instrument the base is returned unchanged.
func CalculateMarketIndex(instruments []domain.Instrument, base float64) float64 {
	if base <= 0 {
		base = IndexBase
	}

	var sumCurrent, sumInitial int64
	for _, inst := range instruments {
		if !inst.Listed || inst.ProductType != domain.ProductStock {
			continue
		}
		if inst.InitialPrice <= 0 {
			continue
		}
		sumCurrent += inst.CurrentPrice
		sumInitial += inst.InitialPrice
	}

	if sumInitial == 0 {
		return base
	}

	return base * float64(sumCurrent) / float64(sumInitial)
}
