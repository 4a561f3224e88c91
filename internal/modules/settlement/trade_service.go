package settlement

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/insushim/alchan-sub004/internal/database"
	"github.com/insushim/alchan-sub004/internal/domain"
	"github.com/insushim/alchan-sub004/internal/modules/market"
)

var (
	// ErrInstrumentNotFound means the requested instrument does not exist
	ErrInstrumentNotFound = errors.New("instrument not found")

	// ErrNotListed means the instrument is delisted and cannot trade
	ErrNotListed = errors.New("instrument is not listed")

	// ErrInsufficientFunds means the account cannot cover price plus commission
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientQuantity means the account holds fewer shares than requested
	ErrInsufficientQuantity = errors.New("insufficient quantity")

	// ErrHoldingLocked means the position was bought too recently to sell
	ErrHoldingLocked = errors.New("holding lock active")

	// ErrInvalidQuantity means quantity must be a positive integer
	ErrInvalidQuantity = errors.New("quantity must be positive")
)

// BuyReceipt is returned to the caller after a successful purchase
type BuyReceipt struct {
	InstrumentID string `json:"instrument_id"`
	Quantity     int64  `json:"quantity"`
	Price        int64  `json:"price"`
	TotalPrice   int64  `json:"total_price"`
	Commission   int64  `json:"commission"`
	TotalCost    int64  `json:"total_cost"`
	NewBalance   int64  `json:"new_balance"`
	NewQuantity  int64  `json:"new_quantity"`
	NewAvgPrice  int64  `json:"new_avg_price"`
}

// SellReceipt is returned to the caller after a successful sale
type SellReceipt struct {
	InstrumentID  string `json:"instrument_id"`
	Quantity      int64  `json:"quantity"`
	Price         int64  `json:"price"`
	GrossProceeds int64  `json:"gross_proceeds"`
	Commission    int64  `json:"commission"`
	Profit        int64  `json:"profit"`
	Tax           int64  `json:"tax"`
	NetProceeds   int64  `json:"net_proceeds"`
	NewBalance    int64  `json:"new_balance"`
	NewQuantity   int64  `json:"new_quantity"`
}

// TradeService settles buy and sell orders against the ledger.
//
// All checks run inside the same transaction that mutates balances and
// positions, so a concurrent order cannot spend the same cash twice.
type TradeService struct {
	db             *sql.DB
	instruments    *market.InstrumentRepository
	accounts       *market.AccountRepository
	positions      *market.PositionRepository
	commissionRate float64
	lockPeriod     time.Duration
	now            func() time.Time
	log            zerolog.Logger
}

// NewTradeService creates a new trade settlement service
func NewTradeService(
	db *sql.DB,
	instruments *market.InstrumentRepository,
	accounts *market.AccountRepository,
	positions *market.PositionRepository,
	log zerolog.Logger,
) *TradeService {
	return &TradeService{
		db:             db,
		instruments:    instruments,
		accounts:       accounts,
		positions:      positions,
		commissionRate: DefaultCommissionRate,
		lockPeriod:     DefaultLockPeriod,
		now:            time.Now,
		log:            log.With().Str("service", "trade").Logger(),
	}
}

// Buy purchases qty shares at the current market price
func (s *TradeService) Buy(accountID, instrumentID string, qty int64) (*BuyReceipt, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	var receipt *BuyReceipt
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		inst, err := s.getTradableInstrument(tx, instrumentID)
		if err != nil {
			return err
		}

		var balance int64
		if err := tx.QueryRow(`SELECT balance FROM accounts WHERE id = ?`, accountID).Scan(&balance); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("account %s not found", accountID)
			}
			return err
		}

		cost := CalculateBuyCost(inst.CurrentPrice, qty, s.commissionRate)
		if cost.TotalCost > balance {
			return ErrInsufficientFunds
		}

		pos, err := s.positions.GetTx(tx, accountID, instrumentID)
		if err != nil {
			return err
		}

		now := s.now()
		var curQty, curAvg int64
		if pos != nil {
			curQty = pos.Quantity
			curAvg = pos.AvgPrice
		}
		newAvg := CalculateNewAvgPrice(curQty, curAvg, qty, inst.CurrentPrice)

		if err := s.positions.UpsertTx(tx, domain.Position{
			AccountID:    accountID,
			InstrumentID: instrumentID,
			Quantity:     curQty + qty,
			AvgPrice:     newAvg,
			LastBuyAt:    &now,
		}); err != nil {
			return err
		}

		if err := s.accounts.AtomicAddTx(tx, accountID, -cost.TotalCost); err != nil {
			return err
		}

		if err := s.instruments.AddVolumeTx(tx, instrumentID, qty, 0); err != nil {
			return err
		}
		if curQty == 0 {
			if err := s.refreshHolderCount(tx, instrumentID); err != nil {
				return err
			}
		}

		receipt = &BuyReceipt{
			InstrumentID: instrumentID,
			Quantity:     qty,
			Price:        inst.CurrentPrice,
			TotalPrice:   cost.TotalPrice,
			Commission:   cost.Commission,
			TotalCost:    cost.TotalCost,
			NewBalance:   balance - cost.TotalCost,
			NewQuantity:  curQty + qty,
			NewAvgPrice:  newAvg,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account", accountID).
		Str("instrument", instrumentID).
		Int64("quantity", qty).
		Int64("total_cost", receipt.TotalCost).
		Msg("Buy settled")

	return receipt, nil
}

// Sell sells qty shares at the current market price
func (s *TradeService) Sell(accountID, instrumentID string, qty int64) (*SellReceipt, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	var receipt *SellReceipt
	err := database.WithTransaction(s.db, func(tx *sql.Tx) error {
		inst, err := s.getTradableInstrument(tx, instrumentID)
		if err != nil {
			return err
		}

		pos, err := s.positions.GetTx(tx, accountID, instrumentID)
		if err != nil {
			return err
		}
		if pos == nil || pos.Quantity < qty {
			return ErrInsufficientQuantity
		}

		lock := ValidateSellLock(pos.LastBuyAt, s.now(), s.lockPeriod)
		if !lock.CanSell {
			return fmt.Errorf("%w: %s remaining", ErrHoldingLocked, lock.Remaining.Round(time.Second))
		}

		result := CalculateSellResult(inst.CurrentPrice, pos.AvgPrice, qty, s.commissionRate, inst.ProductType)

		remaining := pos.Quantity - qty
		if remaining == 0 {
			if err := s.positions.DeleteTx(tx, accountID, instrumentID); err != nil {
				return err
			}
		} else {
			pos.Quantity = remaining
			if err := s.positions.UpsertTx(tx, *pos); err != nil {
				return err
			}
		}

		if err := s.accounts.AtomicAddTx(tx, accountID, result.NetProceeds); err != nil {
			return err
		}

		if err := s.instruments.AddVolumeTx(tx, instrumentID, 0, qty); err != nil {
			return err
		}
		if remaining == 0 {
			if err := s.refreshHolderCount(tx, instrumentID); err != nil {
				return err
			}
		}

		var balance int64
		if err := tx.QueryRow(`SELECT balance FROM accounts WHERE id = ?`, accountID).Scan(&balance); err != nil {
			return err
		}

		receipt = &SellReceipt{
			InstrumentID:  instrumentID,
			Quantity:      qty,
			Price:         inst.CurrentPrice,
			GrossProceeds: result.GrossProceeds,
			Commission:    result.Commission,
			Profit:        result.Profit,
			Tax:           result.Tax,
			NetProceeds:   result.NetProceeds,
			NewBalance:    balance,
			NewQuantity:   remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account", accountID).
		Str("instrument", instrumentID).
		Int64("quantity", qty).
		Int64("net_proceeds", receipt.NetProceeds).
		Msg("Sell settled")

	return receipt, nil
}

// getTradableInstrument loads price data inside the settlement
// transaction so a concurrent price update cannot split the read
func (s *TradeService) getTradableInstrument(tx *sql.Tx, instrumentID string) (*domain.Instrument, error) {
	var inst domain.Instrument
	var listed int
	err := tx.QueryRow(`
		SELECT id, current_price, product_type, listed
		FROM instruments WHERE id = ?
	`, instrumentID).Scan(&inst.ID, &inst.CurrentPrice, &inst.ProductType, &listed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInstrumentNotFound
	}
	if err != nil {
		return nil, err
	}
	if listed == 0 {
		return nil, ErrNotListed
	}
	return &inst, nil
}

func (s *TradeService) refreshHolderCount(tx *sql.Tx, instrumentID string) error {
	count, err := s.positions.CountHoldersTx(tx, instrumentID)
	if err != nil {
		return err
	}
	return s.instruments.SetHolderCountTx(tx, instrumentID, count)
}
