package events

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insushim/alchan-sub004/internal/database"
	"github.com/insushim/alchan-sub004/internal/domain"
	"github.com/insushim/alchan-sub004/internal/modules/market"
)

type injectorFixture struct {
	injector *Injector
	settings *SettingsRepository
	accounts *market.AccountRepository
	inst     *market.InstrumentRepository
}

func setupInjector(t *testing.T) *injectorFixture {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate())

	log := zerolog.Nop()
	settings := NewSettingsRepository(db.Conn(), log)
	instruments := market.NewInstrumentRepository(db.Conn(), log)
	accounts := market.NewAccountRepository(db.Conn(), log)

	injector := NewInjector(settings, instruments, accounts, time.UTC, rand.New(rand.NewSource(1)), log)
	injector.now = func() time.Time {
		return time.Date(2026, 3, 2, 9, 5, 0, 0, time.UTC)
	}

	return &injectorFixture{
		injector: injector,
		settings: settings,
		accounts: accounts,
		inst:     instruments,
	}
}

func (f *injectorFixture) seedAccounts(t *testing.T, classCode string, balances ...int64) {
	t.Helper()
	for i, balance := range balances {
		require.NoError(t, f.accounts.Create(domain.Account{
			ID:        classCode + "-acc-" + string(rune('a'+i)),
			ClassCode: classCode,
			Holder:    "student",
			Balance:   balance,
		}))
	}
}

// pinTemplate restricts the class to a single template so the random pick
// is deterministic
func (f *injectorFixture) pinTemplate(t *testing.T, classCode, template string, params Params) {
	t.Helper()
	require.NoError(t, f.settings.Upsert(Settings{
		ClassCode: classCode,
		Enabled:   []string{template},
		Params:    params,
	}))
}

func TestTriggerClassEvent_CooldownBlocksSecondRun(t *testing.T) {
	f := setupInjector(t)
	f.seedAccounts(t, "3-2", 10000, 20000)
	f.pinTemplate(t, "3-2", "cash_bonus", DefaultParams)

	first, err := f.injector.TriggerClassEvent(context.Background(), "3-2", TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, "cash_bonus", first.Kind)
	assert.Equal(t, 2, first.AffectedCount)

	_, err = f.injector.TriggerClassEvent(context.Background(), "3-2", TriggerScheduled)
	assert.ErrorIs(t, err, ErrCooldownActive)

	// Balances moved exactly once
	acc, err := f.accounts.GetByID("3-2-acc-a")
	require.NoError(t, err)
	assert.Equal(t, int64(11000), acc.Balance)
}

func TestTriggerClassEvent_ForceBypassesCooldown(t *testing.T) {
	f := setupInjector(t)
	f.seedAccounts(t, "3-2", 10000)
	f.pinTemplate(t, "3-2", "cash_bonus", DefaultParams)

	_, err := f.injector.TriggerClassEvent(context.Background(), "3-2", TriggerScheduled)
	require.NoError(t, err)

	summary, err := f.injector.TriggerClassEvent(context.Background(), "3-2", TriggerForce)
	require.NoError(t, err)
	assert.Equal(t, TriggerForce, summary.Trigger)

	acc, err := f.accounts.GetByID("3-2-acc-a")
	require.NoError(t, err)
	assert.Equal(t, int64(12000), acc.Balance, "Bonus applied twice via force")
}

func TestTriggerClassEvent_CooldownIsPerClass(t *testing.T) {
	f := setupInjector(t)
	f.seedAccounts(t, "3-2", 10000)
	f.seedAccounts(t, "5-1", 10000)
	f.pinTemplate(t, "3-2", "cash_bonus", DefaultParams)
	f.pinTemplate(t, "5-1", "cash_bonus", DefaultParams)

	_, err := f.injector.TriggerClassEvent(context.Background(), "3-2", TriggerScheduled)
	require.NoError(t, err)

	_, err = f.injector.TriggerClassEvent(context.Background(), "5-1", TriggerScheduled)
	assert.NoError(t, err, "Another class is not affected by the first class's cooldown")
}

func TestTriggerClassEvent_ProportionalRefund(t *testing.T) {
	f := setupInjector(t)
	f.seedAccounts(t, "3-2", 10000, 33333)
	f.pinTemplate(t, "3-2", "tax_refund", Params{TaxRefundPercent: 5})

	summary, err := f.injector.TriggerClassEvent(context.Background(), "3-2", TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.AffectedCount)
	// 500 + 1667 (33333 * 5% = 1666.65, rounded half-up)
	assert.Equal(t, int64(2167), summary.TotalMoved)

	a, err := f.accounts.GetByID("3-2-acc-a")
	require.NoError(t, err)
	assert.Equal(t, int64(10500), a.Balance)

	b, err := f.accounts.GetByID("3-2-acc-b")
	require.NoError(t, err)
	assert.Equal(t, int64(35000), b.Balance)
}

func TestTriggerClassEvent_TaxLevyDebits(t *testing.T) {
	f := setupInjector(t)
	f.seedAccounts(t, "3-2", 10000)
	f.pinTemplate(t, "3-2", "tax_extra", Params{TaxExtraPercent: 5})

	summary, err := f.injector.TriggerClassEvent(context.Background(), "3-2", TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, int64(500), summary.TotalMoved)

	acc, err := f.accounts.GetByID("3-2-acc-a")
	require.NoError(t, err)
	assert.Equal(t, int64(9500), acc.Balance)
}

func TestTriggerClassEvent_LotteryClampsWinners(t *testing.T) {
	f := setupInjector(t)
	f.seedAccounts(t, "3-2", 0, 0)
	f.pinTemplate(t, "3-2", "lottery", Params{LotteryWinners: 5, LotteryPayout: 5000})

	summary, err := f.injector.TriggerClassEvent(context.Background(), "3-2", TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.AffectedCount, "Winner count clamps to class size")
	assert.Equal(t, int64(10000), summary.TotalMoved)

	accounts, err := f.accounts.GetByClass("3-2")
	require.NoError(t, err)
	for _, acc := range accounts {
		assert.Equal(t, int64(5000), acc.Balance)
	}
}

func TestTriggerClassEvent_RealEstateChange(t *testing.T) {
	f := setupInjector(t)
	f.seedAccounts(t, "3-2", 10000)
	f.pinTemplate(t, "3-2", "real_estate_down", Params{RealEstatePercent: 10})

	estate := market.NewInstrument("estate-1", "분당 아파트", 100001, "real_estate", domain.ProductRealEstate)
	require.NoError(t, f.inst.Create(estate))
	plain := market.NewInstrument("stock-1", "삼성전자", 70000, "tech", domain.ProductStock)
	require.NoError(t, f.inst.Create(plain))

	summary, err := f.injector.TriggerClassEvent(context.Background(), "3-2", TriggerScheduled)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.AffectedCount, "Only real-estate instruments are touched")

	got, err := f.inst.GetByID("estate-1")
	require.NoError(t, err)
	// 100001 * 0.9 = 90000.9, rounded half-up
	assert.Equal(t, int64(90001), got.CurrentPrice)
	assert.Equal(t, int64(90001), got.PriceHistory[len(got.PriceHistory)-1])

	untouched, err := f.inst.GetByID("stock-1")
	require.NoError(t, err)
	assert.Equal(t, int64(70000), untouched.CurrentPrice)
}

func TestTriggerClassEvent_InvalidParamsRejected(t *testing.T) {
	f := setupInjector(t)
	f.seedAccounts(t, "3-2", 10000)
	f.pinTemplate(t, "3-2", "cash_bonus", Params{BonusAmount: -5})

	_, err := f.injector.TriggerClassEvent(context.Background(), "3-2", TriggerScheduled)
	assert.Error(t, err)
}

func TestValidate_Ranges(t *testing.T) {
	tests := []struct {
		name    string
		effect  Effect
		wantErr bool
	}{
		{"valid real estate up", RealEstateChange{Percent: 10}, false},
		{"valid real estate down", RealEstateChange{Percent: -10}, false},
		{"real estate wipeout", RealEstateChange{Percent: -100}, true},
		{"zero refund", TaxRefund{Percent: 0}, true},
		{"refund over 100", TaxRefund{Percent: 101}, true},
		{"valid levy", TaxExtra{Percent: 5}, false},
		{"zero bonus", CashBonus{Amount: 0}, true},
		{"valid lottery", Lottery{Winners: 3, Payout: 5000}, false},
		{"zero winners", Lottery{Winners: 0, Payout: 5000}, true},
		{"zero payout", Lottery{Winners: 3, Payout: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.effect)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSettings_Templates(t *testing.T) {
	all := Settings{Params: DefaultParams}.Templates()
	assert.Len(t, all, len(templateNames), "Empty enabled list enables everything")

	one := Settings{Enabled: []string{"lottery"}, Params: DefaultParams}.Templates()
	require.Len(t, one, 1)
	assert.Equal(t, "lottery", one[0].Kind())

	unknown := Settings{Enabled: []string{"no_such_template"}, Params: DefaultParams}.Templates()
	assert.Empty(t, unknown, "Unknown template names are dropped")
}
