package domain

import "time"

// Currency represents a currency code
type Currency string

const (
	CurrencyKRW Currency = "KRW"
	CurrencyUSD Currency = "USD"
)

// ProductType classifies an instrument for tax and index purposes
type ProductType string

const (
	ProductStock      ProductType = "stock"
	ProductETF        ProductType = "etf"
	ProductBond       ProductType = "bond"
	ProductRealEstate ProductType = "real_estate"
)

// IsBondClass reports whether the instrument is taxed at the bond rate
func (p ProductType) IsBondClass() bool {
	return p == ProductBond
}

// MarketSession describes the trading session a quote was taken in
type MarketSession string

const (
	SessionRegular MarketSession = "REGULAR"
	SessionPre     MarketSession = "PRE"
	SessionPost    MarketSession = "POST"
	SessionClosed  MarketSession = "CLOSED"
)

// PriceHistoryLimit bounds the per-instrument price history
const PriceHistoryLimit = 20

// MinRelistRatio fixes the minimum re-listing price at creation time
const MinRelistRatio = 0.3

// ExternalData is the nested block holding the latest upstream quote
type ExternalData struct {
	LastPrice     float64       `json:"last_price" msgpack:"last_price"`
	PreviousClose float64       `json:"previous_close" msgpack:"previous_close"`
	ChangePercent float64       `json:"change_percent" msgpack:"change_percent"`
	Currency      Currency      `json:"currency" msgpack:"currency"`
	Session       MarketSession `json:"session" msgpack:"session"`
	FetchedAt     time.Time     `json:"fetched_at" msgpack:"fetched_at"`
}

// Instrument is a tradable asset in the simulated market
type Instrument struct {
	ID             string       `json:"id"`
	Name           string       `json:"name"`
	CurrentPrice   int64        `json:"current_price"`
	InitialPrice   int64        `json:"initial_price"`
	MinRelistPrice int64        `json:"min_relist_price"`
	Listed         bool         `json:"listed"`
	Manual         bool         `json:"manual"`
	UsesRealData   bool         `json:"uses_real_data"`
	ExternalSymbol string       `json:"external_symbol"`
	Sector         string       `json:"sector"`
	ProductType    ProductType  `json:"product_type"`
	Volatility     float64      `json:"volatility"`
	PriceHistory   []int64      `json:"price_history"`
	HolderCount    int          `json:"holder_count"`
	BuyVolume      int64        `json:"buy_volume"`
	SellVolume     int64        `json:"sell_volume"`
	External       ExternalData `json:"external"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// AppendPrice pushes a price sample onto the bounded history,
// dropping the oldest sample first.
func (i *Instrument) AppendPrice(price int64) {
	i.PriceHistory = append(i.PriceHistory, price)
	if len(i.PriceHistory) > PriceHistoryLimit {
		i.PriceHistory = i.PriceHistory[len(i.PriceHistory)-PriceHistoryLimit:]
	}
}

// ExchangeRate is the singleton USD/KRW reference rate
type ExchangeRate struct {
	Rate      float64   `json:"rate"`
	UpdatedAt time.Time `json:"updated_at"`
	Source    string    `json:"source"`
}

// Account is a student cash account within a class
type Account struct {
	ID        string    `json:"id"`
	ClassCode string    `json:"class_code"`
	Holder    string    `json:"holder"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Position is a per-account holding of a single instrument
type Position struct {
	AccountID    string     `json:"account_id"`
	InstrumentID string     `json:"instrument_id"`
	Quantity     int64      `json:"quantity"`
	AvgPrice     int64      `json:"avg_price"`
	LastBuyAt    *time.Time `json:"last_buy_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SnapshotInstrument is the read-optimized projection of one instrument
type SnapshotInstrument struct {
	ID            string        `msgpack:"id" json:"id"`
	Name          string        `msgpack:"name" json:"name"`
	CurrentPrice  int64         `msgpack:"current_price" json:"current_price"`
	InitialPrice  int64         `msgpack:"initial_price" json:"initial_price"`
	Sector        string        `msgpack:"sector" json:"sector"`
	ProductType   ProductType   `msgpack:"product_type" json:"product_type"`
	Volatility    float64       `msgpack:"volatility" json:"volatility"`
	PriceHistory  []int64       `msgpack:"price_history" json:"price_history"`
	HolderCount   int           `msgpack:"holder_count" json:"holder_count"`
	ChangePercent float64       `msgpack:"change_percent" json:"change_percent"`
	Session       MarketSession `msgpack:"session" json:"session"`
}

// MarketSnapshot is the single materialized view over all listed instruments.
// Derived data - rebuildable at any time from instrument records.
type MarketSnapshot struct {
	Instruments []SnapshotInstrument `msgpack:"instruments" json:"instruments"`
	Count       int                  `msgpack:"count" json:"count"`
	RefreshedAt time.Time            `msgpack:"refreshed_at" json:"refreshed_at"`
}
