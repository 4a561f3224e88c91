package finance

// SessionPeriod is one trading-session window as unix timestamps.
// A zero Start or End means the upstream did not supply the boundary.
type SessionPeriod struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// Contains reports whether ts falls inside the period
func (p SessionPeriod) Contains(ts int64) bool {
	return p.Start > 0 && p.End > 0 && ts >= p.Start && ts < p.End
}

// Quote is the reference quote returned by the external price provider
type Quote struct {
	Symbol        string        `json:"symbol"`
	LastPrice     float64       `json:"last_price"`
	PreviousClose float64       `json:"previous_close"`
	Currency      string        `json:"currency"`
	MarketState   string        `json:"market_state"` // upstream flag, may be empty
	Time          int64         `json:"time"`         // unix timestamp of the quote
	Pre           SessionPeriod `json:"pre"`
	Regular       SessionPeriod `json:"regular"`
	Post          SessionPeriod `json:"post"`
}

// ChangePercent computes the move versus the previous close
func (q Quote) ChangePercent() float64 {
	if q.PreviousClose == 0 {
		return 0
	}
	return (q.LastPrice - q.PreviousClose) / q.PreviousClose * 100
}
