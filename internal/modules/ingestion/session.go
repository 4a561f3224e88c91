package ingestion

import (
	"strings"

	"github.com/insushim/alchan-sub004/internal/clients/finance"
	"github.com/insushim/alchan-sub004/internal/domain"
)

// DetermineSession resolves the market session of a quote. The upstream
// marketState flag wins when it maps to a known session; otherwise the quote
// timestamp is tested against the provided session boundaries. Incomplete
// data resolves to CLOSED.
func DetermineSession(q *finance.Quote) domain.MarketSession {
	switch strings.ToUpper(q.MarketState) {
	case "REGULAR":
		return domain.SessionRegular
	case "PRE":
		return domain.SessionPre
	case "POST":
		return domain.SessionPost
	case "CLOSED", "PREPRE", "POSTPOST":
		return domain.SessionClosed
	}

	if q.Time == 0 {
		return domain.SessionClosed
	}

	switch {
	case q.Regular.Contains(q.Time):
		return domain.SessionRegular
	case q.Pre.Contains(q.Time):
		return domain.SessionPre
	case q.Post.Contains(q.Time):
		return domain.SessionPost
	}

	return domain.SessionClosed
}
