package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/insushim/alchan-sub004/internal/clients/finance"
	"github.com/insushim/alchan-sub004/internal/domain"
)

func TestDetermineSession(t *testing.T) {
	periods := struct {
		pre     finance.SessionPeriod
		regular finance.SessionPeriod
		post    finance.SessionPeriod
	}{
		pre:     finance.SessionPeriod{Start: 1000, End: 2000},
		regular: finance.SessionPeriod{Start: 2000, End: 3000},
		post:    finance.SessionPeriod{Start: 3000, End: 4000},
	}

	tests := []struct {
		name  string
		quote finance.Quote
		want  domain.MarketSession
	}{
		{"upstream regular wins", finance.Quote{MarketState: "REGULAR"}, domain.SessionRegular},
		{"upstream pre wins", finance.Quote{MarketState: "PRE"}, domain.SessionPre},
		{"upstream post wins", finance.Quote{MarketState: "POST"}, domain.SessionPost},
		{"upstream closed wins", finance.Quote{MarketState: "CLOSED"}, domain.SessionClosed},
		{"prepre maps to closed", finance.Quote{MarketState: "PREPRE"}, domain.SessionClosed},
		{"postpost maps to closed", finance.Quote{MarketState: "POSTPOST"}, domain.SessionClosed},
		{"lowercase state accepted", finance.Quote{MarketState: "regular"}, domain.SessionRegular},
		{
			"timestamp in regular range",
			finance.Quote{Time: 2500, Pre: periods.pre, Regular: periods.regular, Post: periods.post},
			domain.SessionRegular,
		},
		{
			"timestamp in pre range",
			finance.Quote{Time: 1500, Pre: periods.pre, Regular: periods.regular, Post: periods.post},
			domain.SessionPre,
		},
		{
			"timestamp in post range",
			finance.Quote{Time: 3500, Pre: periods.pre, Regular: periods.regular, Post: periods.post},
			domain.SessionPost,
		},
		{
			"timestamp outside every range",
			finance.Quote{Time: 9000, Pre: periods.pre, Regular: periods.regular, Post: periods.post},
			domain.SessionClosed,
		},
		{"no state and no timestamp", finance.Quote{}, domain.SessionClosed},
		{
			"unknown state falls back to ranges",
			finance.Quote{MarketState: "HALTED", Time: 2500, Regular: periods.regular},
			domain.SessionRegular,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetermineSession(&tt.quote))
		})
	}
}
