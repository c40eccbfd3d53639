package handler

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evetabi/wagerbot/internal/domain"
)

func TestPoolsByOptionAndRisk(t *testing.T) {
	m := &domain.Market{ID: uuid.New(), Options: domain.StringList{"Yes", "No", "Maybe"}}
	bet := func(option, amount string) *domain.Bet {
		return &domain.Bet{MarketID: m.ID, Option: option, Amount: decimal.RequireFromString(amount)}
	}

	pools := poolsByOption(m, []*domain.Bet{bet("Yes", "0.8"), bet("No", "0.15"), bet("Yes", "0.05")})
	if len(pools) != 3 || pools[2].Option != "Maybe" || !pools[2].Pool.IsZero() {
		t.Fatalf("pools = %+v", pools)
	}
	if !pools[0].Pct.Equal(decimal.RequireFromString("85")) {
		t.Errorf("Yes pct = %s, want 85", pools[0].Pct)
	}
	if got := riskIndicator(pools); got != "YELLOW" {
		t.Errorf("risk = %s, want YELLOW at exactly 85%%", got)
	}

	if got := riskIndicator(poolsByOption(m, nil)); got != "GREEN" {
		t.Errorf("empty market risk = %s, want GREEN", got)
	}
	if got := riskIndicator(poolsByOption(m, []*domain.Bet{bet("No", "1")})); got != "RED" {
		t.Errorf("one-sided risk = %s, want RED", got)
	}
}
