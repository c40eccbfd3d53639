package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Bet
// ──────────────────────────────────────────────────────────────────────────────

// Bet represents a single user wager inside a Market. Bets are immutable once
// recorded; Option was a member of the market's options at creation time.
type Bet struct {
	ID        uuid.UUID       `json:"id"         db:"id"`
	MarketID  uuid.UUID       `json:"market_id"  db:"market_id"`
	UserID    string          `json:"user_id"    db:"user_id"`
	Option    string          `json:"option"     db:"option"`
	Amount    decimal.Decimal `json:"amount"     db:"amount"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// SumAmounts returns the total staked across bets.
func SumAmounts(bets []*Bet) decimal.Decimal {
	total := decimal.Zero
	for _, b := range bets {
		total = total.Add(b.Amount)
	}
	return total
}
