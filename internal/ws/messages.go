// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines all message structs pushed to connected clients.
package ws

import (
	"time"

	"github.com/google/uuid"

	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/evetabi/wagerbot/internal/events"
)

// MsgType identifies the kind of WS message so clients can switch on it.
type MsgType string

const (
	MsgTypeMarketCreated  MsgType = "market_created"
	MsgTypeBetPlaced      MsgType = "bet_placed"
	MsgTypeMarketClosed   MsgType = "market_closed"
	MsgTypeMarketResolved MsgType = "market_resolved"
	MsgTypeYourBet        MsgType = "your_bet"
	MsgTypeError          MsgType = "error"
)

// ──────────────────────────────────────────────────────────────────────────────
// MarketMessage: broadcast to every client on any market change.
// ──────────────────────────────────────────────────────────────────────────────

// MarketMessage carries the market state after a change. Bet placements only
// reveal the new pool, not who bet.
type MarketMessage struct {
	Type      MsgType               `json:"type"`
	MarketID  uuid.UUID             `json:"market_id"`
	Market    *domain.MarketSummary `json:"market"`
	Timestamp time.Time             `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// YourBetMessage: sent only to the bettor's own connections.
// ──────────────────────────────────────────────────────────────────────────────

// YourBetMessage confirms a bet to the user who placed it.
type YourBetMessage struct {
	Type      MsgType               `json:"type"`
	Bet       *domain.Bet           `json:"bet"`
	Market    *domain.MarketSummary `json:"market"`
	Timestamp time.Time             `json:"timestamp"`
}

// ──────────────────────────────────────────────────────────────────────────────
// ErrorMessage: sent to a single client on a non-fatal error.
// ──────────────────────────────────────────────────────────────────────────────

// ErrorMessage is sent directly to one client (not broadcast).
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}

// messagesFor maps a ledger event to its public message and, for bets, the
// private confirmation for the bettor.
func messagesFor(e events.Event) (MarketMessage, *YourBetMessage) {
	public := MarketMessage{
		Type:      MsgType(e.Type),
		MarketID:  e.MarketID,
		Market:    e.Market,
		Timestamp: e.OccurredAt,
	}
	if e.Type != events.BetPlaced || e.Bet == nil {
		return public, nil
	}
	return public, &YourBetMessage{
		Type:      MsgTypeYourBet,
		Bet:       e.Bet,
		Market:    e.Market,
		Timestamp: e.OccurredAt,
	}
}
