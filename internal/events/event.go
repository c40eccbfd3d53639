// Package events carries ledger domain events to other processes and to
// connected websocket clients.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/evetabi/wagerbot/internal/domain"
)

// Type names an event on the wire and doubles as the kafka header value.
type Type string

const (
	MarketCreated  Type = "market_created"
	BetPlaced      Type = "bet_placed"
	MarketClosed   Type = "market_closed"
	MarketResolved Type = "market_resolved"
)

// Event is one committed ledger change.
type Event struct {
	ID         uuid.UUID             `json:"id"`
	Type       Type                  `json:"type"`
	MarketID   uuid.UUID             `json:"market_id"`
	Market     *domain.MarketSummary `json:"market,omitempty"`
	Bet        *domain.Bet           `json:"bet,omitempty"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// New builds an event for market m as of at.
func New(t Type, m *domain.Market, at time.Time) Event {
	summary := m.ToSummary(at)
	return Event{
		ID:         uuid.New(),
		Type:       t,
		MarketID:   m.ID,
		Market:     &summary,
		OccurredAt: at,
	}
}

// WithBet attaches the bet that caused the event.
func (e Event) WithBet(b *domain.Bet) Event {
	c := *b
	e.Bet = &c
	return e
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

// Fanout publishes to every wrapped publisher and joins their errors. One
// failing sink does not stop the others.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
