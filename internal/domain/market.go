// Package domain defines the core business entities and types for the
// custodial wallet and parimutuel betting ledger.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types & constants
// ──────────────────────────────────────────────────────────────────────────────

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	StatusActive   MarketStatus = "active"   // accepting bets
	StatusClosed   MarketStatus = "closed"   // betting over, awaiting resolution
	StatusResolved MarketStatus = "resolved" // winner recorded; terminal
)

// DefaultMarketDuration is applied when a market is created without an end date.
const DefaultMarketDuration = 7 * 24 * time.Hour

// MinOptions is the smallest number of outcomes a market may offer.
const MinOptions = 2

// CanTransition reports whether the state machine allows from -> to.
//
//	active -> closed
//	active -> resolved
//	closed -> resolved
func CanTransition(from, to MarketStatus) bool {
	switch from {
	case StatusActive:
		return to == StatusClosed || to == StatusResolved
	case StatusClosed:
		return to == StatusResolved
	}
	return false
}

// ──────────────────────────────────────────────────────────────────────────────
// StringList
// ──────────────────────────────────────────────────────────────────────────────

// StringList is an ordered list of strings stored as a JSON array in a single
// column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("domain.StringList.Scan: unsupported type %T", src)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("domain.StringList.Scan: %w", err)
	}
	*l = out
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Market
// ──────────────────────────────────────────────────────────────────────────────

// Market is a proposition with mutually exclusive named outcomes.
//
// TotalPool always equals the sum of the amounts of the bets recorded against
// the market. WinningOption is set iff Status is resolved.
type Market struct {
	ID            uuid.UUID       `json:"id"             db:"id"`
	Title         string          `json:"title"          db:"title"`
	Description   string          `json:"description"    db:"description"`
	Options       StringList      `json:"options"        db:"options"`
	EndDate       time.Time       `json:"end_date"       db:"end_date"`
	CreatedBy     string          `json:"created_by"     db:"created_by"`
	TotalPool     decimal.Decimal `json:"total_pool"     db:"total_pool"`
	Participants  []string        `json:"participants"   db:"-"`
	Status        MarketStatus    `json:"status"         db:"status"`
	WinningOption *string         `json:"winning_option" db:"winning_option"`
	CreatedAt     time.Time       `json:"created_at"     db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"     db:"updated_at"`
}

// HasOption reports whether option is one of the market's outcomes.
func (m *Market) HasOption(option string) bool {
	return slices.Contains(m.Options, option)
}

// HasParticipant reports whether userID has at least one bet on the market.
func (m *Market) HasParticipant(userID string) bool {
	return slices.Contains(m.Participants, userID)
}

// IsActive returns true while the market is accepting bets.
func (m *Market) IsActive() bool {
	return m.Status == StatusActive
}

// IsResolved returns true once a winner has been recorded.
func (m *Market) IsResolved() bool {
	return m.Status == StatusResolved
}

// IsExpired returns true when the end date is not after now.
func (m *Market) IsExpired(now time.Time) bool {
	return !now.Before(m.EndDate)
}

// TimeLeft returns the duration remaining until the end date.
// Returns 0 if the end date has already passed.
func (m *Market) TimeLeft(now time.Time) time.Duration {
	remaining := m.EndDate.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clone returns a deep copy so callers cannot mutate shared state.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	c := *m
	c.Options = slices.Clone(m.Options)
	c.Participants = slices.Clone(m.Participants)
	if m.WinningOption != nil {
		w := *m.WinningOption
		c.WinningOption = &w
	}
	return &c
}

// ──────────────────────────────────────────────────────────────────────────────
// CreateMarketParams
// ──────────────────────────────────────────────────────────────────────────────

// CreateMarketParams carries the caller-supplied fields of a new market.
type CreateMarketParams struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Options     []string   `json:"options"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

// Normalize trims whitespace from the title, description and options.
func (p CreateMarketParams) Normalize() CreateMarketParams {
	out := CreateMarketParams{
		Title:       strings.TrimSpace(p.Title),
		Description: strings.TrimSpace(p.Description),
		EndDate:     p.EndDate,
		Options:     make([]string, len(p.Options)),
	}
	for i, o := range p.Options {
		out.Options[i] = strings.TrimSpace(o)
	}
	return out
}

// Validate checks a normalized parameter set against now. It returns a
// human-readable reason for the first problem found, or "" when valid.
func (p CreateMarketParams) Validate(now time.Time) string {
	if p.Title == "" {
		return "title is required"
	}
	if len(p.Options) < MinOptions {
		return fmt.Sprintf("a market needs at least %d options", MinOptions)
	}
	seen := make(map[string]struct{}, len(p.Options))
	for _, o := range p.Options {
		if o == "" {
			return "options must not be empty"
		}
		if _, dup := seen[o]; dup {
			return fmt.Sprintf("option %q is listed more than once", o)
		}
		seen[o] = struct{}{}
	}
	if p.EndDate != nil && !p.EndDate.After(now) {
		return "end date must be in the future"
	}
	return ""
}

// ──────────────────────────────────────────────────────────────────────────────
// MarketSummary: lightweight read model for WS broadcasts and list endpoints
// ──────────────────────────────────────────────────────────────────────────────

// MarketSummary is a derived, read-only view of a Market used for broadcasting.
type MarketSummary struct {
	ID               uuid.UUID       `json:"id"`
	Title            string          `json:"title"`
	Options          []string        `json:"options"`
	Status           MarketStatus    `json:"status"`
	TotalPool        decimal.Decimal `json:"total_pool"`
	ParticipantCount int             `json:"participant_count"`
	WinningOption    *string         `json:"winning_option,omitempty"`
	EndDate          time.Time       `json:"end_date"`
	TimeLeftSec      int64           `json:"time_left_sec"`
}

// ToSummary builds a MarketSummary as of now.
func (m *Market) ToSummary(now time.Time) MarketSummary {
	return MarketSummary{
		ID:               m.ID,
		Title:            m.Title,
		Options:          slices.Clone(m.Options),
		Status:           m.Status,
		TotalPool:        m.TotalPool,
		ParticipantCount: len(m.Participants),
		WinningOption:    m.WinningOption,
		EndDate:          m.EndDate,
		TimeLeftSec:      int64(m.TimeLeft(now).Seconds()),
	}
}
