package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// Intent: closed tagged union handed over by the intent extractor
// ──────────────────────────────────────────────────────────────────────────────

// Action names the variant of an Intent on the wire.
type Action string

const (
	ActionCreateMarket Action = "create_market"
	ActionPlaceBet     Action = "place_bet"
	ActionCheckBalance Action = "check_balance"
	ActionHelp         Action = "help"
)

// Intent is one of CreateMarketIntent, PlaceBetIntent, CheckBalanceIntent or
// HelpIntent. The unexported method keeps the set closed.
type Intent interface {
	Action() Action
	isIntent()
}

// CreateMarketIntent asks for a new market.
type CreateMarketIntent struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Options     []string   `json:"options"`
	EndDate     *time.Time `json:"endDate,omitempty"`
}

// PlaceBetIntent asks to stake Amount on Option of market MarketID.
type PlaceBetIntent struct {
	MarketID string          `json:"marketId"`
	Option   string          `json:"option"`
	Amount   decimal.Decimal `json:"amount"`
}

// CheckBalanceIntent asks for the caller's wallet address and balance.
type CheckBalanceIntent struct{}

// HelpIntent asks for usage instructions.
type HelpIntent struct{}

func (CreateMarketIntent) Action() Action { return ActionCreateMarket }
func (PlaceBetIntent) Action() Action     { return ActionPlaceBet }
func (CheckBalanceIntent) Action() Action { return ActionCheckBalance }
func (HelpIntent) Action() Action         { return ActionHelp }

func (CreateMarketIntent) isIntent() {}
func (PlaceBetIntent) isIntent()     {}
func (CheckBalanceIntent) isIntent() {}
func (HelpIntent) isIntent()         {}

// MarketParams converts the intent into ledger parameters.
func (i CreateMarketIntent) MarketParams() CreateMarketParams {
	return CreateMarketParams{
		Title:       i.Title,
		Description: i.Description,
		Options:     i.Options,
		EndDate:     i.EndDate,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Parsing
// ──────────────────────────────────────────────────────────────────────────────

type intentEnvelope struct {
	Action Action          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

type createMarketWire struct {
	Title       *string  `json:"title"`
	Description string   `json:"description"`
	Options     []string `json:"options"`
	EndDate     string   `json:"endDate"`
}

type placeBetWire struct {
	MarketID *string         `json:"marketId"`
	Option   *string         `json:"option"`
	Amount   json.RawMessage `json:"amount"`
}

// ParseIntent decodes {action, params} and rejects anything that is not
// exactly one known variant with its required fields. Every failure is an
// INVALID_INTENT validation error.
func ParseIntent(raw []byte) (Intent, error) {
	var env intentEnvelope
	if err := decodeStrict(raw, &env); err != nil {
		return nil, malformedIntent("intent is not valid JSON", err)
	}

	switch env.Action {
	case ActionCreateMarket:
		return parseCreateMarket(env.Params)
	case ActionPlaceBet:
		return parsePlaceBet(env.Params)
	case ActionCheckBalance:
		if err := expectNoParams(env.Params); err != nil {
			return nil, err
		}
		return CheckBalanceIntent{}, nil
	case ActionHelp:
		if err := expectNoParams(env.Params); err != nil {
			return nil, err
		}
		return HelpIntent{}, nil
	case "":
		return nil, invalidIntent("action is required")
	default:
		return nil, invalidIntent("unknown action %q", env.Action)
	}
}

func parseCreateMarket(params json.RawMessage) (Intent, error) {
	if isAbsent(params) {
		return nil, invalidIntent("create_market requires params")
	}
	var w createMarketWire
	if err := decodeStrict(params, &w); err != nil {
		return nil, malformedIntent("create_market params are malformed", err)
	}
	if w.Title == nil || strings.TrimSpace(*w.Title) == "" {
		return nil, invalidIntent("create_market requires a title")
	}
	if len(w.Options) < MinOptions {
		return nil, invalidIntent("create_market requires at least %d options", MinOptions)
	}
	out := CreateMarketIntent{
		Title:       *w.Title,
		Description: w.Description,
		Options:     w.Options,
	}
	if w.EndDate != "" {
		t, err := ParseEndDate(w.EndDate)
		if err != nil {
			return nil, invalidIntent("create_market endDate: %v", err)
		}
		out.EndDate = &t
	}
	return out, nil
}

func parsePlaceBet(params json.RawMessage) (Intent, error) {
	if isAbsent(params) {
		return nil, invalidIntent("place_bet requires params")
	}
	var w placeBetWire
	if err := decodeStrict(params, &w); err != nil {
		return nil, malformedIntent("place_bet params are malformed", err)
	}
	if w.MarketID == nil || strings.TrimSpace(*w.MarketID) == "" {
		return nil, invalidIntent("place_bet requires a marketId")
	}
	if w.Option == nil || strings.TrimSpace(*w.Option) == "" {
		return nil, invalidIntent("place_bet requires an option")
	}
	if isAbsent(w.Amount) {
		return nil, invalidIntent("place_bet requires an amount")
	}
	var amount decimal.Decimal
	if err := amount.UnmarshalJSON(w.Amount); err != nil {
		return nil, malformedIntent("place_bet amount must be a number", err)
	}
	if !amount.IsPositive() {
		return nil, invalidIntent("place_bet amount must be greater than zero")
	}
	return PlaceBetIntent{
		MarketID: strings.TrimSpace(*w.MarketID),
		Option:   *w.Option,
		Amount:   amount,
	}, nil
}

// ParseEndDate accepts RFC 3339 timestamps or bare YYYY-MM-DD dates (midnight
// UTC).
func ParseEndDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}

func expectNoParams(params json.RawMessage) error {
	if isAbsent(params) {
		return nil
	}
	var empty struct{}
	if err := decodeStrict(params, &empty); err != nil {
		return malformedIntent("this action takes no params", err)
	}
	return nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

func invalidIntent(format string, args ...any) *Error {
	return Reject(ErrInvalidIntent, fmt.Sprintf(format, args...), nil)
}

// malformedIntent keeps decoder text out of the user-facing message.
func malformedIntent(message string, cause error) *Error {
	e := Reject(ErrInvalidIntent, message, nil)
	e.Err = cause
	return e
}
