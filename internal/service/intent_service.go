package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/evetabi/wagerbot/internal/metrics"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces injected into IntentService
// ──────────────────────────────────────────────────────────────────────────────

// MarketLedger is what IntentService needs from LedgerService.
type MarketLedger interface {
	CreateMarket(ctx context.Context, creatorID string, p domain.CreateMarketParams) (*domain.Market, error)
	PlaceBet(ctx context.Context, userID, marketID, option string, amount decimal.Decimal) (*domain.Bet, error)
}

// BalanceReader is what IntentService needs from CustodyService.
type BalanceReader interface {
	Balance(ctx context.Context, identifier string) (domain.BalanceView, error)
}

var (
	_ MarketLedger  = (*LedgerService)(nil)
	_ BalanceReader = (*CustodyService)(nil)
)

// Outcome is the answer to one intent. It always carries a short message
// suitable for a chat reply; failures also carry the error kind and code.
type Outcome struct {
	Success bool           `json:"success"`
	Action  domain.Action  `json:"action,omitempty"`
	Kind    domain.Kind    `json:"kind,omitempty"`
	Code    domain.Code    `json:"code,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Result  any            `json:"result,omitempty"`
}

// HelpText lists what a user can ask for.
const HelpText = "I can help you create betting markets and place bets! Try:\n" +
	"- create_market: a title and at least 2 options, e.g. \"Will ETH reach $5000?\" Yes/No\n" +
	"- place_bet: a market id, an option and an amount in ETH\n" +
	"- check_balance: your wallet address and ETH balance"

const genericFailure = "Sorry, something went wrong. Please try again!"

// ──────────────────────────────────────────────────────────────────────────────
// IntentService
// ──────────────────────────────────────────────────────────────────────────────

// IntentService turns structured intents into ledger and custody calls.
type IntentService struct {
	ledger  MarketLedger
	wallets BalanceReader
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewIntentService creates an IntentService. m may be nil.
func NewIntentService(ledger MarketLedger, wallets BalanceReader, m *metrics.Metrics, logger *slog.Logger) *IntentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &IntentService{ledger: ledger, wallets: wallets, metrics: m, logger: logger}
}

// HandleRaw parses raw as an intent and handles it.
func (s *IntentService) HandleRaw(ctx context.Context, userID string, raw []byte) Outcome {
	intent, err := domain.ParseIntent(raw)
	if err != nil {
		s.metrics.Intent("invalid", "failure")
		return failure("", err)
	}
	return s.Handle(ctx, userID, intent)
}

// Handle executes intent on behalf of userID. It never panics and never
// returns an error; every failure is folded into the Outcome.
func (s *IntentService) Handle(ctx context.Context, userID string, intent domain.Intent) (out Outcome) {
	action := domain.Action("")
	if intent != nil {
		action = intent.Action()
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("intent handler panicked", "action", action, "user", userID, "panic", r)
			out = Outcome{Action: action, Message: genericFailure}
		}
		result := "success"
		if !out.Success {
			result = "failure"
		}
		s.metrics.Intent(string(action), result)
	}()

	switch in := intent.(type) {
	case domain.CreateMarketIntent:
		return s.createMarket(ctx, userID, in)
	case domain.PlaceBetIntent:
		return s.placeBet(ctx, userID, in)
	case domain.CheckBalanceIntent:
		return s.checkBalance(ctx, userID)
	case domain.HelpIntent:
		return Outcome{Success: true, Action: domain.ActionHelp, Message: HelpText}
	default:
		return failure(action, domain.Reject(domain.ErrInvalidIntent, "unsupported intent", nil))
	}
}

func (s *IntentService) createMarket(ctx context.Context, userID string, in domain.CreateMarketIntent) Outcome {
	m, err := s.ledger.CreateMarket(ctx, userID, in.MarketParams())
	if err != nil {
		return s.fail(domain.ActionCreateMarket, userID, err)
	}
	return Outcome{
		Success: true,
		Action:  domain.ActionCreateMarket,
		Message: fmt.Sprintf("Market created! %q is now live. Market ID: %s", m.Title, m.ID),
		Result:  m,
	}
}

func (s *IntentService) placeBet(ctx context.Context, userID string, in domain.PlaceBetIntent) Outcome {
	bet, err := s.ledger.PlaceBet(ctx, userID, in.MarketID, in.Option, in.Amount)
	if err != nil {
		return s.fail(domain.ActionPlaceBet, userID, err)
	}
	return Outcome{
		Success: true,
		Action:  domain.ActionPlaceBet,
		Message: fmt.Sprintf("Bet placed! %s ETH on %q for market %s. Good luck!", bet.Amount.String(), bet.Option, bet.MarketID),
		Result:  bet,
	}
}

func (s *IntentService) checkBalance(ctx context.Context, userID string) Outcome {
	view, err := s.wallets.Balance(ctx, userID)
	if err != nil {
		return s.fail(domain.ActionCheckBalance, userID, err)
	}
	return Outcome{
		Success: true,
		Action:  domain.ActionCheckBalance,
		Message: fmt.Sprintf("Your balance: %s ETH (wallet %s)", view.Balance.String(), view.Address),
		Result:  view,
	}
}

func (s *IntentService) fail(action domain.Action, userID string, err error) Outcome {
	if domain.AsError(err) == nil || domain.KindOf(err) == domain.KindTransient || domain.KindOf(err) == domain.KindIntegrity {
		s.logger.Error("intent failed", "action", action, "user", userID, "err", err)
	}
	return failure(action, err)
}

func failure(action domain.Action, err error) Outcome {
	e := domain.AsError(err)
	if e == nil {
		return Outcome{Action: action, Message: genericFailure}
	}
	return Outcome{
		Action:  action,
		Kind:    e.Kind,
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}
