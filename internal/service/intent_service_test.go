package service_test

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/evetabi/wagerbot/internal/service"
)

func newIntents(h *harness) *service.IntentService {
	return service.NewIntentService(h.bets, h.custody, nil, quietLogger())
}

func TestHandleRaw_Help(t *testing.T) {
	h := newHarness(t)
	out := newIntents(h).HandleRaw(context.Background(), "alice", []byte(`{"action":"help"}`))
	if !out.Success || out.Action != domain.ActionHelp || out.Message != service.HelpText {
		t.Errorf("outcome = %+v", out)
	}
}

func TestHandleRaw_CreateMarketThenBet(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	intents := newIntents(h)
	h.fundUser(t, "alice", "1")

	out := intents.HandleRaw(ctx, "alice",
		[]byte(`{"action":"create_market","params":{"title":"Will ETH reach $5000?","options":["Yes","No"]}}`))
	if !out.Success {
		t.Fatalf("create_market failed: %+v", out)
	}
	m, ok := out.Result.(*domain.Market)
	if !ok {
		t.Fatalf("result = %T, want *domain.Market", out.Result)
	}
	if !strings.Contains(out.Message, m.ID.String()) {
		t.Errorf("message %q should name the market id", out.Message)
	}
	if m.CreatedBy != "alice" {
		t.Errorf("created by = %q, want alice", m.CreatedBy)
	}

	out = intents.HandleRaw(ctx, "alice",
		[]byte(`{"action":"place_bet","params":{"marketId":"`+m.ID.String()+`","option":"Yes","amount":"0.1"}}`))
	if !out.Success {
		t.Fatalf("place_bet failed: %+v", out)
	}
	if !strings.Contains(out.Message, "0.1 ETH") {
		t.Errorf("message = %q", out.Message)
	}
}

func TestHandle_InsufficientFundsCarriesShortfall(t *testing.T) {
	h := newHarness(t)
	m := h.market(t)
	h.fundUser(t, "alice", "0.01")

	out := newIntents(h).Handle(context.Background(), "alice", domain.PlaceBetIntent{
		MarketID: m.ID.String(), Option: "Yes", Amount: eth("0.5"),
	})
	if out.Success {
		t.Fatal("bet above balance should fail")
	}
	if out.Code != domain.CodeInsufficientFunds || out.Kind != domain.KindResource {
		t.Errorf("code/kind = %s/%s", out.Code, out.Kind)
	}
	if out.Details["shortfall"] != "0.49" {
		t.Errorf("shortfall = %v, want 0.49", out.Details["shortfall"])
	}
}

func TestHandle_CheckBalance(t *testing.T) {
	h := newHarness(t)
	addr := h.fundUser(t, "alice", "2.5")

	out := newIntents(h).Handle(context.Background(), "alice", domain.CheckBalanceIntent{})
	if !out.Success {
		t.Fatalf("check_balance failed: %+v", out)
	}
	view, ok := out.Result.(domain.BalanceView)
	if !ok {
		t.Fatalf("result = %T", out.Result)
	}
	if view.Address != addr || !view.Balance.Equal(eth("2.5")) {
		t.Errorf("view = %+v", view)
	}
	if !strings.Contains(out.Message, "2.5 ETH") || !strings.Contains(out.Message, addr) {
		t.Errorf("message = %q", out.Message)
	}
}

func TestHandle_CheckBalanceLedgerDown(t *testing.T) {
	h := newHarness(t)
	h.ledger.setBalanceErr(errBoom)

	out := newIntents(h).Handle(context.Background(), "alice", domain.CheckBalanceIntent{})
	if out.Success || out.Code != domain.CodeLedgerUnreachable || out.Kind != domain.KindTransient {
		t.Errorf("outcome = %+v", out)
	}
}

func TestHandleRaw_Invalid(t *testing.T) {
	h := newHarness(t)
	intents := newIntents(h)
	for _, raw := range []string{
		`not json`,
		`{"action":"fly"}`,
		`{"action":"create_market","params":{"title":"x","options":["only"]}}`,
		`{"action":"place_bet","params":{"marketId":"m","option":"Yes","amount":"0"}}`,
	} {
		out := intents.HandleRaw(context.Background(), "alice", []byte(raw))
		if out.Success || out.Code != domain.CodeInvalidIntent {
			t.Errorf("%s: outcome = %+v, want INVALID_INTENT", raw, out)
		}
	}
}

func TestHandleRaw_MalformedJSONMessageIsShort(t *testing.T) {
	h := newHarness(t)
	out := newIntents(h).HandleRaw(context.Background(), "alice", []byte(`{"action":`))
	if out.Message != "intent is not valid JSON" {
		t.Errorf("message = %q, want a short message without decoder text", out.Message)
	}
}

func TestHandle_NilIntent(t *testing.T) {
	h := newHarness(t)
	out := newIntents(h).Handle(context.Background(), "alice", nil)
	if out.Success || out.Code != domain.CodeInvalidIntent {
		t.Errorf("outcome = %+v", out)
	}
}

type panickyLedger struct{}

func (panickyLedger) CreateMarket(context.Context, string, domain.CreateMarketParams) (*domain.Market, error) {
	panic("store exploded")
}

func (panickyLedger) PlaceBet(context.Context, string, string, string, decimal.Decimal) (*domain.Bet, error) {
	panic("store exploded")
}

func TestHandle_RecoversFromPanic(t *testing.T) {
	h := newHarness(t)
	intents := service.NewIntentService(panickyLedger{}, h.custody, nil, quietLogger())

	out := intents.Handle(context.Background(), "alice", domain.CreateMarketIntent{Title: "x", Options: []string{"a", "b"}})
	if out.Success {
		t.Fatal("panicking handler reported success")
	}
	if out.Message == "" || out.Action != domain.ActionCreateMarket {
		t.Errorf("outcome = %+v", out)
	}
}
