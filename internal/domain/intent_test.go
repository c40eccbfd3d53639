package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/shopspring/decimal"
)

func TestParseIntent_Variants(t *testing.T) {
	in, err := domain.ParseIntent([]byte(`{"action":"create_market","params":{"title":"Will BTC hit 100k?","options":["Yes","No"],"endDate":"2030-12-31"}}`))
	if err != nil {
		t.Fatalf("create_market: %v", err)
	}
	cm, ok := in.(domain.CreateMarketIntent)
	if !ok {
		t.Fatalf("got %T, want CreateMarketIntent", in)
	}
	if cm.EndDate == nil || !cm.EndDate.Equal(time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("EndDate = %v, want 2030-12-31T00:00:00Z", cm.EndDate)
	}

	in, err = domain.ParseIntent([]byte(`{"action":"place_bet","params":{"marketId":"m1","option":"Yes","amount":0.1}}`))
	if err != nil {
		t.Fatalf("place_bet: %v", err)
	}
	pb := in.(domain.PlaceBetIntent)
	if !pb.Amount.Equal(decimal.RequireFromString("0.1")) || pb.MarketID != "m1" {
		t.Errorf("PlaceBetIntent = %+v", pb)
	}

	// string amounts are accepted as well
	in, err = domain.ParseIntent([]byte(`{"action":"place_bet","params":{"marketId":"m1","option":"Yes","amount":"0.25"}}`))
	if err != nil {
		t.Fatalf("place_bet string amount: %v", err)
	}
	if !in.(domain.PlaceBetIntent).Amount.Equal(decimal.RequireFromString("0.25")) {
		t.Error("string amount not parsed")
	}

	for _, raw := range []string{`{"action":"check_balance"}`, `{"action":"check_balance","params":{}}`, `{"action":"help","params":null}`} {
		if _, err := domain.ParseIntent([]byte(raw)); err != nil {
			t.Errorf("ParseIntent(%s): %v", raw, err)
		}
	}
}

func TestParseIntent_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":         `{action`,
		"missing action":   `{"params":{}}`,
		"unknown action":   `{"action":"withdraw"}`,
		"unknown top":      `{"action":"help","extra":1}`,
		"unknown param":    `{"action":"place_bet","params":{"marketId":"m","option":"Yes","amount":1,"odds":2}}`,
		"one option":       `{"action":"create_market","params":{"title":"t","options":["Yes"]}}`,
		"no title":         `{"action":"create_market","params":{"options":["Yes","No"]}}`,
		"bad end date":     `{"action":"create_market","params":{"title":"t","options":["Yes","No"],"endDate":"tomorrow"}}`,
		"zero amount":      `{"action":"place_bet","params":{"marketId":"m","option":"Yes","amount":0}}`,
		"negative amount":  `{"action":"place_bet","params":{"marketId":"m","option":"Yes","amount":-1}}`,
		"missing amount":   `{"action":"place_bet","params":{"marketId":"m","option":"Yes"}}`,
		"missing market":   `{"action":"place_bet","params":{"option":"Yes","amount":1}}`,
		"no params":        `{"action":"place_bet"}`,
		"help with params": `{"action":"help","params":{"topic":"bets"}}`,
		"trailing data":    `{"action":"help"} {"action":"help"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := domain.ParseIntent([]byte(raw))
			if !errors.Is(err, domain.ErrInvalidIntent) {
				t.Errorf("ParseIntent(%s) err = %v, want INVALID_INTENT", raw, err)
			}
			if domain.KindOf(err) != domain.KindValidation {
				t.Errorf("kind = %s, want validation", domain.KindOf(err))
			}
		})
	}
}

func TestParseIntent_MessagesHideDecoderText(t *testing.T) {
	cases := []struct{ raw, want string }{
		{`not json`, "intent is not valid JSON"},
		{`{"action":"create_market","params":{"title":"x","bogus":1}}`, "create_market params are malformed"},
		{`{"action":"place_bet","params":{"marketId":"m","option":"Yes","amount":"lots"}}`, "place_bet amount must be a number"},
		{`{"action":"help","params":{"topic":"bets"}}`, "this action takes no params"},
	}
	for _, tc := range cases {
		raw, want := tc.raw, tc.want
		_, err := domain.ParseIntent([]byte(raw))
		e := domain.AsError(err)
		if e == nil {
			t.Fatalf("ParseIntent(%s) err = %v, want *domain.Error", raw, err)
		}
		if e.Message != want {
			t.Errorf("ParseIntent(%s) message = %q, want %q", raw, e.Message, want)
		}
		if e.Err == nil {
			t.Errorf("ParseIntent(%s) dropped the decoder cause", raw)
		}
	}
}

func TestCreateMarketIntent_MarketParams(t *testing.T) {
	i := domain.CreateMarketIntent{Title: "t", Options: []string{"a", "b"}}
	p := i.MarketParams()
	if p.Title != "t" || len(p.Options) != 2 || p.EndDate != nil {
		t.Errorf("MarketParams = %+v", p)
	}
}
