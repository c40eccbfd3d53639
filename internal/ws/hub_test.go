package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/evetabi/wagerbot/internal/events"
	"github.com/evetabi/wagerbot/internal/ws"
)

var secret = []byte("hub-test-secret")

func token(t *testing.T, sub string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   sub,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func startHub(t *testing.T) (*ws.Hub, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := ws.NewHub(secret, nil, nil)
	go hub.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWs))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForClients(t *testing.T, hub *ws.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ConnectedCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("connected = %d, want %d", hub.ConnectedCount(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readType(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	typ, _ := msg["type"].(string)
	return typ, msg
}

func betEvent(user string) events.Event {
	now := time.Now().UTC()
	m := &domain.Market{
		ID:           uuid.New(),
		Title:        "Will it rain?",
		Options:      domain.StringList{"Yes", "No"},
		EndDate:      now.Add(time.Hour),
		Status:       domain.StatusActive,
		TotalPool:    decimal.RequireFromString("0.3"),
		Participants: []string{user},
	}
	bet := &domain.Bet{ID: uuid.New(), MarketID: m.ID, UserID: user, Option: "Yes", Amount: decimal.RequireFromString("0.3")}
	return events.New(events.BetPlaced, m, now).WithBet(bet)
}

func TestHub_BroadcastsAndConfirmsPrivately(t *testing.T) {
	hub, url := startHub(t)
	anon := dial(t, url)
	alice := dial(t, url+"?token="+token(t, "alice"))
	waitForClients(t, hub, 2)

	if err := hub.Publish(context.Background(), betEvent("alice")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	typ, msg := readType(t, anon)
	if typ != string(ws.MsgTypeBetPlaced) {
		t.Fatalf("anonymous got %q, want bet_placed", typ)
	}
	if _, leaked := msg["bet"]; leaked {
		t.Error("public message must not include the bet")
	}

	if typ, _ := readType(t, alice); typ != string(ws.MsgTypeBetPlaced) {
		t.Fatalf("alice first message = %q, want bet_placed", typ)
	}
	typ, msg = readType(t, alice)
	if typ != string(ws.MsgTypeYourBet) {
		t.Fatalf("alice second message = %q, want your_bet", typ)
	}
	bet, _ := msg["bet"].(map[string]any)
	if bet["user_id"] != "alice" {
		t.Errorf("your_bet user = %v", bet["user_id"])
	}

	// the anonymous client must not receive alice's confirmation
	_ = anon.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, data, err := anon.ReadMessage(); err == nil {
		t.Errorf("anonymous client received extra message %s", data)
	}
}

func TestHub_BadTokenConnectsAnonymously(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url+"?token=garbage")
	waitForClients(t, hub, 1)

	typ, msg := readType(t, conn)
	if typ != string(ws.MsgTypeError) || msg["code"] != "UNAUTHORIZED" {
		t.Fatalf("got %v, want UNAUTHORIZED error", msg)
	}

	hub.Relay(events.New(events.MarketResolved, &domain.Market{ID: uuid.New(), Status: domain.StatusResolved}, time.Now()))
	if typ, _ := readType(t, conn); typ != string(ws.MsgTypeMarketResolved) {
		t.Errorf("relayed event type = %q, want market_resolved", typ)
	}
}
