package service_test

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/evetabi/wagerbot/internal/events"
	"github.com/evetabi/wagerbot/internal/repository/memstore"
	"github.com/evetabi/wagerbot/internal/service"
)

// testMnemonic is the well-known development mnemonic; index 0 is
// 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266.
const testMnemonic = "test test test test test test test test test test test junk"

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func eth(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ──────────────────────────────────────────────────────────────────────────────
// fakeLedger: in-memory network ledger
// ──────────────────────────────────────────────────────────────────────────────

type sentTx struct {
	From, To common.Address
	Wei      *big.Int
}

type fakeLedger struct {
	mu         sync.Mutex
	balances   map[common.Address]*big.Int
	probeErr   error
	balanceErr error
	submitErr  error
	sent       []sentTx
	calls      int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: make(map[common.Address]*big.Int)}
}

func (f *fakeLedger) Probe(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probeErr
}

func (f *fakeLedger) BalanceAt(_ context.Context, addr common.Address) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.balanceErr != nil {
		return nil, f.balanceErr
	}
	if b, ok := f.balances[addr]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (f *fakeLedger) Submit(_ context.Context, key *ecdsa.PrivateKey, to common.Address, wei *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	from := crypto.PubkeyToAddress(key.PublicKey)
	f.add(from, new(big.Int).Neg(wei))
	f.add(to, wei)
	f.sent = append(f.sent, sentTx{From: from, To: to, Wei: new(big.Int).Set(wei)})
	return fmt.Sprintf("0x%064x", len(f.sent)), nil
}

func (f *fakeLedger) add(addr common.Address, wei *big.Int) {
	cur, ok := f.balances[addr]
	if !ok {
		cur = new(big.Int)
	}
	f.balances[addr] = new(big.Int).Add(cur, wei)
}

func (f *fakeLedger) fund(addr string, amount string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[common.HexToAddress(addr)] = domain.EtherToWei(eth(amount))
}

func (f *fakeLedger) balanceOf(addr string) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.balances[common.HexToAddress(addr)]; ok {
		return domain.WeiToEther(b)
	}
	return decimal.Zero
}

func (f *fakeLedger) setBalanceErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceErr = err
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ──────────────────────────────────────────────────────────────────────────────
// testClock
// ──────────────────────────────────────────────────────────────────────────────

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ──────────────────────────────────────────────────────────────────────────────
// capturePublisher
// ──────────────────────────────────────────────────────────────────────────────

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *capturePublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// ──────────────────────────────────────────────────────────────────────────────
// harness
// ──────────────────────────────────────────────────────────────────────────────

type harness struct {
	store   *memstore.Store
	ledger  *fakeLedger
	clock   *testClock
	pub     *capturePublisher
	custody *service.CustodyService
	bets    *service.LedgerService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:  memstore.New(),
		ledger: newFakeLedger(),
		clock:  newTestClock(),
		pub:    &capturePublisher{},
	}
	h.custody = openCustody(t, h.ledger, h.store, h.clock)
	h.bets = service.NewLedgerService(service.LedgerConfig{}, service.LedgerDeps{
		Store:     h.store,
		Wallets:   h.custody,
		Publisher: h.pub,
		Logger:    quietLogger(),
		Clock:     h.clock.Now,
	})
	return h
}

func openCustody(t *testing.T, ledger *fakeLedger, store service.WalletStore, clock *testClock) *service.CustodyService {
	t.Helper()
	c, err := service.OpenCustody(context.Background(), service.CustodyConfig{}, service.CustodyDeps{
		Secrets: service.StaticSecret(testMnemonic),
		Ledger:  ledger,
		Store:   store,
		Logger:  quietLogger(),
		Clock:   clock.Now,
	})
	if err != nil {
		t.Fatalf("OpenCustody: %v", err)
	}
	return c
}

// fundUser gives identifier's wallet amount ETH on the fake network.
func (h *harness) fundUser(t *testing.T, identifier, amount string) string {
	t.Helper()
	w, err := h.custody.GetOrCreateWallet(context.Background(), identifier)
	if err != nil {
		t.Fatalf("GetOrCreateWallet(%q): %v", identifier, err)
	}
	h.ledger.fund(w.Address, amount)
	return w.Address
}

func (h *harness) market(t *testing.T, options ...string) *domain.Market {
	t.Helper()
	if len(options) == 0 {
		options = []string{"Yes", "No"}
	}
	m, err := h.bets.CreateMarket(context.Background(), "creator", domain.CreateMarketParams{
		Title:   "Will BTC reach $100k?",
		Options: options,
	})
	if err != nil {
		t.Fatalf("CreateMarket: %v", err)
	}
	return m
}

// wantCode fails unless err carries code.
func wantCode(t *testing.T, err error, code domain.Code) {
	t.Helper()
	e := domain.AsError(err)
	if e == nil {
		t.Fatalf("err = %v, want code %s", err, code)
	}
	if e.Code != code {
		t.Fatalf("code = %s (%v), want %s", e.Code, err, code)
	}
}

var errBoom = errors.New("boom")
