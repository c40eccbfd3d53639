package service

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evetabi/wagerbot/internal/chain"
	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/evetabi/wagerbot/internal/repository"
	"github.com/evetabi/wagerbot/internal/repository/memstore"
)

// ──────────────────────────────────────────────────────────────────────────────
// Store ports: implemented by repository.SQLStore and memstore.Store
// ──────────────────────────────────────────────────────────────────────────────

// WalletStore persists the identifier -> derivation index assignment.
type WalletStore interface {
	GetWallet(ctx context.Context, identifier string) (*domain.WalletRecord, error)
	CreateWallet(ctx context.Context, w *domain.WalletRecord) error
	UpdateCachedBalance(ctx context.Context, identifier string, balance decimal.Decimal, at time.Time) error
}

// MarketStore persists markets and their status transitions.
type MarketStore interface {
	CreateMarket(ctx context.Context, m *domain.Market) error
	GetMarket(ctx context.Context, id uuid.UUID) (*domain.Market, error)
	ListMarketsByStatus(ctx context.Context, status domain.MarketStatus) ([]*domain.Market, error)
	UpdateMarketStatus(ctx context.Context, id uuid.UUID, from, to domain.MarketStatus, winningOption *string, at time.Time) (*domain.Market, error)
}

// BetStore records bets. RecordBet must write the bet, the pool increment and
// the participant in one atomic step.
type BetStore interface {
	RecordBet(ctx context.Context, b *domain.Bet) (*domain.Market, error)
	ListBetsByUser(ctx context.Context, userID string) ([]*domain.Bet, error)
	ListBetsByMarket(ctx context.Context, marketID uuid.UUID) ([]*domain.Bet, error)
}

// LedgerStore is what LedgerService needs.
type LedgerStore interface {
	MarketStore
	BetStore
}

// Store is the full persistence surface.
type Store interface {
	WalletStore
	LedgerStore
}

var (
	_ Store = (*repository.SQLStore)(nil)
	_ Store = (*memstore.Store)(nil)
)

// ──────────────────────────────────────────────────────────────────────────────
// Network ledger + secrets
// ──────────────────────────────────────────────────────────────────────────────

// NetworkLedger is the remote chain as seen by custody.
type NetworkLedger interface {
	Probe(ctx context.Context) error
	BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error)
	Submit(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, wei *big.Int) (string, error)
}

var _ NetworkLedger = (*chain.Ledger)(nil)

// SecretSource yields the BIP39 master mnemonic.
type SecretSource interface {
	MasterSecret(ctx context.Context) (string, error)
}

// SecretFunc adapts a function to SecretSource.
type SecretFunc func(ctx context.Context) (string, error)

func (f SecretFunc) MasterSecret(ctx context.Context) (string, error) { return f(ctx) }

// StaticSecret returns a SecretSource that always yields mnemonic.
func StaticSecret(mnemonic string) SecretSource {
	return SecretFunc(func(context.Context) (string, error) { return mnemonic, nil })
}

// ──────────────────────────────────────────────────────────────────────────────
// Clock
// ──────────────────────────────────────────────────────────────────────────────

// Clock returns the current time. Services truncate to microseconds so values
// survive a postgres round trip unchanged.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
