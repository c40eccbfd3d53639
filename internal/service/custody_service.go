package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/evetabi/wagerbot/internal/hdkey"
	"github.com/evetabi/wagerbot/internal/metrics"
	"github.com/evetabi/wagerbot/internal/telemetry"
)

// ──────────────────────────────────────────────────────────────────────────────
// Configuration
// ──────────────────────────────────────────────────────────────────────────────

// CustodyConfig tunes CustodyService. Zero values select the defaults below.
type CustodyConfig struct {
	Passphrase string        // optional BIP39 passphrase
	OpTimeout  time.Duration // per network call
	CacheSize  int
	CacheTTL   time.Duration // 0 keeps entries until evicted by size
	MaxProbe   int           // indices tried when the natural one is taken
}

const (
	defaultOpTimeout = 10 * time.Second
	defaultCacheSize = 10_000
	defaultMaxProbe  = 16
)

func (c CustodyConfig) withDefaults() CustodyConfig {
	if c.OpTimeout <= 0 {
		c.OpTimeout = defaultOpTimeout
	}
	if c.CacheSize <= 0 {
		c.CacheSize = defaultCacheSize
	}
	if c.MaxProbe <= 0 {
		c.MaxProbe = defaultMaxProbe
	}
	return c
}

// CustodyDeps are the collaborators of CustodyService. Metrics, Logger and
// Clock are optional.
type CustodyDeps struct {
	Secrets SecretSource
	Ledger  NetworkLedger
	Store   WalletStore
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Clock   Clock
}

// masterLockKey cannot collide with an identifier lock: those are prefixed.
const masterLockKey = "master"

// ──────────────────────────────────────────────────────────────────────────────
// CustodyService
// ──────────────────────────────────────────────────────────────────────────────

// CustodyService maps identifiers to deterministic wallets derived from one
// master secret and moves funds out of them. Private keys never leave it.
type CustodyService struct {
	deriver *hdkey.Deriver
	master  hdkey.Key
	ledger  NetworkLedger
	store   WalletStore
	cfg     CustodyConfig

	cache *expirable.LRU[string, *domain.WalletRecord]
	group singleflight.Group
	locks *keyLock

	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     Clock
}

// OpenCustody loads the master secret, prepares the derivation tree and probes
// the network ledger once. Any failure is CUSTODY_UNAVAILABLE; the caller is
// expected to abort startup.
func OpenCustody(ctx context.Context, cfg CustodyConfig, deps CustodyDeps) (*CustodyService, error) {
	cfg = cfg.withDefaults()
	if deps.Secrets == nil || deps.Ledger == nil || deps.Store == nil {
		return nil, domain.Reject(domain.ErrCustodyUnavailable, "custody needs a secret source, a network ledger and a store", nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = systemClock
	}

	// ── 1. Master secret ─────────────────────────────────────────────────────
	secret, err := deps.Secrets.MasterSecret(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.ErrCustodyUnavailable, fmt.Errorf("custody_service.Open: read secret: %w", err))
	}
	deriver, err := hdkey.NewDeriver(secret, cfg.Passphrase)
	if err != nil {
		return nil, domain.Wrap(domain.ErrCustodyUnavailable, fmt.Errorf("custody_service.Open: %w", err))
	}
	master, err := deriver.MasterKey()
	if err != nil {
		return nil, domain.Wrap(domain.ErrCustodyUnavailable, fmt.Errorf("custody_service.Open: master key: %w", err))
	}

	s := &CustodyService{
		deriver: deriver,
		master:  master,
		ledger:  deps.Ledger,
		store:   deps.Store,
		cfg:     cfg,
		cache:   expirable.NewLRU[string, *domain.WalletRecord](cfg.CacheSize, nil, cfg.CacheTTL),
		locks:   newKeyLock(),
		metrics: deps.Metrics,
		logger:  deps.Logger,
		tracer:  telemetry.Tracer(),
		now:     deps.Clock,
	}

	// ── 2. Probe the network ledger ──────────────────────────────────────────
	probeCtx, cancel := context.WithTimeout(ctx, cfg.OpTimeout)
	defer cancel()
	if err := s.ledger.Probe(probeCtx); err != nil {
		return nil, domain.Wrap(domain.ErrCustodyUnavailable, fmt.Errorf("custody_service.Open: probe: %w", err))
	}
	balance, err := s.balanceOf(ctx, "probe", master.Address)
	if err != nil {
		return nil, domain.Wrap(domain.ErrCustodyUnavailable, fmt.Errorf("custody_service.Open: master balance: %w", err))
	}

	s.logger.Info("custody ready", "master_address", master.Address.Hex(), "master_balance", balance.String())
	return s, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Wallets
// ──────────────────────────────────────────────────────────────────────────────

// GetOrCreateWallet returns the wallet bound to identifier, deriving and
// persisting it on first use. Idempotent: every call for the same identifier
// yields the same address. The returned record carries no key material.
func (s *CustodyService) GetOrCreateWallet(ctx context.Context, identifier string) (_ *domain.WalletRecord, err error) {
	ctx, span := s.tracer.Start(ctx, "custody.GetOrCreateWallet")
	defer func() { endSpan(span, err) }()

	rec, err := s.wallet(ctx, identifier)
	if err != nil {
		return nil, err
	}
	pub := rec.Public()
	return &pub, nil
}

// wallet returns the cached record including its private key.
func (s *CustodyService) wallet(ctx context.Context, identifier string) (*domain.WalletRecord, error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, domain.ErrInvalidIdentifier
	}
	if rec, ok := s.cache.Get(identifier); ok {
		s.metrics.CacheHit()
		return rec, nil
	}
	s.metrics.CacheMiss()

	// the shared lookup outlives any single caller; each waiter gives up on
	// its own context
	ch := s.group.DoChan(identifier, func() (any, error) {
		if rec, ok := s.cache.Get(identifier); ok {
			return rec, nil
		}
		workCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.OpTimeout)
		defer cancel()
		rec, err := s.resolve(workCtx, identifier)
		if err != nil {
			return nil, err
		}
		s.cache.Add(identifier, rec)
		return rec, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.WalletRecord), nil
	case <-ctx.Done():
		return nil, domain.Wrap(domain.ErrStoreUnavailable, fmt.Errorf("custody_service.wallet %s: %w", identifier, ctx.Err()))
	}
}

// resolve loads the persisted assignment or claims a fresh index, probing
// forward when the natural index already belongs to another identifier.
func (s *CustodyService) resolve(ctx context.Context, identifier string) (*domain.WalletRecord, error) {
	stored, err := s.store.GetWallet(ctx, identifier)
	switch {
	case err == nil:
		return s.verify(stored)
	case !errors.Is(err, domain.ErrWalletNotFound):
		return nil, domain.Wrap(domain.ErrStoreUnavailable, fmt.Errorf("custody_service.resolve: get: %w", err))
	}

	index := hdkey.IndexFor(identifier)
	for attempt := 0; attempt < s.cfg.MaxProbe; attempt++ {
		key, err := s.deriver.Derive(index)
		if err != nil {
			return nil, domain.Wrap(domain.ErrDerivationFailed, err)
		}
		rec := &domain.WalletRecord{
			Identifier: identifier,
			Index:      index,
			Address:    key.Address.Hex(),
			Path:       key.Path,
			PrivateKey: key.PrivateKey,
			CreatedAt:  s.now(),
		}
		pub := rec.Public()

		err = s.store.CreateWallet(ctx, &pub)
		switch {
		case err == nil:
			s.metrics.WalletDerived()
			s.logger.Info("wallet created", "identifier", identifier, "address", rec.Address, "path", rec.Path)
			return rec, nil

		case errors.Is(err, domain.ErrWalletExists):
			// another instance claimed it first
			stored, err := s.store.GetWallet(ctx, identifier)
			if err != nil {
				return nil, domain.Wrap(domain.ErrStoreUnavailable, fmt.Errorf("custody_service.resolve: reload: %w", err))
			}
			return s.verify(stored)

		case errors.Is(err, domain.ErrIndexTaken):
			s.metrics.IndexCollision()
			s.logger.Warn("derivation index taken, probing", "identifier", identifier, "index", index)
			index = hdkey.NextIndex(index)

		default:
			return nil, domain.Wrap(domain.ErrStoreUnavailable, fmt.Errorf("custody_service.resolve: create: %w", err))
		}
	}
	return nil, domain.Wrap(domain.ErrDerivationFailed,
		fmt.Errorf("custody_service.resolve: no free index for %q after %d attempts", identifier, s.cfg.MaxProbe))
}

// verify re-derives a stored record and checks it still matches the secret.
func (s *CustodyService) verify(stored *domain.WalletRecord) (*domain.WalletRecord, error) {
	key, err := s.deriver.Derive(stored.Index)
	if err != nil {
		return nil, domain.Wrap(domain.ErrDerivationFailed, err)
	}
	if !common.IsHexAddress(stored.Address) || common.HexToAddress(stored.Address) != key.Address {
		s.metrics.IntegrityFailed()
		s.logger.Error("stored wallet does not match derivation",
			"identifier", stored.Identifier, "index", stored.Index, "stored", stored.Address, "derived", key.Address.Hex())
		return nil, domain.Reject(domain.ErrIntegrityViolation,
			fmt.Sprintf("wallet for %q does not match its derivation path", stored.Identifier),
			map[string]any{"index": stored.Index})
	}
	rec := *stored
	rec.Address = key.Address.Hex()
	rec.Path = key.Path
	rec.PrivateKey = key.PrivateKey
	return &rec, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Balances
// ──────────────────────────────────────────────────────────────────────────────

// GetBalance reads the live balance of identifier's wallet and refreshes the
// cached snapshot. It does not retry: LEDGER_UNREACHABLE goes to the caller.
func (s *CustodyService) GetBalance(ctx context.Context, identifier string) (_ decimal.Decimal, err error) {
	ctx, span := s.tracer.Start(ctx, "custody.GetBalance")
	defer func() { endSpan(span, err) }()

	rec, err := s.wallet(ctx, identifier)
	if err != nil {
		return decimal.Zero, err
	}
	return s.refreshBalance(ctx, rec)
}

// PeekBalance returns the last snapshot without touching the network.
func (s *CustodyService) PeekBalance(ctx context.Context, identifier string) (decimal.Decimal, error) {
	rec, err := s.wallet(ctx, identifier)
	if err != nil {
		return decimal.Zero, err
	}
	return rec.CachedBalance, nil
}

// Balance returns the wallet address and its live balance.
func (s *CustodyService) Balance(ctx context.Context, identifier string) (domain.BalanceView, error) {
	rec, err := s.wallet(ctx, identifier)
	if err != nil {
		return domain.BalanceView{}, err
	}
	bal, err := s.refreshBalance(ctx, rec)
	if err != nil {
		return domain.BalanceView{}, err
	}
	return domain.BalanceView{Identifier: identifier, Address: rec.Address, Balance: bal}, nil
}

func (s *CustodyService) refreshBalance(ctx context.Context, rec *domain.WalletRecord) (decimal.Decimal, error) {
	bal, err := s.balanceOf(ctx, "balance", common.HexToAddress(rec.Address))
	if err != nil {
		return decimal.Zero, err
	}

	at := s.now()
	if err := s.store.UpdateCachedBalance(ctx, rec.Identifier, bal, at); err != nil {
		s.logger.Warn("cache balance snapshot", "identifier", rec.Identifier, "err", err)
	}
	snap := *rec
	snap.CachedBalance = bal
	snap.BalanceAt = &at
	s.cache.Add(rec.Identifier, &snap)
	return bal, nil
}

func (s *CustodyService) balanceOf(ctx context.Context, op string, addr common.Address) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	start := time.Now()
	wei, err := s.ledger.BalanceAt(ctx, addr)
	s.metrics.ObserveLedgerCall(op, time.Since(start).Seconds(), err)
	if err != nil {
		return decimal.Zero, domain.Wrap(domain.ErrLedgerUnreachable, fmt.Errorf("custody_service.balanceOf %s: %w", addr.Hex(), err))
	}
	return domain.WeiToEther(wei), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Master wallet
// ──────────────────────────────────────────────────────────────────────────────

// MasterAddress is the address of the funding key.
func (s *CustodyService) MasterAddress() string { return s.master.Address.Hex() }

// MasterBalance reads the funding key's live balance.
func (s *CustodyService) MasterBalance(ctx context.Context) (decimal.Decimal, error) {
	return s.balanceOf(ctx, "master_balance", s.master.Address)
}

// ──────────────────────────────────────────────────────────────────────────────
// Locking
// ──────────────────────────────────────────────────────────────────────────────

// LockWallet takes identifier's exclusive section. Callers that check a
// balance and then act on it must hold it across both steps.
func (s *CustodyService) LockWallet(ctx context.Context, identifier string) (func(), error) {
	if strings.TrimSpace(identifier) == "" {
		return nil, domain.ErrInvalidIdentifier
	}
	return s.lock(ctx, "wallet:"+identifier)
}

func (s *CustodyService) lock(ctx context.Context, key string) (func(), error) {
	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return nil, &domain.Error{
			Kind:    domain.KindTransient,
			Code:    domain.CodeLedgerUnreachable,
			Message: "timed out waiting for wallet lock",
			Err:     err,
		}
	}
	return unlock, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Transfers
// ──────────────────────────────────────────────────────────────────────────────

// Transfer sends amount ETH from identifier's wallet to toAddress. The
// balance check and the submission run under the wallet lock. A
// TRANSFER_REJECTED error may still have reached the network.
func (s *CustodyService) Transfer(ctx context.Context, identifier, toAddress string, amount decimal.Decimal) (_ domain.TxRef, err error) {
	ctx, span := s.tracer.Start(ctx, "custody.Transfer",
		trace.WithAttributes(attribute.String("amount", amount.String())))
	defer func() { endSpan(span, err) }()

	to, err := parseAddress(toAddress)
	if err != nil {
		return domain.TxRef{}, err
	}
	if !domain.ValidAmount(amount) {
		return domain.TxRef{}, domain.ErrInvalidAmount
	}

	unlock, err := s.LockWallet(ctx, identifier)
	if err != nil {
		return domain.TxRef{}, err
	}
	defer unlock()

	rec, err := s.wallet(ctx, identifier)
	if err != nil {
		return domain.TxRef{}, err
	}
	balance, err := s.refreshBalance(ctx, rec)
	if err != nil {
		return domain.TxRef{}, err
	}
	if balance.LessThan(amount) {
		s.metrics.Transfer("user", "insufficient")
		return domain.TxRef{}, domain.InsufficientFunds(balance, amount)
	}
	return s.submit(ctx, "user", hdkey.Key{PrivateKey: rec.PrivateKey, Address: common.HexToAddress(rec.Address)}, to, amount)
}

// FundWallet sends amount ETH from the master key to identifier's wallet.
func (s *CustodyService) FundWallet(ctx context.Context, identifier string, amount decimal.Decimal) (_ domain.TxRef, err error) {
	ctx, span := s.tracer.Start(ctx, "custody.FundWallet")
	defer func() { endSpan(span, err) }()

	if !domain.ValidAmount(amount) {
		return domain.TxRef{}, domain.ErrInvalidAmount
	}
	rec, err := s.wallet(ctx, identifier)
	if err != nil {
		return domain.TxRef{}, err
	}

	unlock, err := s.lock(ctx, masterLockKey)
	if err != nil {
		return domain.TxRef{}, err
	}
	defer unlock()

	balance, err := s.MasterBalance(ctx)
	if err != nil {
		return domain.TxRef{}, err
	}
	if balance.LessThan(amount) {
		s.metrics.Transfer("master", "insufficient")
		return domain.TxRef{}, domain.InsufficientFunds(balance, amount)
	}
	return s.submit(ctx, "master", s.master, common.HexToAddress(rec.Address), amount)
}

func (s *CustodyService) submit(ctx context.Context, source string, from hdkey.Key, to common.Address, amount decimal.Decimal) (domain.TxRef, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.OpTimeout)
	defer cancel()

	start := time.Now()
	hash, err := s.ledger.Submit(ctx, from.PrivateKey, to, domain.EtherToWei(amount))
	s.metrics.ObserveLedgerCall("submit", time.Since(start).Seconds(), err)
	if err != nil {
		s.metrics.Transfer(source, "rejected")
		s.logger.Error("transfer rejected", "from", from.Address.Hex(), "to", to.Hex(), "amount", amount.String(), "tx", hash, "err", err)
		rejected := domain.Wrap(domain.ErrTransferRejected, err)
		if hash != "" {
			rejected.Details = map[string]any{"tx_hash": hash}
		}
		return domain.TxRef{}, rejected
	}

	s.metrics.Transfer(source, "submitted")
	s.logger.Info("transfer submitted", "from", from.Address.Hex(), "to", to.Hex(), "amount", amount.String(), "tx", hash)
	return domain.TxRef{Hash: hash, From: from.Address.Hex(), To: to.Hex(), Amount: amount}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, domain.Reject(domain.ErrInvalidAddress, fmt.Sprintf("%q is not an address", s), nil)
	}
	addr := common.HexToAddress(s)
	if addr == (common.Address{}) {
		return common.Address{}, domain.Reject(domain.ErrInvalidAddress, "refusing to send to the zero address", nil)
	}
	return addr, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if e := domain.AsError(err); e != nil {
			span.SetAttributes(attribute.String("error.code", string(e.Code)))
		}
	}
	span.End()
}
