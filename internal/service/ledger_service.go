package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/evetabi/wagerbot/internal/events"
	"github.com/evetabi/wagerbot/internal/metrics"
	"github.com/evetabi/wagerbot/internal/telemetry"
)

// ──────────────────────────────────────────────────────────────────────────────
// Interfaces injected into LedgerService
// ──────────────────────────────────────────────────────────────────────────────

// BalanceGate is what the ledger needs from custody. Implemented by
// CustodyService.
type BalanceGate interface {
	LockWallet(ctx context.Context, identifier string) (func(), error)
	GetBalance(ctx context.Context, identifier string) (decimal.Decimal, error)
}

var _ BalanceGate = (*CustodyService)(nil)

// LedgerConfig tunes LedgerService.
type LedgerConfig struct {
	DefaultDuration time.Duration // end date of markets created without one
	PublishTimeout  time.Duration
}

// LedgerDeps are the collaborators of LedgerService. Publisher, Metrics,
// Logger and Clock are optional.
type LedgerDeps struct {
	Store     LedgerStore
	Wallets   BalanceGate
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Clock     Clock
}

// ──────────────────────────────────────────────────────────────────────────────
// LedgerService
// ──────────────────────────────────────────────────────────────────────────────

// LedgerService owns the market lifecycle and the parimutuel pools. A bet is
// an accounting entry checked against a live balance snapshot; no funds move.
type LedgerService struct {
	store     LedgerStore
	wallets   BalanceGate
	publisher events.Publisher
	cfg       LedgerConfig
	locks     *keyLock

	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
	now     Clock
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(cfg LedgerConfig, deps LedgerDeps) *LedgerService {
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = domain.DefaultMarketDuration
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = systemClock
	}
	return &LedgerService{
		store:     deps.Store,
		wallets:   deps.Wallets,
		publisher: deps.Publisher,
		cfg:       cfg,
		locks:     newKeyLock(),
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		tracer:    telemetry.Tracer(),
		now:       deps.Clock,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// CreateMarket
// ──────────────────────────────────────────────────────────────────────────────

// CreateMarket validates p and opens an active market with an empty pool.
// Description defaults to the title and the end date to now plus the
// configured duration.
func (s *LedgerService) CreateMarket(ctx context.Context, creatorID string, p domain.CreateMarketParams) (_ *domain.Market, err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.CreateMarket")
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(creatorID) == "" {
		return nil, domain.ErrInvalidIdentifier
	}

	// ── 1. Validate ──────────────────────────────────────────────────────────
	now := s.now()
	p = p.Normalize()
	if reason := p.Validate(now); reason != "" {
		return nil, domain.Reject(domain.ErrInvalidMarketSpec, reason, nil)
	}

	// ── 2. Apply defaults ────────────────────────────────────────────────────
	description := p.Description
	if description == "" {
		description = p.Title
	}
	end := now.Add(s.cfg.DefaultDuration)
	if p.EndDate != nil {
		end = p.EndDate.UTC().Truncate(time.Microsecond)
	}

	m := &domain.Market{
		ID:           uuid.New(),
		Title:        p.Title,
		Description:  description,
		Options:      domain.StringList(p.Options),
		EndDate:      end,
		CreatedBy:    creatorID,
		TotalPool:    decimal.Zero,
		Participants: []string{},
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// ── 3. Persist ───────────────────────────────────────────────────────────
	if err := s.store.CreateMarket(ctx, m); err != nil {
		return nil, storeErr("ledger_service.CreateMarket", err)
	}

	s.metrics.MarketCreated()
	s.logger.Info("market created", "market_id", m.ID, "title", m.Title, "creator", creatorID, "end_date", m.EndDate)
	s.publish(ctx, events.New(events.MarketCreated, m, now))
	return m, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// PlaceBet
// ──────────────────────────────────────────────────────────────────────────────

// PlaceBet records amount on option for userID. Checks run in a fixed order:
// market exists, market active, option offered, amount valid, balance covers
// amount. The balance read and the write happen under the user's wallet lock,
// so concurrent bets by one user are serialized. An active market past its
// end date is closed on the spot and the bet is refused.
func (s *LedgerService) PlaceBet(ctx context.Context, userID, marketID, option string, amount decimal.Decimal) (_ *domain.Bet, err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.PlaceBet",
		trace.WithAttributes(attribute.String("market_id", marketID), attribute.String("amount", amount.String())))
	defer func() {
		if e := domain.AsError(err); e != nil && e.Kind != domain.KindTransient {
			s.metrics.BetRejected(string(e.Code))
		}
		endSpan(span, err)
	}()

	if strings.TrimSpace(userID) == "" {
		return nil, domain.ErrInvalidIdentifier
	}

	// ── 1. Market checks ─────────────────────────────────────────────────────
	m, err := s.market(ctx, marketID)
	if err != nil {
		return nil, err
	}
	if !m.IsActive() {
		return nil, notActive(m)
	}
	if now := s.now(); m.IsExpired(now) {
		s.transition(ctx, m, domain.StatusClosed, nil, now)
		return nil, domain.Reject(domain.ErrMarketNotActive, "market has ended", map[string]any{"end_date": m.EndDate})
	}
	if !m.HasOption(option) {
		return nil, domain.Reject(domain.ErrInvalidOption,
			fmt.Sprintf("%q is not an option; choose one of: %s", option, strings.Join(m.Options, ", ")),
			map[string]any{"options": []string(m.Options)})
	}
	if !domain.ValidAmount(amount) {
		return nil, domain.ErrInvalidAmount
	}

	// ── 2. Balance gate under the wallet lock ────────────────────────────────
	unlockWallet, err := s.wallets.LockWallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlockWallet()

	balance, err := s.wallets.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, domain.InsufficientFunds(balance, amount)
	}

	// ── 3. Record under the market lock ──────────────────────────────────────
	unlockMarket, err := s.lockMarket(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	defer unlockMarket()

	now := s.now()
	bet := &domain.Bet{
		ID:        uuid.New(),
		MarketID:  m.ID,
		UserID:    userID,
		Option:    option,
		Amount:    amount,
		CreatedAt: now,
	}
	updated, err := s.store.RecordBet(ctx, bet)
	switch {
	case errors.Is(err, domain.ErrStatusConflict):
		return nil, domain.Reject(domain.ErrMarketNotActive, "market closed while the bet was being placed", nil)
	case err != nil:
		return nil, storeErr("ledger_service.PlaceBet", err)
	}

	s.metrics.BetPlaced()
	s.logger.Info("bet placed", "market_id", m.ID, "user", userID, "option", option, "amount", amount.String(), "pool", updated.TotalPool.String())
	s.publish(ctx, events.New(events.BetPlaced, updated, now).WithBet(bet))
	return bet, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────────────────────────────────

// ResolveMarket declares winningOption the winner. Resolved markets never
// change again. Payouts are not computed here.
func (s *LedgerService) ResolveMarket(ctx context.Context, marketID, winningOption string) (_ *domain.Market, err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.ResolveMarket", trace.WithAttributes(attribute.String("market_id", marketID)))
	defer func() { endSpan(span, err) }()

	m, err := s.market(ctx, marketID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lockMarket(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// re-read under the lock; another caller may have resolved it meanwhile
	if m, err = s.market(ctx, marketID); err != nil {
		return nil, err
	}
	if !m.HasOption(winningOption) {
		return nil, domain.Reject(domain.ErrInvalidOption,
			fmt.Sprintf("%q is not an option of this market", winningOption),
			map[string]any{"options": []string(m.Options)})
	}
	if m.IsResolved() {
		return nil, domain.Reject(domain.ErrMarketAlreadyResolved,
			fmt.Sprintf("market already resolved with %q", deref(m.WinningOption)), nil)
	}

	winner := winningOption
	updated, err := s.store.UpdateMarketStatus(ctx, m.ID, m.Status, domain.StatusResolved, &winner, s.now())
	switch {
	case errors.Is(err, domain.ErrStatusConflict):
		return nil, domain.Reject(domain.ErrMarketAlreadyResolved, "market changed while resolving; reload and retry", nil)
	case err != nil:
		return nil, storeErr("ledger_service.ResolveMarket", err)
	}

	s.metrics.MarketTransition(string(domain.StatusResolved))
	s.logger.Info("market resolved", "market_id", m.ID, "winner", winner, "pool", updated.TotalPool.String())
	s.publish(ctx, events.New(events.MarketResolved, updated, s.now()))
	return updated, nil
}

// CloseMarket stops an active market from taking bets. Closing an already
// closed market returns it unchanged.
func (s *LedgerService) CloseMarket(ctx context.Context, marketID string) (_ *domain.Market, err error) {
	ctx, span := s.tracer.Start(ctx, "ledger.CloseMarket", trace.WithAttributes(attribute.String("market_id", marketID)))
	defer func() { endSpan(span, err) }()

	m, err := s.market(ctx, marketID)
	if err != nil {
		return nil, err
	}
	unlock, err := s.lockMarket(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if m, err = s.market(ctx, marketID); err != nil {
		return nil, err
	}
	switch m.Status {
	case domain.StatusResolved:
		return nil, domain.Reject(domain.ErrMarketAlreadyResolved, "market is already resolved", nil)
	case domain.StatusClosed:
		return m, nil
	}

	updated, err := s.store.UpdateMarketStatus(ctx, m.ID, domain.StatusActive, domain.StatusClosed, nil, s.now())
	switch {
	case errors.Is(err, domain.ErrStatusConflict):
		return nil, domain.Reject(domain.ErrMarketNotActive, "market changed while closing; reload and retry", nil)
	case err != nil:
		return nil, storeErr("ledger_service.CloseMarket", err)
	}

	s.metrics.MarketTransition(string(domain.StatusClosed))
	s.logger.Info("market closed", "market_id", m.ID)
	s.publish(ctx, events.New(events.MarketClosed, updated, s.now()))
	return updated, nil
}

// CloseExpiredMarkets closes every active market whose end date is not after
// now and reports how many it closed.
func (s *LedgerService) CloseExpiredMarkets(ctx context.Context, now time.Time) (int, error) {
	active, err := s.store.ListMarketsByStatus(ctx, domain.StatusActive)
	if err != nil {
		return 0, storeErr("ledger_service.CloseExpiredMarkets", err)
	}

	closed := 0
	for _, m := range active {
		if !m.IsExpired(now) {
			continue
		}
		if ctx.Err() != nil {
			return closed, ctx.Err()
		}
		if s.transition(ctx, m, domain.StatusClosed, nil, now) {
			closed++
		}
	}
	return closed, nil
}

// transition performs a compare-and-set status change and publishes the
// matching event. A lost race is not an error: someone else moved it first.
func (s *LedgerService) transition(ctx context.Context, m *domain.Market, to domain.MarketStatus, winner *string, now time.Time) bool {
	updated, err := s.store.UpdateMarketStatus(ctx, m.ID, m.Status, to, winner, now)
	if err != nil {
		if !errors.Is(err, domain.ErrStatusConflict) {
			s.logger.Error("market transition failed", "market_id", m.ID, "to", to, "err", err)
		}
		return false
	}
	s.metrics.MarketTransition(string(to))
	s.logger.Info("market transitioned", "market_id", m.ID, "from", m.Status, "to", to)

	t := events.MarketClosed
	if to == domain.StatusResolved {
		t = events.MarketResolved
	}
	s.publish(ctx, events.New(t, updated, now))
	return true
}

// ──────────────────────────────────────────────────────────────────────────────
// Queries
// ──────────────────────────────────────────────────────────────────────────────

// GetActiveMarkets returns markets still in the active state, soonest ending
// first.
func (s *LedgerService) GetActiveMarkets(ctx context.Context) ([]*domain.Market, error) {
	markets, err := s.store.ListMarketsByStatus(ctx, domain.StatusActive)
	if err != nil {
		return nil, storeErr("ledger_service.GetActiveMarkets", err)
	}
	return markets, nil
}

// GetMarket returns one market. Unknown or malformed ids are MARKET_NOT_FOUND.
func (s *LedgerService) GetMarket(ctx context.Context, marketID string) (*domain.Market, error) {
	return s.market(ctx, marketID)
}

// GetUserBets returns userID's bets, newest first.
func (s *LedgerService) GetUserBets(ctx context.Context, userID string) ([]*domain.Bet, error) {
	bets, err := s.store.ListBetsByUser(ctx, userID)
	if err != nil {
		return nil, storeErr("ledger_service.GetUserBets", err)
	}
	return bets, nil
}

// GetMarketBets returns a market's bets, oldest first.
func (s *LedgerService) GetMarketBets(ctx context.Context, marketID string) ([]*domain.Bet, error) {
	m, err := s.market(ctx, marketID)
	if err != nil {
		return nil, err
	}
	bets, err := s.store.ListBetsByMarket(ctx, m.ID)
	if err != nil {
		return nil, storeErr("ledger_service.GetMarketBets", err)
	}
	return bets, nil
}

// VerifyMarketIntegrity recomputes the pool and the participant set from the
// recorded bets and compares them with the stored market.
func (s *LedgerService) VerifyMarketIntegrity(ctx context.Context, marketID string) error {
	m, err := s.market(ctx, marketID)
	if err != nil {
		return err
	}
	bets, err := s.store.ListBetsByMarket(ctx, m.ID)
	if err != nil {
		return storeErr("ledger_service.VerifyMarketIntegrity", err)
	}

	sum := domain.SumAmounts(bets)
	bettors := make(map[string]struct{}, len(bets))
	for _, b := range bets {
		bettors[b.UserID] = struct{}{}
	}
	participantsMatch := len(bettors) == len(m.Participants)
	for _, p := range m.Participants {
		if _, ok := bettors[p]; !ok {
			participantsMatch = false
		}
	}

	if sum.Equal(m.TotalPool) && participantsMatch {
		return nil
	}
	s.metrics.IntegrityFailed()
	s.logger.Error("market integrity violated",
		"market_id", m.ID, "total_pool", m.TotalPool.String(), "bet_sum", sum.String(),
		"participants", len(m.Participants), "bettors", len(bettors))
	return domain.Reject(domain.ErrIntegrityViolation,
		fmt.Sprintf("market %s pool %s does not match its bets", m.ID, m.TotalPool.String()),
		map[string]any{
			"total_pool":   m.TotalPool.String(),
			"bet_sum":      sum.String(),
			"participants": len(m.Participants),
			"bettors":      len(bettors),
		})
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

func (s *LedgerService) market(ctx context.Context, marketID string) (*domain.Market, error) {
	id, err := uuid.Parse(strings.TrimSpace(marketID))
	if err != nil {
		return nil, domain.Reject(domain.ErrMarketNotFound, fmt.Sprintf("market %q not found", marketID), nil)
	}
	m, err := s.store.GetMarket(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrMarketNotFound) {
			return nil, domain.Reject(domain.ErrMarketNotFound, fmt.Sprintf("market %q not found", marketID), nil)
		}
		return nil, storeErr("ledger_service.market", err)
	}
	return m, nil
}

func (s *LedgerService) lockMarket(ctx context.Context, id uuid.UUID) (func(), error) {
	unlock, err := s.locks.Lock(ctx, id.String())
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreUnavailable, fmt.Errorf("ledger_service: market lock: %w", err))
	}
	return unlock, nil
}

// publish delivers e after the store commit. Failures are logged and counted;
// the operation that caused the event has already succeeded.
func (s *LedgerService) publish(ctx context.Context, e events.Event) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.PublishTimeout)
	defer cancel()
	if err := s.publisher.Publish(ctx, e); err != nil {
		s.metrics.PublishFailed()
		s.logger.Warn("publish event", "type", e.Type, "market_id", e.MarketID, "err", err)
	}
}

func notActive(m *domain.Market) error {
	msg := fmt.Sprintf("market is %s", m.Status)
	if m.IsResolved() {
		msg = fmt.Sprintf("market is resolved (winner: %s)", deref(m.WinningOption))
	}
	return domain.Reject(domain.ErrMarketNotActive, msg, map[string]any{"status": string(m.Status)})
}

// storeErr classifies an unexpected store failure as STORE_UNAVAILABLE,
// passing through errors that are already classified.
func storeErr(op string, err error) error {
	if domain.AsError(err) != nil {
		return err
	}
	return domain.Wrap(domain.ErrStoreUnavailable, fmt.Errorf("%s: %w", op, err))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
