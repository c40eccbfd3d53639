// Package memstore is an in-memory store with the same semantics as the SQL
// repositories. It backs tests and STORE_DRIVER=memory deployments.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/evetabi/wagerbot/internal/domain"
)

// Store is safe for concurrent use. Every value crossing its boundary is a
// copy.
type Store struct {
	mu      sync.RWMutex
	wallets map[string]domain.WalletRecord
	indices map[uint32]string
	markets map[uuid.UUID]*domain.Market
	bets    []*domain.Bet
}

// New returns an empty store.
func New() *Store {
	return &Store{
		wallets: make(map[string]domain.WalletRecord),
		indices: make(map[uint32]string),
		markets: make(map[uuid.UUID]*domain.Market),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Wallets
// ──────────────────────────────────────────────────────────────────────────────

func (s *Store) GetWallet(_ context.Context, identifier string) (*domain.WalletRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.wallets[identifier]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	w.PrivateKey = nil
	return &w, nil
}

func (s *Store) CreateWallet(_ context.Context, w *domain.WalletRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[w.Identifier]; ok {
		return domain.ErrWalletExists
	}
	if _, ok := s.indices[w.Index]; ok {
		return domain.ErrIndexTaken
	}
	rec := w.Public()
	s.wallets[w.Identifier] = rec
	s.indices[w.Index] = w.Identifier
	return nil
}

func (s *Store) UpdateCachedBalance(_ context.Context, identifier string, balance decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[identifier]
	if !ok {
		return domain.ErrWalletNotFound
	}
	w.CachedBalance = balance
	w.BalanceAt = &at
	s.wallets[identifier] = w
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Markets
// ──────────────────────────────────────────────────────────────────────────────

func (s *Store) CreateMarket(_ context.Context, m *domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := m.Clone()
	if c.Participants == nil {
		c.Participants = []string{}
	}
	s.markets[m.ID] = c
	return nil
}

func (s *Store) GetMarket(_ context.Context, id uuid.UUID) (*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return m.Clone(), nil
}

func (s *Store) ListMarketsByStatus(_ context.Context, status domain.MarketStatus) ([]*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Market{}
	for _, m := range s.markets {
		if m.Status == status {
			out = append(out, m.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *domain.Market) int {
		if c := a.EndDate.Compare(b.EndDate); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *Store) UpdateMarketStatus(_ context.Context, id uuid.UUID, from, to domain.MarketStatus, winningOption *string, at time.Time) (*domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	if m.Status != from {
		return nil, domain.ErrStatusConflict
	}
	m.Status = to
	m.WinningOption = nil
	if winningOption != nil {
		w := *winningOption
		m.WinningOption = &w
	}
	m.UpdatedAt = at
	return m.Clone(), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Bets
// ──────────────────────────────────────────────────────────────────────────────

func (s *Store) RecordBet(_ context.Context, b *domain.Bet) (*domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[b.MarketID]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	if m.Status != domain.StatusActive {
		return nil, domain.ErrStatusConflict
	}
	bet := *b
	s.bets = append(s.bets, &bet)
	m.TotalPool = m.TotalPool.Add(b.Amount)
	if !m.HasParticipant(b.UserID) {
		m.Participants = append(m.Participants, b.UserID)
	}
	m.UpdatedAt = b.CreatedAt
	return m.Clone(), nil
}

func (s *Store) ListBetsByUser(_ context.Context, userID string) ([]*domain.Bet, error) {
	out := s.filterBets(func(b *domain.Bet) bool { return b.UserID == userID })
	slices.SortStableFunc(out, func(a, b *domain.Bet) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *Store) ListBetsByMarket(_ context.Context, marketID uuid.UUID) ([]*domain.Bet, error) {
	out := s.filterBets(func(b *domain.Bet) bool { return b.MarketID == marketID })
	slices.SortStableFunc(out, func(a, b *domain.Bet) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *Store) filterBets(keep func(*domain.Bet) bool) []*domain.Bet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*domain.Bet{}
	for _, b := range s.bets {
		if keep(b) {
			c := *b
			out = append(out, &c)
		}
	}
	return out
}
