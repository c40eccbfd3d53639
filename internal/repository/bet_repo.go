package repository

import (
	"context"
	"fmt"

	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// BetRepository handles all database operations for Bets.
type BetRepository struct {
	db      *sqlx.DB
	markets *MarketRepository
}

// NewBetRepository creates a new BetRepository.
func NewBetRepository(db *sqlx.DB, markets *MarketRepository) *BetRepository {
	return &BetRepository{db: db, markets: markets}
}

const betColumns = `id, market_id, user_id, option, amount, created_at`

// RecordBet stores b, adds its amount to the market pool and registers the
// bettor as a participant in one transaction. The market must still be
// active; otherwise ErrStatusConflict is returned and nothing is written.
func (r *BetRepository) RecordBet(ctx context.Context, b *domain.Bet) (*domain.Market, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("bet_repo.RecordBet begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	// ── 1. Lock market row ──
	m, err := getMarket(ctx, tx, b.MarketID, isPostgres(r.db))
	if err != nil {
		return nil, fmt.Errorf("bet_repo.RecordBet lock: %w", err)
	}
	if m.Status != domain.StatusActive {
		return nil, domain.ErrStatusConflict
	}

	// ── 2. Insert bet ──
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO bets (id, market_id, user_id, option, amount, created_at)
		VALUES (:id, :market_id, :user_id, :option, :amount, :created_at)`, b); err != nil {
		return nil, fmt.Errorf("bet_repo.RecordBet insert: %w", err)
	}

	// ── 3. Pool += amount ──
	newPool := m.TotalPool.Add(b.Amount)
	if _, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE markets SET total_pool = ?, updated_at = ? WHERE id = ?`),
		newPool, b.CreatedAt, b.MarketID); err != nil {
		return nil, fmt.Errorf("bet_repo.RecordBet pool: %w", err)
	}

	// ── 4. Participant ──
	if _, err := tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO market_participants (market_id, user_id, joined_at)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`),
		b.MarketID, b.UserID, b.CreatedAt); err != nil {
		return nil, fmt.Errorf("bet_repo.RecordBet participant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("bet_repo.RecordBet commit: %w", err)
	}
	return r.markets.GetMarket(ctx, b.MarketID)
}

// ListBetsByUser returns the user's bets, newest first.
func (r *BetRepository) ListBetsByUser(ctx context.Context, userID string) ([]*domain.Bet, error) {
	bets := []*domain.Bet{}
	err := r.db.SelectContext(ctx, &bets,
		r.db.Rebind(`SELECT `+betColumns+` FROM bets WHERE user_id = ? ORDER BY created_at DESC, id ASC`), userID)
	if err != nil {
		return nil, fmt.Errorf("bet_repo.ListBetsByUser: %w", err)
	}
	return bets, nil
}

// ListBetsByMarket returns every bet in a market, oldest first.
func (r *BetRepository) ListBetsByMarket(ctx context.Context, marketID uuid.UUID) ([]*domain.Bet, error) {
	bets := []*domain.Bet{}
	err := r.db.SelectContext(ctx, &bets,
		r.db.Rebind(`SELECT `+betColumns+` FROM bets WHERE market_id = ? ORDER BY created_at ASC, id ASC`), marketID)
	if err != nil {
		return nil, fmt.Errorf("bet_repo.ListBetsByMarket: %w", err)
	}
	return bets, nil
}
