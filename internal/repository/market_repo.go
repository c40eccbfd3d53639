package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// MarketRepository handles all database operations for Markets.
type MarketRepository struct {
	db *sqlx.DB
}

// NewMarketRepository creates a new MarketRepository.
func NewMarketRepository(db *sqlx.DB) *MarketRepository {
	return &MarketRepository{db: db}
}

const marketColumns = `id, title, description, options, end_date, created_by, total_pool, status, winning_option, created_at, updated_at`

// CreateMarket inserts a new market row.
func (r *MarketRepository) CreateMarket(ctx context.Context, m *domain.Market) error {
	query := `
		INSERT INTO markets
			(id, title, description, options, end_date, created_by, total_pool, status, winning_option, created_at, updated_at)
		VALUES
			(:id, :title, :description, :options, :end_date, :created_by, :total_pool, :status, :winning_option, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, m); err != nil {
		return fmt.Errorf("market_repo.CreateMarket: %w", err)
	}
	return nil
}

// GetMarket fetches a market and its participants.
func (r *MarketRepository) GetMarket(ctx context.Context, id uuid.UUID) (*domain.Market, error) {
	m, err := getMarket(ctx, r.db, id, false)
	if err != nil {
		return nil, fmt.Errorf("market_repo.GetMarket: %w", err)
	}
	if err := r.attachParticipants(ctx, []*domain.Market{m}); err != nil {
		return nil, fmt.Errorf("market_repo.GetMarket: %w", err)
	}
	return m, nil
}

// ListMarketsByStatus returns markets in status, soonest end date first.
func (r *MarketRepository) ListMarketsByStatus(ctx context.Context, status domain.MarketStatus) ([]*domain.Market, error) {
	var markets []*domain.Market
	err := r.db.SelectContext(ctx, &markets,
		r.db.Rebind(`SELECT `+marketColumns+` FROM markets WHERE status = ? ORDER BY end_date ASC, created_at ASC`),
		string(status))
	if err != nil {
		return nil, fmt.Errorf("market_repo.ListMarketsByStatus: %w", err)
	}
	if err := r.attachParticipants(ctx, markets); err != nil {
		return nil, fmt.Errorf("market_repo.ListMarketsByStatus: %w", err)
	}
	return markets, nil
}

// UpdateMarketStatus moves a market from `from` to `to`, recording
// winningOption when resolving. The update is a compare-and-set on status:
// ErrStatusConflict is returned when the market is no longer in `from`.
func (r *MarketRepository) UpdateMarketStatus(ctx context.Context, id uuid.UUID, from, to domain.MarketStatus, winningOption *string, at time.Time) (*domain.Market, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE markets
		SET status = ?, winning_option = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		string(to), winningOption, at, id, string(from))
	if err != nil {
		return nil, fmt.Errorf("market_repo.UpdateMarketStatus: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := getMarket(ctx, r.db, id, false); err != nil {
			return nil, fmt.Errorf("market_repo.UpdateMarketStatus: %w", err)
		}
		return nil, domain.ErrStatusConflict
	}
	return r.GetMarket(ctx, id)
}

// attachParticipants loads participant sets for markets with one query.
func (r *MarketRepository) attachParticipants(ctx context.Context, markets []*domain.Market) error {
	if len(markets) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(markets))
	byID := make(map[uuid.UUID]*domain.Market, len(markets))
	for i, m := range markets {
		ids[i] = m.ID
		byID[m.ID] = m
		m.Participants = []string{}
	}

	query, args, err := sqlx.In(
		`SELECT market_id, user_id FROM market_participants WHERE market_id IN (?) ORDER BY joined_at ASC, user_id ASC`, ids)
	if err != nil {
		return fmt.Errorf("participants: %w", err)
	}
	var rows []struct {
		MarketID uuid.UUID `db:"market_id"`
		UserID   string    `db:"user_id"`
	}
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("participants: %w", err)
	}
	for _, row := range rows {
		if m, ok := byID[row.MarketID]; ok {
			m.Participants = append(m.Participants, row.UserID)
		}
	}
	return nil
}

// getMarket reads one market row (without participants) through q, which is
// either the pool or a transaction. forUpdate takes a row lock on postgres.
func getMarket(ctx context.Context, q sqlx.QueryerContext, id uuid.UUID, forUpdate bool) (*domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var m domain.Market
	if err := sqlx.GetContext(ctx, q, &m, sqlx.Rebind(bindTypeOf(q), query), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMarketNotFound
		}
		return nil, err
	}
	return &m, nil
}

type driverNamer interface{ DriverName() string }

func bindTypeOf(q sqlx.QueryerContext) int {
	if d, ok := q.(driverNamer); ok {
		return sqlx.BindType(d.DriverName())
	}
	return sqlx.QUESTION
}
