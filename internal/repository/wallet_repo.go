package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/evetabi/wagerbot/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// WalletRepository persists identifier -> derivation index assignments.
type WalletRepository struct {
	db *sqlx.DB
}

// NewWalletRepository creates a new WalletRepository.
func NewWalletRepository(db *sqlx.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

const walletColumns = `identifier, derivation_index, address, derivation_path, cached_balance, balance_at, created_at`

// GetWallet fetches the wallet assigned to identifier.
func (r *WalletRepository) GetWallet(ctx context.Context, identifier string) (*domain.WalletRecord, error) {
	var w domain.WalletRecord
	err := r.db.GetContext(ctx, &w,
		r.db.Rebind(`SELECT `+walletColumns+` FROM wallets WHERE identifier = ?`), identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("wallet_repo.GetWallet: %w", err)
	}
	return &w, nil
}

// CreateWallet inserts the assignment. Returns ErrWalletExists when the
// identifier already has a wallet, ErrIndexTaken when the index (and so the
// address) belongs to another identifier.
func (r *WalletRepository) CreateWallet(ctx context.Context, w *domain.WalletRecord) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO wallets
			(identifier, derivation_index, address, derivation_path, cached_balance, balance_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`),
		w.Identifier, int64(w.Index), w.Address, w.Path, w.CachedBalance, w.BalanceAt, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("wallet_repo.CreateWallet: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	// Nothing inserted: find out which constraint fired.
	if _, err := r.GetWallet(ctx, w.Identifier); err == nil {
		return domain.ErrWalletExists
	} else if !errors.Is(err, domain.ErrWalletNotFound) {
		return fmt.Errorf("wallet_repo.CreateWallet: %w", err)
	}
	return domain.ErrIndexTaken
}

// UpdateCachedBalance stores the latest observed balance.
func (r *WalletRepository) UpdateCachedBalance(ctx context.Context, identifier string, balance decimal.Decimal, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE wallets SET cached_balance = ?, balance_at = ? WHERE identifier = ?`),
		balance, at, identifier)
	if err != nil {
		return fmt.Errorf("wallet_repo.UpdateCachedBalance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}
