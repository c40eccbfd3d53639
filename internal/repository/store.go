package repository

import "github.com/jmoiron/sqlx"

// SQLStore bundles the repositories behind one value so services can depend
// on a single store.
type SQLStore struct {
	*WalletRepository
	*MarketRepository
	*BetRepository

	db *sqlx.DB
}

// NewSQLStore builds every repository on db.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	markets := NewMarketRepository(db)
	return &SQLStore{
		WalletRepository: NewWalletRepository(db),
		MarketRepository: markets,
		BetRepository:    NewBetRepository(db, markets),
		db:               db,
	}
}

// DB exposes the underlying pool for health checks and shutdown.
func (s *SQLStore) DB() *sqlx.DB { return s.db }
