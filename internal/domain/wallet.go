package domain

import (
	"crypto/ecdsa"
	"time"

	"github.com/shopspring/decimal"
)

// WalletRecord is the custodial wallet bound to one external identifier.
//
// Address, Path and Index never change after creation. PrivateKey is
// re-derived from the master secret on load and is never persisted or
// serialized.
type WalletRecord struct {
	Identifier    string            `json:"identifier"      db:"identifier"`
	Index         uint32            `json:"index"           db:"derivation_index"`
	Address       string            `json:"address"         db:"address"`
	Path          string            `json:"derivation_path" db:"derivation_path"`
	PrivateKey    *ecdsa.PrivateKey `json:"-"               db:"-"`
	CachedBalance decimal.Decimal   `json:"cached_balance"  db:"cached_balance"`
	BalanceAt     *time.Time        `json:"balance_at"      db:"balance_at"`
	CreatedAt     time.Time         `json:"created_at"      db:"created_at"`
}

// Public returns a copy without key material, safe to hand to callers outside
// custody.
func (w WalletRecord) Public() WalletRecord {
	w.PrivateKey = nil
	return w
}

// TxRef is the opaque reference returned for a submitted transfer.
type TxRef struct {
	Hash   string          `json:"hash"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

// BalanceView is the read model answered to check-balance requests.
type BalanceView struct {
	Identifier string          `json:"identifier"`
	Address    string          `json:"address"`
	Balance    decimal.Decimal `json:"balance"`
}
