// Package hdkey derives per-identifier EVM keys from a single BIP39 master
// secret along the BIP44 Ethereum path.
package hdkey

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// ──────────────────────────────────────────────────────────────────────────────
// Paths
// ──────────────────────────────────────────────────────────────────────────────

const (
	purpose     = 44
	coinTypeETH = 60
	account     = 0

	externalChain = 0 // identifier wallets
	changeChain   = 1 // custody-owned keys; unreachable from any identifier index
)

// MaxIndex is the largest non-hardened child index.
const MaxIndex uint32 = 1<<31 - 1

// PathPrefix is the derivation prefix of every identifier wallet.
const PathPrefix = "m/44'/60'/0'/0/"

// MasterPath is where the privileged funding key lives.
const MasterPath = "m/44'/60'/0'/1/0"

var (
	// ErrInvalidMnemonic is returned when the secret is not a valid BIP39 phrase.
	ErrInvalidMnemonic = errors.New("hdkey: invalid mnemonic")

	// ErrIndexOutOfRange is returned for indices in the hardened range.
	ErrIndexOutOfRange = errors.New("hdkey: index out of range")
)

// Key is one derived key pair.
type Key struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
	Path       string
	Index      uint32
}

// ──────────────────────────────────────────────────────────────────────────────
// Deriver
// ──────────────────────────────────────────────────────────────────────────────

// Deriver maps an index to a key pair. It holds the account-level nodes so
// each derivation is two child steps. Safe for concurrent use: the held
// extended keys are never mutated.
type Deriver struct {
	external *hdkeychain.ExtendedKey // m/44'/60'/0'/0
	change   *hdkeychain.ExtendedKey // m/44'/60'/0'/1
}

// NewDeriver validates mnemonic, expands it to a seed with passphrase and
// prepares the BIP44 account nodes.
func NewDeriver(mnemonic, passphrase string) (*Deriver, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if mnemonic == "" || !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, passphrase)

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("hdkey.NewDeriver: master: %w", err)
	}

	acct, err := deriveHardened(master, purpose, coinTypeETH, account)
	if err != nil {
		return nil, fmt.Errorf("hdkey.NewDeriver: account: %w", err)
	}
	external, err := acct.Derive(externalChain)
	if err != nil {
		return nil, fmt.Errorf("hdkey.NewDeriver: external chain: %w", err)
	}
	change, err := acct.Derive(changeChain)
	if err != nil {
		return nil, fmt.Errorf("hdkey.NewDeriver: change chain: %w", err)
	}
	return &Deriver{external: external, change: change}, nil
}

// Derive returns the key at m/44'/60'/0'/0/<index>. It is pure: the same
// mnemonic and index always produce the same key.
func (d *Deriver) Derive(index uint32) (Key, error) {
	if index > MaxIndex {
		return Key{}, fmt.Errorf("hdkey.Derive(%d): %w", index, ErrIndexOutOfRange)
	}
	return keyAt(d.external, index, Path(index))
}

// MasterKey returns the funding key at m/44'/60'/0'/1/0.
func (d *Deriver) MasterKey() (Key, error) {
	return keyAt(d.change, 0, MasterPath)
}

// Path returns the derivation path for an identifier index.
func Path(index uint32) string {
	return PathPrefix + fmt.Sprint(index)
}

// ──────────────────────────────────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────────────────────────────────

func keyAt(parent *hdkeychain.ExtendedKey, index uint32, path string) (Key, error) {
	child, err := parent.Derive(index)
	if err != nil {
		return Key{}, fmt.Errorf("hdkey: derive %s: %w", path, err)
	}
	ecPriv, err := child.ECPrivKey()
	if err != nil {
		return Key{}, fmt.Errorf("hdkey: private key %s: %w", path, err)
	}
	priv := ecPriv.ToECDSA()
	return Key{
		PrivateKey: priv,
		Address:    crypto.PubkeyToAddress(priv.PublicKey),
		Path:       path,
		Index:      index,
	}, nil
}

func deriveHardened(k *hdkeychain.ExtendedKey, indices ...uint32) (*hdkeychain.ExtendedKey, error) {
	var err error
	for _, i := range indices {
		k, err = k.Derive(hdkeychain.HardenedKeyStart + i)
		if err != nil {
			return nil, err
		}
	}
	return k, nil
}
