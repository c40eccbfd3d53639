// Package chain adapts an EVM JSON-RPC node into the balance and transfer
// operations custody needs.
package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// TransferGas is the gas limit of a plain value transfer.
const TransferGas uint64 = 21000

// ErrChainMismatch is returned by Probe when the node serves another chain.
var ErrChainMismatch = errors.New("chain: node chain id does not match configuration")

// Client is the subset of *ethclient.Client the ledger uses.
type Client interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	ChainID(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Ledger reads balances from and submits value transfers to one chain.
type Ledger struct {
	client  Client
	chainID *big.Int
	signer  types.Signer
}

// NewLedger wraps client for the chain identified by chainID.
func NewLedger(client Client, chainID int64) *Ledger {
	id := big.NewInt(chainID)
	return &Ledger{
		client:  client,
		chainID: id,
		signer:  types.LatestSignerForChainID(id),
	}
}

// Dial connects to rpcURL and returns a Ledger plus a close function.
func Dial(ctx context.Context, rpcURL string, chainID int64) (*Ledger, func(), error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("chain.Dial: %w", err)
	}
	return NewLedger(c, chainID), c.Close, nil
}

// ChainID returns the configured chain id.
func (l *Ledger) ChainID() int64 { return l.chainID.Int64() }

// Probe verifies the node is reachable and serves the configured chain.
func (l *Ledger) Probe(ctx context.Context) error {
	remote, err := l.client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("chain.Probe: %w", err)
	}
	if remote.Cmp(l.chainID) != 0 {
		return fmt.Errorf("chain.Probe: remote %s, configured %s: %w", remote, l.chainID, ErrChainMismatch)
	}
	return nil
}

// BalanceAt returns the latest balance of addr in wei.
func (l *Ledger) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	bal, err := l.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("chain.BalanceAt(%s): %w", addr.Hex(), err)
	}
	return bal, nil
}

// Submit signs a legacy value transfer of wei from key to `to` at the node's
// suggested gas price and broadcasts it. The returned hash is known before
// broadcast, so it is also returned alongside a send error: the transaction
// may still have reached the network.
func (l *Ledger) Submit(ctx context.Context, key *ecdsa.PrivateKey, to common.Address, wei *big.Int) (string, error) {
	from := crypto.PubkeyToAddress(key.PublicKey)

	// ── 1. Nonce + gas price ──
	nonce, err := l.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("chain.Submit: nonce for %s: %w", from.Hex(), err)
	}
	gasPrice, err := l.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("chain.Submit: gas price: %w", err)
	}

	// ── 2. Build + sign ──
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      TransferGas,
		To:       &to,
		Value:    wei,
	})
	signed, err := types.SignTx(tx, l.signer, key)
	if err != nil {
		return "", fmt.Errorf("chain.Submit: sign: %w", err)
	}

	// ── 3. Broadcast ──
	hash := signed.Hash().Hex()
	if err := l.client.SendTransaction(ctx, signed); err != nil {
		return hash, fmt.Errorf("chain.Submit: send %s: %w", hash, err)
	}
	return hash, nil
}
