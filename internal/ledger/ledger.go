// Package ledger answers how much native asset a wallet may spend.
package ledger

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// ChainConfig carries the chain settings the ledger needs.
type ChainConfig struct {
	// NativeToken is the key of the native asset in a wallet's balance map
	NativeToken string

	// GasReserve is kept back from every wallet for fees
	GasReserve *big.Int
}

// Ledger holds walletTokenBalances: address -> token -> raw integer balance.
type Ledger struct {
	mu       sync.RWMutex
	chain    ChainConfig
	balances map[common.Address]map[string]*big.Int
}

// New creates an empty Ledger.
func New(chain ChainConfig) *Ledger {
	if chain.GasReserve == nil {
		chain.GasReserve = new(big.Int)
	}
	return &Ledger{
		chain:    chain,
		balances: make(map[common.Address]map[string]*big.Int),
	}
}

// Chain returns the chain configuration.
func (l *Ledger) Chain() ChainConfig {
	return l.chain
}

// SetBalance records a raw balance for a wallet and token.
func (l *Ledger) SetBalance(addr common.Address, token string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tokens, ok := l.balances[addr]
	if !ok {
		tokens = make(map[string]*big.Int)
		l.balances[addr] = tokens
	}
	tokens[token] = new(big.Int).Set(amount)
}

// Balance returns the raw balance, or nil if unknown.
func (l *Ledger) Balance(addr common.Address, token string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	bal, ok := l.balances[addr][token]
	if !ok {
		return nil
	}
	return new(big.Int).Set(bal)
}

// MaxSpendable returns the native balance net of the gas reserve, floored at
// zero. Missing or non-positive balances yield zero.
func (l *Ledger) MaxSpendable(addr common.Address) *big.Int {
	bal := l.Balance(addr, l.chain.NativeToken)
	return Spendable(bal, l.chain.GasReserve)
}

// Spendable computes max(0, balance - reserve).
func Spendable(balance, reserve *big.Int) *big.Int {
	if balance == nil || balance.Sign() <= 0 {
		return new(big.Int)
	}
	out := new(big.Int).Set(balance)
	if reserve != nil {
		out.Sub(out, reserve)
	}
	if out.Sign() < 0 {
		return new(big.Int)
	}
	return out
}
