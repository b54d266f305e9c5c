// Package nonce hands out per-wallet transaction nonces.
package nonce

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/spectra/engine/internal/store"
)

// Source seeds a wallet's first nonce. *ethclient.Client satisfies it.
type Source interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// Registry is the shared nonce registry. Reservations happen under a mutex
// so concurrent buys from the same wallet never reuse a nonce, whatever
// order their submissions complete in. Seeding a new wallet from the source
// happens outside the mutex.
type Registry struct {
	mu      sync.Mutex
	source  Source
	seeding singleflight.Group
	entries map[common.Address]*store.NonceEntry
}

// NewRegistry creates a Registry. A nil source seeds new wallets at zero.
func NewRegistry(source Source) *Registry {
	return &Registry{
		source:  source,
		entries: make(map[common.Address]*store.NonceEntry),
	}
}

// Reserve assigns the wallet's next nonce, increments the counter and records
// a pending entry for the submission. The entry is created on first use.
func (r *Registry) Reserve(ctx context.Context, addr common.Address, token string, value *big.Int) (store.PendingTx, error) {
	r.mu.Lock()
	_, ok := r.entries[addr]
	r.mu.Unlock()
	if !ok {
		if err := r.ensure(ctx, addr); err != nil {
			return store.PendingTx{}, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := r.entries[addr]
	tx := store.PendingTx{
		ID:        uuid.New(),
		Nonce:     entry.Nonce,
		Token:     token,
		Value:     copyBig(value),
		CreatedAt: time.Now(),
	}
	entry.Nonce++
	entry.PendingTxs = append(entry.PendingTxs, tx)
	return tx, nil
}

// Release removes the pending entry with the given nonce. It is called on
// both success and failure.
func (r *Registry) Release(addr common.Address, nonce uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[addr]
	if !ok {
		return
	}
	for i, tx := range entry.PendingTxs {
		if tx.Nonce == nonce {
			entry.PendingTxs = append(entry.PendingTxs[:i], entry.PendingTxs[i+1:]...)
			return
		}
	}
}

// Entry returns a copy of the wallet's entry.
func (r *Registry) Entry(addr common.Address) (store.NonceEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[addr]
	if !ok {
		return store.NonceEntry{}, false
	}
	return store.NonceEntry{
		Nonce:      entry.Nonce,
		PendingTxs: append([]store.PendingTx(nil), entry.PendingTxs...),
	}, true
}

// PendingCount returns the number of in-flight submissions across all wallets.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		n += len(e.PendingTxs)
	}
	return n
}

// ensure creates addr's entry from the source. Concurrent first reservations
// for one wallet share a single source call.
func (r *Registry) ensure(ctx context.Context, addr common.Address) error {
	_, err, _ := r.seeding.Do(addr.Hex(), func() (interface{}, error) {
		n, err := r.seed(ctx, addr)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		if _, ok := r.entries[addr]; !ok {
			r.entries[addr] = &store.NonceEntry{Nonce: n}
		}
		r.mu.Unlock()
		return nil, nil
	})
	return err
}

// Must be called without the lock held.
func (r *Registry) seed(ctx context.Context, addr common.Address) (uint64, error) {
	if r.source == nil {
		return 0, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()
	n, err := r.source.PendingNonceAt(callCtx, addr)
	if err != nil {
		return 0, fmt.Errorf("seed nonce for %s: %w", addr.Hex(), err)
	}
	return n, nil
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
