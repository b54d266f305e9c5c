package ledger

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BalanceReader is satisfied by *ethclient.Client.
type BalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Refresher polls native balances for a fixed set of wallets into a Ledger.
type Refresher struct {
	ledger   *Ledger
	reader   BalanceReader
	wallets  []common.Address
	interval time.Duration
	logger   *slog.Logger
}

// NewRefresher creates a Refresher. An interval of zero defaults to 15s.
func NewRefresher(l *Ledger, reader BalanceReader, wallets []common.Address, interval time.Duration) *Refresher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Refresher{
		ledger:   l,
		reader:   reader,
		wallets:  append([]common.Address(nil), wallets...),
		interval: interval,
		logger:   slog.Default().WithGroup("ledger"),
	}
}

// Start refreshes immediately and then on every tick until ctx is done.
func (r *Refresher) Start(ctx context.Context) {
	r.RefreshOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce reads every wallet's balance. Failed reads keep the previous value.
func (r *Refresher) RefreshOnce(ctx context.Context) {
	native := r.ledger.Chain().NativeToken
	for _, addr := range r.wallets {
		callCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
		bal, err := r.reader.BalanceAt(callCtx, addr, nil)
		cancel()
		if err != nil {
			r.logger.Warn("balance_read_failed", "wallet", addr.Hex(), "error", err)
			continue
		}
		r.ledger.SetBalance(addr, native, bal)
	}
}
