// Package planner splits a requested buy amount across a set of wallets.
package planner

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spectra/engine/internal/store"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance across selected wallets")
	ErrNoWallets           = errors.New("no wallets selected")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

// CapFunc returns a wallet's spendable cap.
type CapFunc func(common.Address) *big.Int

// Plan computes a per-wallet allocation for total.
//
// Every wallet first receives min(total/n, cap). Whatever is left, including
// the integer division remainder, is then handed out in wallet order to
// wallets with room under their cap. If capacity runs out the whole plan is
// rejected with ErrInsufficientBalance. Duplicate addresses are ignored.
func Plan(total *big.Int, wallets []common.Address, capOf CapFunc) ([]store.Allocation, error) {
	if total == nil || total.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}

	wallets = dedupe(wallets)
	if len(wallets) == 0 {
		return nil, ErrNoWallets
	}

	caps := make([]*big.Int, len(wallets))
	for i, w := range wallets {
		c := capOf(w)
		if c == nil || c.Sign() < 0 {
			c = new(big.Int)
		}
		caps[i] = c
	}

	fairShare := new(big.Int).Quo(total, big.NewInt(int64(len(wallets))))
	remaining := new(big.Int).Set(total)

	plan := make([]store.Allocation, len(wallets))
	for i, w := range wallets {
		amount := minBig(fairShare, caps[i])
		plan[i] = store.Allocation{Wallet: w, Amount: amount}
		remaining.Sub(remaining, amount)
	}

	for i := range plan {
		if remaining.Sign() <= 0 {
			break
		}
		room := new(big.Int).Sub(caps[i], plan[i].Amount)
		if room.Sign() <= 0 {
			continue
		}
		add := minBig(remaining, room)
		plan[i].Amount.Add(plan[i].Amount, add)
		remaining.Sub(remaining, add)
	}

	if remaining.Sign() > 0 {
		return nil, fmt.Errorf("%w: short by %s", ErrInsufficientBalance, remaining.String())
	}
	return plan, nil
}

// Total sums the plan amounts.
func Total(plan []store.Allocation) *big.Int {
	sum := new(big.Int)
	for _, a := range plan {
		sum.Add(sum, a.Amount)
	}
	return sum
}

// NonZero returns the allocations with a positive amount.
func NonZero(plan []store.Allocation) []store.Allocation {
	out := make([]store.Allocation, 0, len(plan))
	for _, a := range plan {
		if a.Amount != nil && a.Amount.Sign() > 0 {
			out = append(out, a)
		}
	}
	return out
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func dedupe(wallets []common.Address) []common.Address {
	out := make([]common.Address, 0, len(wallets))
	seen := make(map[common.Address]struct{}, len(wallets))
	for _, w := range wallets {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
