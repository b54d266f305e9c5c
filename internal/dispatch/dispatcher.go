package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spectra/engine/internal/nonce"
	"github.com/spectra/engine/internal/store"
	"golang.org/x/sync/errgroup"
)

// ErrNoSigner is returned when a planned wallet has no key and no active
// wallet key is available to fall back to.
var ErrNoSigner = errors.New("no signer for wallet")

// Leg is one wallet's share of a dispatch.
type Leg struct {
	Wallet     common.Address
	Amount     *big.Int
	SigningKey string

	// GasTipCap overrides the suggested priority fee when set
	GasTipCap *big.Int
}

// WalletResult is the outcome of one leg.
type WalletResult struct {
	Wallet  common.Address
	Nonce   uint64
	Receipt Receipt
	Err     error
}

// Result aggregates a dispatch.
type Result struct {
	Targeted  int
	Succeeded int
	Wallets   []WalletResult
}

// Dispatcher submits planned buys concurrently.
type Dispatcher struct {
	builder     *CallBuilder
	nonces      *nonce.Registry
	submitter   Submitter
	concurrency int
	logger      *slog.Logger
}

// NewDispatcher creates a Dispatcher. concurrency < 1 means unbounded.
func NewDispatcher(builder *CallBuilder, nonces *nonce.Registry, submitter Submitter, concurrency int) *Dispatcher {
	return &Dispatcher{
		builder:     builder,
		nonces:      nonces,
		submitter:   submitter,
		concurrency: concurrency,
		logger:      slog.Default().WithGroup("dispatch"),
	}
}

type prepared struct {
	leg  Leg
	call Call
}

// Dispatch encodes every leg, reserves nonces in leg order and then submits
// all legs concurrently. Encoding errors abort before any nonce is reserved.
// Submission errors are isolated per leg; Dispatch waits for every leg to
// settle and reports how many succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, token store.Token, legs []Leg, allowExternal bool) (Result, error) {
	ops := make([]prepared, 0, len(legs))
	for _, leg := range legs {
		amount := leg.Amount
		if amount == nil || amount.Sign() <= 0 {
			continue
		}
		if leg.SigningKey == "" && !allowExternal {
			return Result{}, fmt.Errorf("%w %s", ErrNoSigner, leg.Wallet.Hex())
		}
		call, err := d.builder.Build(token, leg.Wallet, amount)
		if err != nil {
			return Result{}, fmt.Errorf("build call for %s: %w", leg.Wallet.Hex(), err)
		}
		ops = append(ops, prepared{leg: leg, call: call})
	}

	res := Result{
		Targeted: len(ops),
		Wallets:  make([]WalletResult, len(ops)),
	}

	reserved := make([]store.PendingTx, len(ops))
	for i, op := range ops {
		res.Wallets[i].Wallet = op.leg.Wallet
		tx, err := d.nonces.Reserve(ctx, op.leg.Wallet, token.Address, op.call.Value)
		if err != nil {
			res.Wallets[i].Err = err
			continue
		}
		reserved[i] = tx
		res.Wallets[i].Nonce = tx.Nonce
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	if d.concurrency > 0 {
		g.SetLimit(d.concurrency)
	}
	for i, op := range ops {
		if res.Wallets[i].Err != nil {
			continue
		}
		g.Go(func() error {
			tx := reserved[i]
			defer d.nonces.Release(op.leg.Wallet, tx.Nonce)

			receipt, err := d.submitter.Submit(ctx, Operation{
				From:       op.leg.Wallet,
				Call:       op.call,
				Nonce:      tx.Nonce,
				SigningKey: op.leg.SigningKey,
				GasTipCap:  op.leg.GasTipCap,
				Meta: map[string]string{
					"token":      token.Address,
					"symbol":     token.Symbol,
					"submission": tx.ID.String(),
				},
			})

			mu.Lock()
			defer mu.Unlock()
			res.Wallets[i].Receipt = receipt
			res.Wallets[i].Err = err
			if err != nil {
				d.logger.Warn("submission_failed",
					"wallet", op.leg.Wallet.Hex(),
					"nonce", tx.Nonce,
					"error", err,
				)
				return nil
			}
			res.Succeeded++
			d.logger.Info("submission_sent",
				"wallet", op.leg.Wallet.Hex(),
				"nonce", tx.Nonce,
				"tx", receipt.TxHash.Hex(),
			)
			return nil
		})
	}
	_ = g.Wait()

	return res, nil
}
