package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/spectra/engine/internal/planner"
	"github.com/spectra/engine/internal/store"
)

// NativeDecimals is the precision of the chain's native asset.
const NativeDecimals = 18

var (
	// ErrBuyInFlight is returned when the same control is already buying.
	ErrBuyInFlight = errors.New("buy already in flight")
	// ErrNothingSubmitted is returned when every wallet submission failed.
	ErrNothingSubmitted = errors.New("no wallet submission succeeded")
)

// Balances is the ledger view the quick-buy flow needs.
type Balances interface {
	MaxSpendable(addr common.Address) *big.Int
}

// Stats receives buy outcomes.
type Stats interface {
	RecordBuy(targeted, succeeded int)
	RecordBuyFailure()
}

// BuyRequest is one quick-buy click.
type BuyRequest struct {
	Token  store.Token
	Amount *big.Int

	// Wallets selected by the user; empty means the active account
	Wallets []common.Address

	// ButtonKey identifies the control that started the buy
	ButtonKey string

	// GasTipCap is the priority fee of the active preset; nil lets the
	// node suggest one
	GasTipCap *big.Int
}

// QuickBuy runs the plan, dispatch and notify sequence for a buy click.
type QuickBuy struct {
	dispatcher *Dispatcher
	balances   Balances
	wallets    map[common.Address]store.Wallet
	active     *store.Wallet
	loading    *Loading
	notify     NotifyFunc
	stats      Stats
	logger     *slog.Logger
}

// NewQuickBuy creates a QuickBuy. active may be nil.
func NewQuickBuy(d *Dispatcher, balances Balances, wallets []store.Wallet, active *store.Wallet, loading *Loading, notify NotifyFunc, stats Stats) *QuickBuy {
	book := make(map[common.Address]store.Wallet, len(wallets))
	for _, w := range wallets {
		book[w.Address] = w
	}
	if notify == nil {
		notify = func(Notice) {}
	}
	return &QuickBuy{
		dispatcher: d,
		balances:   balances,
		wallets:    book,
		active:     active,
		loading:    loading,
		notify:     notify,
		stats:      stats,
		logger:     slog.Default().WithGroup("quickbuy"),
	}
}

// Buy executes req. The loading flag for req.ButtonKey is always cleared on
// return. Partial fills are reported as success with a K of N caveat; a buy
// where no submission succeeded is an error.
func (q *QuickBuy) Buy(ctx context.Context, req BuyRequest) (res Result, err error) {
	if !q.loading.Set(req.ButtonKey) {
		return Result{}, ErrBuyInFlight
	}
	defer q.loading.Clear(req.ButtonKey)

	defer func() {
		if err == nil || errors.Is(err, planner.ErrNoWallets) {
			return
		}
		if q.stats != nil {
			q.stats.RecordBuyFailure()
		}
		q.logger.Warn("buy_failed", "token", req.Token.Address, "error", err)
		q.notify(Notice{
			Title:    classify(err),
			Subtitle: err.Error(),
			Variant:  VariantError,
			At:       time.Now(),
		})
	}()

	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return Result{}, planner.ErrInvalidAmount
	}

	legs, external, err := q.legs(req)
	if err != nil {
		return Result{}, err
	}

	res, err = q.dispatcher.Dispatch(ctx, req.Token, legs, external)
	if err != nil {
		return Result{}, err
	}
	if res.Targeted > 0 && res.Succeeded == 0 {
		return res, fmt.Errorf("%w: %w", ErrNothingSubmitted, firstError(res))
	}
	if q.stats != nil {
		q.stats.RecordBuy(res.Targeted, res.Succeeded)
	}

	q.logger.Info("buy_dispatched",
		"token", req.Token.Address,
		"amount", req.Amount.String(),
		"targeted", res.Targeted,
		"succeeded", res.Succeeded,
	)
	q.notify(Notice{
		Title:    fmt.Sprintf("Bought %s", displaySymbol(req.Token)),
		Subtitle: fmt.Sprintf("%s distributed across %d of %d wallets", FormatNative(req.Amount), res.Succeeded, res.Targeted),
		Variant:  VariantSuccess,
		At:       time.Now(),
	})
	return res, nil
}

// legs resolves the wallets and amounts for req. The second result reports
// whether legs without a local key are allowed.
func (q *QuickBuy) legs(req BuyRequest) ([]Leg, bool, error) {
	if len(req.Wallets) == 0 {
		if q.active == nil {
			q.notify(Notice{
				Title:    "No wallet selected",
				Subtitle: "Select a wallet to buy with",
				Variant:  VariantInfo,
				At:       time.Now(),
			})
			return nil, false, planner.ErrNoWallets
		}
		leg := Leg{Wallet: q.active.Address, Amount: new(big.Int).Set(req.Amount), SigningKey: q.active.PrivateKey, GasTipCap: req.GasTipCap}
		return []Leg{leg}, !q.active.HasKey(), nil
	}

	plan, err := planner.Plan(req.Amount, req.Wallets, q.balances.MaxSpendable)
	if err != nil {
		return nil, false, err
	}

	legs := make([]Leg, 0, len(plan))
	for _, a := range planner.NonZero(plan) {
		key := q.wallets[a.Wallet].PrivateKey
		if key == "" && q.active != nil {
			key = q.active.PrivateKey
		}
		if key == "" {
			return nil, false, fmt.Errorf("%w %s", ErrNoSigner, a.Wallet.Hex())
		}
		legs = append(legs, Leg{Wallet: a.Wallet, Amount: a.Amount, SigningKey: key, GasTipCap: req.GasTipCap})
	}
	return legs, false, nil
}

func firstError(res Result) error {
	for _, w := range res.Wallets {
		if w.Err != nil {
			return w.Err
		}
	}
	return errors.New("unknown error")
}

// ParseNative converts a decimal amount string to base units.
func ParseNative(amount string) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if d.Sign() <= 0 {
		return nil, planner.ErrInvalidAmount
	}
	return d.Shift(NativeDecimals).BigInt(), nil
}

// FormatNative renders base units as a decimal string.
func FormatNative(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -NativeDecimals).String()
}

func displaySymbol(t store.Token) string {
	if t.Symbol != "" {
		return t.Symbol
	}
	if len(t.Address) > 10 {
		return t.Address[:6] + "..." + t.Address[len(t.Address)-4:]
	}
	return t.Address
}
