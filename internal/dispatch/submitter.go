package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoSigningKey is returned when an operation carries no key and the
// submitter cannot sign on its own.
var ErrNoSigningKey = errors.New("no signing key for wallet")

// Operation is everything the submitter needs for one transaction.
type Operation struct {
	From       common.Address
	Call       Call
	Nonce      uint64
	SigningKey string

	// Optional gas overrides; zero values are estimated
	GasLimit  uint64
	GasTipCap *big.Int
	GasFeeCap *big.Int

	Meta map[string]string
}

// Receipt is returned by a successful submission.
type Receipt struct {
	TxHash common.Hash
}

// Submitter sends an operation to the chain.
type Submitter interface {
	Submit(ctx context.Context, op Operation) (Receipt, error)
}

// SubmitFunc adapts a function to a Submitter.
type SubmitFunc func(ctx context.Context, op Operation) (Receipt, error)

// Submit calls f.
func (f SubmitFunc) Submit(ctx context.Context, op Operation) (Receipt, error) {
	return f(ctx, op)
}

// EthSubmitter signs transactions with the operation's key and broadcasts
// them through a bound contract. Fees and gas the operation leaves unset are
// filled in by the backend.
type EthSubmitter struct {
	backend bind.ContractTransactor
	chainID *big.Int
}

// NewEthSubmitter creates an EthSubmitter. backend is usually an
// *ethclient.Client.
func NewEthSubmitter(backend bind.ContractTransactor, chainID *big.Int) *EthSubmitter {
	return &EthSubmitter{backend: backend, chainID: chainID}
}

// Submit signs and sends op with the nonce it was reserved.
func (s *EthSubmitter) Submit(ctx context.Context, op Operation) (Receipt, error) {
	if op.SigningKey == "" {
		return Receipt{}, ErrNoSigningKey
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(op.SigningKey, "0x"))
	if err != nil {
		return Receipt{}, fmt.Errorf("parse signing key: %w", err)
	}

	opts, err := bind.NewKeyedTransactorWithChainID(key, s.chainID)
	if err != nil {
		return Receipt{}, fmt.Errorf("create transactor: %w", err)
	}
	if opts.From != op.From {
		return Receipt{}, fmt.Errorf("signing key belongs to %s, not %s", opts.From.Hex(), op.From.Hex())
	}
	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(op.Nonce)
	opts.Value = op.Call.Value
	opts.GasLimit = op.GasLimit
	opts.GasTipCap = op.GasTipCap
	opts.GasFeeCap = op.GasFeeCap

	contract := bind.NewBoundContract(op.Call.To, abi.ABI{}, nil, s.backend, nil)
	tx, err := contract.RawTransact(opts, op.Call.Data)
	if err != nil {
		return Receipt{}, fmt.Errorf("send tx: %w", err)
	}
	return Receipt{TxHash: tx.Hash()}, nil
}
