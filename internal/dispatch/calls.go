// Package dispatch turns an allocation plan into concurrent on-chain buys.
package dispatch

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spectra/engine/internal/store"
)

const routerABIJSON = `[
  {"inputs":[
    {"internalType":"address","name":"token","type":"address"},
    {"internalType":"address","name":"recipient","type":"address"},
    {"internalType":"uint256","name":"minOut","type":"uint256"}
  ],"name":"buy","outputs":[],"stateMutability":"payable","type":"function"}
]`

const aggregatorABIJSON = `[
  {"inputs":[
    {"internalType":"bytes[]","name":"actions","type":"bytes[]"},
    {"internalType":"uint256","name":"deadline","type":"uint256"}
  ],"name":"execute","outputs":[],"stateMutability":"payable","type":"function"},
  {"inputs":[
    {"internalType":"address","name":"token","type":"address"},
    {"internalType":"address","name":"recipient","type":"address"},
    {"internalType":"uint256","name":"minOut","type":"uint256"},
    {"internalType":"uint256","name":"amountIn","type":"uint256"}
  ],"name":"swap","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[
    {"internalType":"address","name":"recipient","type":"address"},
    {"internalType":"uint16","name":"feeBps","type":"uint16"}
  ],"name":"sweepFee","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

// Call is an encoded contract call.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// CallConfig configures the contracts a CallBuilder targets.
type CallConfig struct {
	Router       common.Address
	Aggregator   common.Address
	FeeRecipient common.Address
	FeeBps       uint16
	Deadline     time.Duration
}

// CallBuilder encodes buy calls for both venues.
type CallBuilder struct {
	cfg       CallConfig
	routerABI abi.ABI
	aggABI    abi.ABI
	now       func() time.Time
}

// NewCallBuilder parses the contract ABIs.
func NewCallBuilder(cfg CallConfig) (*CallBuilder, error) {
	routerABI, err := abi.JSON(strings.NewReader(routerABIJSON))
	if err != nil {
		return nil, fmt.Errorf("router abi parse: %w", err)
	}
	aggABI, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		return nil, fmt.Errorf("aggregator abi parse: %w", err)
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = 2 * time.Minute
	}
	return &CallBuilder{
		cfg:       cfg,
		routerABI: routerABI,
		aggABI:    aggABI,
		now:       time.Now,
	}, nil
}

// Build encodes a buy of token for recipient paying value.
func (b *CallBuilder) Build(token store.Token, recipient common.Address, value *big.Int) (Call, error) {
	if !common.IsHexAddress(token.Address) {
		return Call{}, fmt.Errorf("invalid token address %q", token.Address)
	}
	tokenAddr := common.HexToAddress(token.Address)
	minOut := new(big.Int)

	switch token.Venue {
	case store.VenueAggregator:
		return b.buildAggregator(tokenAddr, recipient, minOut, value)
	case store.VenueRouter, "":
		data, err := b.routerABI.Pack("buy", tokenAddr, recipient, minOut)
		if err != nil {
			return Call{}, fmt.Errorf("pack router buy: %w", err)
		}
		return Call{To: b.cfg.Router, Data: data, Value: new(big.Int).Set(value)}, nil
	default:
		return Call{}, fmt.Errorf("unknown venue %q", token.Venue)
	}
}

// buildAggregator encodes swap-then-fee-sweep wrapped in execute.
func (b *CallBuilder) buildAggregator(token, recipient common.Address, minOut, value *big.Int) (Call, error) {
	swap, err := b.aggABI.Pack("swap", token, recipient, minOut, value)
	if err != nil {
		return Call{}, fmt.Errorf("pack swap: %w", err)
	}
	sweep, err := b.aggABI.Pack("sweepFee", b.cfg.FeeRecipient, b.cfg.FeeBps)
	if err != nil {
		return Call{}, fmt.Errorf("pack sweepFee: %w", err)
	}

	deadline := big.NewInt(b.now().Add(b.cfg.Deadline).Unix())
	data, err := b.aggABI.Pack("execute", [][]byte{swap, sweep}, deadline)
	if err != nil {
		return Call{}, fmt.Errorf("pack execute: %w", err)
	}
	return Call{To: b.cfg.Aggregator, Data: data, Value: new(big.Int).Set(value)}, nil
}
