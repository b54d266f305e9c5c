// Package store provides the shared data model used across the explorer core.
package store

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Wallet is an ephemeral signer identity owned by the sub-wallet manager.
type Wallet struct {
	// Address is the on-chain account
	Address common.Address

	// PrivateKey is the hex encoded signing key; empty for externally managed accounts
	PrivateKey string
}

// HasKey reports whether the wallet carries a local signing key.
func (w Wallet) HasKey() bool {
	return w.PrivateKey != ""
}

// Allocation is one entry of an allocation plan.
type Allocation struct {
	Wallet common.Address
	Amount *big.Int
}

// PendingTx is a submission that has been handed to the submitter but has
// not completed yet.
type PendingTx struct {
	ID        uuid.UUID
	Nonce     uint64
	Token     string
	Value     *big.Int
	CreatedAt time.Time
}

// NonceEntry is the per-wallet nonce bookkeeping record.
type NonceEntry struct {
	Nonce      uint64
	PendingTxs []PendingTx
}

// Venue selects how a buy is encoded on chain.
type Venue string

const (
	VenueRouter     Venue = "router"
	VenueAggregator Venue = "aggregator"
)

// Token is a meme-token record shown by the token explorer.
type Token struct {
	// Address is the token contract and the cache key
	Address string

	Name        string
	Symbol      string
	Description string
	Image       string

	// Developer is the deployer address
	Developer string

	// Status is the launch stage ("new", "graduating", "graduated")
	Status string
	Venue  Venue

	Price      decimal.Decimal
	MarketCap  decimal.Decimal
	Volume     decimal.Decimal
	Liquidity  decimal.Decimal
	Holders    int
	ProTraders int
	CreatedAt  time.Time

	// Holding percentages (0-100)
	SniperPct  float64
	DevPct     float64
	InsiderPct float64
	Top10Pct   float64

	Socials Socials
}

// Socials holds the optional social links of a token or event.
type Socials struct {
	Twitter  string
	Website  string
	Telegram string
	Discord  string
}

// Outcome is one side of a prediction market.
type Outcome struct {
	Name        string
	Price       decimal.Decimal
	TokenID     string
	ConditionID string
}

// Market is a normalized prediction market record keyed by ConditionID.
// Multi-outcome events are collapsed into a single Market whose ID is derived
// from the parent event and whose Children hold the sibling markets.
type Market struct {
	ID          string
	EventID     string
	EventSlug   string
	SeriesID    string
	Question    string
	Description string
	Image       string
	Category    string

	Outcomes  []Outcome
	Volume    decimal.Decimal
	Volume24h decimal.Decimal
	Liquidity decimal.Decimal

	Active   bool
	Closed   bool
	Archived bool

	StartDate time.Time
	EndDate   time.Time

	Socials  Socials
	Children []Market

	// UpdatedAt is the last time a price refresh touched this record
	UpdatedAt time.Time
}

// MultiOutcome reports whether the record is a collapsed multi-outcome event.
func (m Market) MultiOutcome() bool {
	return len(m.Children) > 0
}

// LiveTrade is a normalized trade from the live trade stream.
type LiveTrade struct {
	// ID is the explicit trade id or a composite of market id and timestamp
	ID string

	MarketID string
	AssetID  string
	Title    string
	Trader   string
	Side     string
	Outcome  string
	Amount   float64
	Price    float64

	// Timestamp is epoch milliseconds
	Timestamp int64
}

// Time returns the trade timestamp as a time.Time.
func (t LiveTrade) Time() time.Time {
	return time.UnixMilli(t.Timestamp)
}

// Notional returns amount * price.
func (t LiveTrade) Notional() float64 {
	return t.Amount * t.Price
}

// Alert types
const (
	AlertLargeTrade = "LARGE_TRADE"
	AlertBurst      = "BURST"
	AlertPriceShock = "PRICE_SHOCK"
)

// Alert is raised when a live trade matches an alert rule.
type Alert struct {
	Type  string
	Trade LiveTrade
	Meta  map[string]interface{}
}
