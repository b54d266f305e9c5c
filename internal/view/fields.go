package view

import (
	"strings"
	"time"

	"github.com/spectra/engine/internal/store"
)

// Sort fields understood by Derive.
const (
	SortName       = "name"
	SortPrice      = "price"
	SortMarketCap  = "marketCap"
	SortVolume     = "volume"
	SortLiquidity  = "liquidity"
	SortHolders    = "holders"
	SortProTraders = "proTraders"
	SortAge        = "age"
	SortEndDate    = "endDate"
)

// SortFields lists the sort fields in UI cycling order.
var SortFields = []string{SortVolume, SortPrice, SortMarketCap, SortLiquidity, SortHolders, SortAge, SortEndDate, SortName}

// Fields is the flat view of a record that filtering and sorting read.
type Fields struct {
	ID          string
	Name        string
	Symbol      string
	Description string
	Developer   string
	Category    string

	Price      float64
	MarketCap  float64
	Volume     float64
	Liquidity  float64
	Holders    int
	ProTraders int

	CreatedAt time.Time
	EndDate   time.Time
	Closed    bool

	SniperPct  float64
	DevPct     float64
	InsiderPct float64
	Top10Pct   float64

	Socials store.Socials
}

// FieldsFunc extracts Fields from a record.
type FieldsFunc[T any] func(T) Fields

// Number returns the numeric sort key for field.
func (f Fields) Number(field string, now time.Time) float64 {
	switch field {
	case SortPrice:
		return f.Price
	case SortMarketCap:
		return f.MarketCap
	case SortVolume:
		return f.Volume
	case SortLiquidity:
		return f.Liquidity
	case SortHolders:
		return float64(f.Holders)
	case SortProTraders:
		return float64(f.ProTraders)
	case SortAge:
		return f.AgeHours(now)
	case SortEndDate:
		if f.EndDate.IsZero() {
			return 0
		}
		return float64(f.EndDate.Unix())
	}
	return 0
}

// AgeHours returns the hours since CreatedAt, or 0 when unknown.
func (f Fields) AgeHours(now time.Time) float64 {
	if f.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(f.CreatedAt).Hours()
}

// TokenFields maps a token record.
func TokenFields(t store.Token) Fields {
	return Fields{
		ID:          t.Address,
		Name:        t.Name,
		Symbol:      t.Symbol,
		Description: t.Description,
		Developer:   t.Developer,
		Category:    t.Status,
		Price:       t.Price.InexactFloat64(),
		MarketCap:   t.MarketCap.InexactFloat64(),
		Volume:      t.Volume.InexactFloat64(),
		Liquidity:   t.Liquidity.InexactFloat64(),
		Holders:     t.Holders,
		ProTraders:  t.ProTraders,
		CreatedAt:   t.CreatedAt,
		SniperPct:   t.SniperPct,
		DevPct:      t.DevPct,
		InsiderPct:  t.InsiderPct,
		Top10Pct:    t.Top10Pct,
		Socials:     t.Socials,
	}
}

// MarketFields maps a prediction market record. Price is the leading
// outcome's probability.
func MarketFields(m store.Market) Fields {
	f := Fields{
		ID:          m.ID,
		Name:        m.Question,
		Symbol:      m.EventSlug,
		Description: m.Description,
		Category:    strings.ToLower(m.Category),
		Volume:      m.Volume.InexactFloat64(),
		Liquidity:   m.Liquidity.InexactFloat64(),
		CreatedAt:   m.StartDate,
		EndDate:     m.EndDate,
		Closed:      m.Closed,
		Socials:     m.Socials,
	}
	if len(m.Outcomes) > 0 {
		f.Price = m.Outcomes[0].Price.InexactFloat64()
	}
	return f
}
