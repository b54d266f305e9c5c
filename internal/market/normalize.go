package market

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spectra/engine/internal/ingest"
	"github.com/spectra/engine/internal/store"
)

// EventIDPrefix marks ids of collapsed multi-outcome records.
const EventIDPrefix = "event-"

// collapseThreshold is the number of markets above which an event is shown
// as a single aggregate record.
const collapseThreshold = 2

// FromEvent converts a Gamma event into cache records. Events with more than
// two markets collapse into one aggregate record keyed "event-<id>" whose
// volume and liquidity are the sums over its children.
func FromEvent(ev ingest.Event) []store.Market {
	category := eventCategory(ev)

	if len(ev.Markets) > collapseThreshold {
		return []store.Market{collapse(ev, category)}
	}

	out := make([]store.Market, 0, len(ev.Markets))
	for _, rm := range ev.Markets {
		m := fromRaw(rm)
		if m.ID == "" {
			continue
		}
		m.EventID = ev.ID
		m.EventSlug = ev.Slug
		m.SeriesID = seriesID(ev)
		m.Category = category
		if m.Description == "" {
			m.Description = ev.Description
		}
		if m.Image == "" {
			m.Image = ev.Image
		}
		out = append(out, m)
	}
	return out
}

// FromEvents converts a page of events, preserving page order.
func FromEvents(events []ingest.Event) []store.Market {
	var out []store.Market
	for _, ev := range events {
		out = append(out, FromEvent(ev)...)
	}
	return out
}

func eventCategory(ev ingest.Event) string {
	if len(ev.Tags) == 0 {
		return ""
	}
	if ev.Tags[0].Slug != "" {
		return ev.Tags[0].Slug
	}
	return strings.ToLower(ev.Tags[0].Label)
}

func seriesID(ev ingest.Event) string {
	if len(ev.Series) == 0 {
		return ""
	}
	return ev.Series[0].ID
}

func fromRaw(rm ingest.RawMarket) store.Market {
	id := rm.ConditionID
	if id == "" {
		id = rm.ID
	}

	return store.Market{
		ID:        id,
		Question:  rm.Question,
		Image:     rm.Image,
		Volume:    rm.Volume.Decimal,
		Volume24h: rm.Volume24hr.Decimal,
		Liquidity: rm.Liquidity.Decimal,
		Active:    rm.Active,
		Closed:    rm.Closed,
		Archived:  rm.Archived,
		StartDate: parseDate(rm.StartDate),
		EndDate:   parseDate(rm.EndDate),
		Outcomes:  outcomes(rm),
	}
}

func outcomes(rm ingest.RawMarket) []store.Outcome {
	out := make([]store.Outcome, 0, len(rm.Outcomes))
	for i, name := range rm.Outcomes {
		o := store.Outcome{Name: name, ConditionID: rm.ConditionID}
		if i < len(rm.OutcomePrices) {
			o.Price = parseDecimal(rm.OutcomePrices[i])
		}
		if i < len(rm.ClobTokenIDs) {
			o.TokenID = rm.ClobTokenIDs[i]
		}
		out = append(out, o)
	}
	return out
}

func collapse(ev ingest.Event, category string) store.Market {
	agg := store.Market{
		ID:          EventIDPrefix + ev.ID,
		EventID:     ev.ID,
		EventSlug:   ev.Slug,
		SeriesID:    seriesID(ev),
		Question:    ev.Title,
		Description: ev.Description,
		Image:       ev.Image,
		Category:    category,
		Active:      ev.Active,
		Closed:      ev.Closed,
		StartDate:   parseDate(ev.StartDate),
		EndDate:     parseDate(ev.EndDate),
	}

	for _, rm := range ev.Markets {
		child := fromRaw(rm)
		if child.ID == "" {
			continue
		}
		child.EventID = ev.ID
		child.EventSlug = ev.Slug
		child.Category = category
		agg.Children = append(agg.Children, child)

		name := rm.GroupItemTitle
		if name == "" {
			name = rm.Question
		}
		o := store.Outcome{Name: name, Price: probability(child), ConditionID: child.ID}
		if len(child.Outcomes) > 0 {
			o.TokenID = child.Outcomes[0].TokenID
		}
		agg.Outcomes = append(agg.Outcomes, o)
	}

	resum(&agg)
	return agg
}

// resum recomputes the aggregate totals and the probability ordering of an
// aggregate record.
func resum(agg *store.Market) {
	agg.Volume = decimal.Zero
	agg.Volume24h = decimal.Zero
	agg.Liquidity = decimal.Zero
	for _, c := range agg.Children {
		agg.Volume = agg.Volume.Add(c.Volume)
		agg.Volume24h = agg.Volume24h.Add(c.Volume24h)
		agg.Liquidity = agg.Liquidity.Add(c.Liquidity)
	}

	sort.SliceStable(agg.Children, func(i, j int) bool {
		return probability(agg.Children[i]).GreaterThan(probability(agg.Children[j]))
	})
	sort.SliceStable(agg.Outcomes, func(i, j int) bool {
		return agg.Outcomes[i].Price.GreaterThan(agg.Outcomes[j].Price)
	})
}

// probability is the price of a market's first ("Yes") outcome.
func probability(m store.Market) decimal.Decimal {
	if len(m.Outcomes) == 0 {
		return decimal.Zero
	}
	return m.Outcomes[0].Price
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
