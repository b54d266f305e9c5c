package view

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spectra/engine/internal/store"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func token(addr, name string, volume int64) store.Token {
	return store.Token{
		Address:   addr,
		Name:      name,
		Symbol:    name,
		Volume:    decimal.NewFromInt(volume),
		Price:     decimal.NewFromFloat(0.01),
		CreatedAt: now.Add(-2 * time.Hour),
		Status:    "new",
	}
}

func names(p Page[store.Token]) []string {
	out := make([]string, 0, len(p.Items))
	for _, t := range p.Items {
		out = append(out, t.Name)
	}
	return out
}

func TestDeriveBlacklist(t *testing.T) {
	a := token("0xAAA", "Alpha", 1)
	a.Developer = "0xDev1"
	b := token("0xbbb", "Beta", 2)
	c := token("0xccc", "Gamma", 3)
	c.Description = "the next RUG coin"
	d := token("0xddd", "Delta", 4)
	d.Socials.Website = "https://Scam.example"
	e := token("0xeee", "Epsilon", 5)
	e.Socials.Twitter = "https://x.com/BadActor"
	f := token("0xfff", "Zeta", 6)

	q := Query{
		Blacklist: store.BlacklistSettings{
			Developers: []string{"0xdev1"},
			Contracts:  []string{"0XBBB"},
			Keywords:   []string{"rug"},
			Websites:   []string{"scam.example"},
			Handles:    []string{"@badactor"},
		},
		SortField: SortVolume,
		PageSize:  10,
		Page:      1,
	}

	p := Derive([]store.Token{a, b, c, d, e, f}, TokenFields, q, now)
	require.Equal(t, []string{"Zeta"}, names(p))
}

func TestDeriveBlacklistIgnoresBlankEntries(t *testing.T) {
	a := token("0xaaa", "Alpha", 1)
	a.Socials.Twitter = "https://x.com/alpha"
	b := token("0xbbb", "Beta", 2)

	q := Query{
		Blacklist: store.BlacklistSettings{
			Handles:  []string{"@", " @ "},
			Keywords: []string{"  "},
		},
		PageSize: 10,
		Page:     1,
	}

	p := Derive([]store.Token{a, b}, TokenFields, q, now)
	require.Equal(t, 2, p.Total)
}

func TestDeriveCategory(t *testing.T) {
	a := token("a", "A", 1)
	b := token("b", "B", 2)
	b.Status = "graduated"

	p := Derive([]store.Token{a, b}, TokenFields, Query{Category: "Graduated", Page: 1}, now)
	require.Equal(t, []string{"B"}, names(p))

	p = Derive([]store.Token{a, b}, TokenFields, Query{Category: "graduated", Members: map[string]struct{}{"a": {}}, Page: 1}, now)
	require.Equal(t, []string{"A"}, names(p))

	p = Derive([]store.Token{a, b}, TokenFields, Query{Category: "All", Page: 1}, now)
	require.Len(t, p.Items, 2)
}

func TestDeriveFilters(t *testing.T) {
	base := token("base", "Base", 100)
	base.Holders = 50
	base.ProTraders = 3
	base.Socials = store.Socials{Twitter: "t", Website: "w", Telegram: "tg", Discord: "d"}

	cases := []struct {
		name   string
		mutate func(*store.Token)
		f      Filters
		keep   bool
	}{
		{"no filters", nil, Filters{}, true},
		{"volume below min", nil, Filters{Volume: Range{Min: 101}}, false},
		{"volume within", nil, Filters{Volume: Range{Min: 50, Max: 150}}, true},
		{"price above max", nil, Filters{Price: Range{Max: 0.001}}, false},
		{"holders range", nil, Filters{Holders: Range{Min: 10, Max: 40}}, false},
		{"age within", nil, Filters{AgeHours: Range{Max: 3}}, true},
		{"too young", nil, Filters{AgeHours: Range{Min: 5}}, false},
		{"unknown age", func(t *store.Token) { t.CreatedAt = time.Time{} }, Filters{AgeHours: Range{Max: 3}}, false},
		{"needs discord", func(t *store.Token) { t.Socials.Discord = "" }, Filters{RequireDiscord: true}, false},
		{"has socials", nil, Filters{RequireTwitter: true, RequireWebsite: true, RequireTelegram: true}, true},
		{"sniper ceiling", func(t *store.Token) { t.SniperPct = 30 }, Filters{MaxSniperPct: 20}, false},
		{"dev ceiling", func(t *store.Token) { t.DevPct = 10 }, Filters{MaxDevPct: 10}, true},
		{"insider ceiling", func(t *store.Token) { t.InsiderPct = 11 }, Filters{MaxInsiderPct: 10}, false},
		{"top10 ceiling", func(t *store.Token) { t.Top10Pct = 80 }, Filters{MaxTop10Pct: 50}, false},
		{"pro traders", nil, Filters{MinProTraders: 4}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tok := base
			if tc.mutate != nil {
				tc.mutate(&tok)
			}
			p := Derive([]store.Token{tok}, TokenFields, Query{Filters: tc.f, Page: 1}, now)
			require.Equal(t, tc.keep, p.Total == 1)
		})
	}
}

func TestDeriveSort(t *testing.T) {
	recs := []store.Token{
		token("1", "banana", 5),
		token("2", "Apple", 20),
		token("3", "cherry", 10),
	}

	p := Derive(recs, TokenFields, Query{SortField: SortName, Ascending: true, Page: 1}, now)
	require.Equal(t, []string{"Apple", "banana", "cherry"}, names(p))

	p = Derive(recs, TokenFields, Query{SortField: SortName, Page: 1}, now)
	require.Equal(t, []string{"cherry", "banana", "Apple"}, names(p))

	p = Derive(recs, TokenFields, Query{SortField: SortVolume, Page: 1}, now)
	require.Equal(t, []string{"Apple", "cherry", "banana"}, names(p))

	p = Derive(recs, TokenFields, Query{SortField: SortVolume, Ascending: true, Page: 1}, now)
	require.Equal(t, []string{"banana", "cherry", "Apple"}, names(p))
}

func TestDerivePagination(t *testing.T) {
	var recs []store.Token
	for i := 0; i < 23; i++ {
		recs = append(recs, token(fmt.Sprint(i), fmt.Sprintf("t%02d", i), int64(100-i)))
	}

	p := Derive(recs, TokenFields, Query{SortField: SortVolume, Page: 3, PageSize: 10}, now)
	require.Equal(t, 3, p.Page)
	require.Equal(t, 3, p.TotalPages)
	require.Equal(t, 23, p.Total)
	require.Equal(t, []string{"t20", "t21", "t22"}, names(p))

	p = Derive(recs, TokenFields, Query{SortField: SortVolume, Page: 9, PageSize: 10}, now)
	require.Equal(t, 3, p.Page, "clamped to last page")

	p = Derive(nil, TokenFields, Query{Page: 4, PageSize: 10}, now)
	require.Equal(t, 1, p.Page)
	require.Zero(t, p.TotalPages)
	require.Empty(t, p.Items)
}

func TestClampPage(t *testing.T) {
	require.Equal(t, 1, ClampPage(5, 0))
	require.Equal(t, 2, ClampPage(5, 2))
	require.Equal(t, 1, ClampPage(0, 2))
	require.Equal(t, 2, ClampPage(2, 3))
}

func TestStateResetsAndClamps(t *testing.T) {
	var recs []store.Token
	for i := 0; i < 30; i++ {
		recs = append(recs, token(fmt.Sprint(i), fmt.Sprintf("t%02d", i), int64(i)))
	}

	s := NewState(store.DisplaySettings{PageSize: 10, SortField: SortVolume})
	s.Next()
	s.Next()
	require.Equal(t, 3, Apply(s, recs, TokenFields, now).Page)

	s.SetSort(SortName, true)
	require.Equal(t, 3, s.Query().Page, "sorting keeps the page")

	s.SetFilters(Filters{Volume: Range{Min: 1}})
	require.Equal(t, 1, s.Query().Page)

	s.Next()
	s.Next()
	s.SetPageSize(5)
	require.Equal(t, 1, s.Query().Page)

	// the data shrinks below the current page
	s.Next()
	s.Next()
	s.Next()
	p := Apply(s, recs[:8], TokenFields, now)
	require.Equal(t, 2, p.Page)
	require.Equal(t, 2, s.Query().Page)

	s.SetCategory("graduated", []string{"missing"})
	require.Equal(t, 1, s.Query().Page)
	require.Empty(t, Apply(s, recs, TokenFields, now).Items)
}

func TestMarketFields(t *testing.T) {
	m := store.Market{
		ID:       "0xc1",
		Question: "Rain?",
		Category: "Science",
		Outcomes: []store.Outcome{{Name: "Yes", Price: decimal.RequireFromString("0.3")}},
		Volume:   decimal.NewFromInt(7),
	}
	f := MarketFields(m)
	require.Equal(t, "science", f.Category)
	require.InDelta(t, 0.3, f.Price, 1e-9)
	require.InDelta(t, 7, f.Number(SortVolume, now), 1e-9)
}

func TestDeriveHidesClosedMarkets(t *testing.T) {
	open := store.Market{ID: "open", Question: "Open"}
	closed := store.Market{ID: "closed", Question: "Closed", Closed: true}

	s := NewState(store.DisplaySettings{PageSize: 10, SortField: SortName})
	p := Apply(s, []store.Market{open, closed}, MarketFields, now)
	require.Equal(t, 1, p.Total)
	require.Equal(t, "open", p.Items[0].ID)

	s.SetShowClosed(true)
	require.Equal(t, 2, Apply(s, []store.Market{open, closed}, MarketFields, now).Total)

	s = NewState(store.DisplaySettings{PageSize: 10, ShowClosed: true})
	require.True(t, s.Query().ShowClosed)
}
