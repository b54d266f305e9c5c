// Package view derives the visible page of the explorer from the cache:
// blacklist, category, filters, sort and page window, in that order.
package view

import (
	"sort"
	"strings"
	"time"

	"github.com/spectra/engine/internal/store"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// CategoryAll disables the category filter.
const CategoryAll = "all"

// Range bounds a numeric field. A zero bound is unset.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) contains(v float64) bool {
	if r.Min != 0 && v < r.Min {
		return false
	}
	if r.Max != 0 && v > r.Max {
		return false
	}
	return true
}

func (r Range) set() bool {
	return r.Min != 0 || r.Max != 0
}

// Filters is the user-defined filter set. Zero values are unset.
type Filters struct {
	Price     Range `json:"price"`
	MarketCap Range `json:"marketCap"`
	Volume    Range `json:"volume"`
	Holders   Range `json:"holders"`
	AgeHours  Range `json:"ageHours"`

	RequireTwitter  bool `json:"requireTwitter"`
	RequireWebsite  bool `json:"requireWebsite"`
	RequireTelegram bool `json:"requireTelegram"`
	RequireDiscord  bool `json:"requireDiscord"`

	MaxSniperPct  float64 `json:"maxSniperPct"`
	MaxDevPct     float64 `json:"maxDevPct"`
	MaxInsiderPct float64 `json:"maxInsiderPct"`
	MaxTop10Pct   float64 `json:"maxTop10Pct"`

	MinProTraders int `json:"minProTraders"`
}

// Query selects one page of records.
type Query struct {
	Blacklist store.BlacklistSettings
	Category  string
	// Members, when non-nil, is the id set of Category. Without it records
	// match on their own category field.
	Members map[string]struct{}

	Filters Filters
	// ShowClosed keeps closed records
	ShowClosed bool

	SortField string
	Ascending bool

	// Page is 1-based
	Page     int
	PageSize int
}

// Page is the derived window.
type Page[T any] struct {
	Items      []T
	Page       int
	TotalPages int
	Total      int
}

type row[T any] struct {
	rec    T
	fields Fields
}

// Derive applies q to records. Closed records are dropped unless
// q.ShowClosed is set. The returned page number is clamped to the
// available pages, or 1 when nothing matches.
func Derive[T any](records []T, fieldsOf FieldsFunc[T], q Query, now time.Time) Page[T] {
	bl := lowerBlacklist(q.Blacklist)
	category := strings.ToLower(strings.TrimSpace(q.Category))

	rows := make([]row[T], 0, len(records))
	for _, r := range records {
		f := fieldsOf(r)
		if f.Closed && !q.ShowClosed {
			continue
		}
		if blacklisted(f, bl) {
			continue
		}
		if !inCategory(f, category, q.Members) {
			continue
		}
		if !matches(f, q.Filters, now) {
			continue
		}
		rows = append(rows, row[T]{rec: r, fields: f})
	}

	sortRows(rows, q.SortField, q.Ascending, now)

	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = store.DefaultDisplaySettings().PageSize
	}
	total := len(rows)
	totalPages := (total + pageSize - 1) / pageSize
	page := ClampPage(q.Page, totalPages)

	start := (page - 1) * pageSize
	end := min(start+pageSize, total)
	items := make([]T, 0, end-start)
	for _, r := range rows[start:end] {
		items = append(items, r.rec)
	}

	return Page[T]{Items: items, Page: page, TotalPages: totalPages, Total: total}
}

// ClampPage keeps page within [1, totalPages]. With no pages it returns 1.
func ClampPage(page, totalPages int) int {
	if totalPages <= 0 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	if page < 1 {
		return 1
	}
	return page
}

func lowerBlacklist(b store.BlacklistSettings) store.BlacklistSettings {
	return store.BlacklistSettings{
		Developers: lowerAll(b.Developers),
		Contracts:  lowerAll(b.Contracts),
		Keywords:   lowerAll(b.Keywords),
		Websites:   lowerAll(b.Websites),
		Handles:    lowerAll(b.Handles, "@"),
	}
}

// lowerAll lowercases and trims every entry, dropping the ones left empty.
func lowerAll(in []string, prefix ...string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		for _, p := range prefix {
			s = strings.TrimPrefix(s, p)
		}
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func blacklisted(f Fields, bl store.BlacklistSettings) bool {
	if bl.Empty() {
		return false
	}

	dev := strings.ToLower(f.Developer)
	for _, d := range bl.Developers {
		if dev == d {
			return true
		}
	}
	id := strings.ToLower(f.ID)
	for _, c := range bl.Contracts {
		if id == c {
			return true
		}
	}

	text := strings.ToLower(f.Name + "\n" + f.Symbol + "\n" + f.Description)
	for _, k := range bl.Keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	site := strings.ToLower(f.Socials.Website)
	for _, w := range bl.Websites {
		if site != "" && strings.Contains(site, w) {
			return true
		}
	}
	handles := strings.ToLower(f.Socials.Twitter + "\n" + f.Socials.Telegram)
	for _, h := range bl.Handles {
		if strings.Contains(handles, h) {
			return true
		}
	}
	return false
}

func inCategory(f Fields, category string, members map[string]struct{}) bool {
	if category == "" || category == CategoryAll {
		return true
	}
	if members != nil {
		_, ok := members[f.ID]
		return ok
	}
	return strings.EqualFold(f.Category, category)
}

func matches(f Fields, flt Filters, now time.Time) bool {
	if !flt.Price.contains(f.Price) ||
		!flt.MarketCap.contains(f.MarketCap) ||
		!flt.Volume.contains(f.Volume) ||
		!flt.Holders.contains(float64(f.Holders)) {
		return false
	}
	if flt.AgeHours.set() {
		if f.CreatedAt.IsZero() || !flt.AgeHours.contains(f.AgeHours(now)) {
			return false
		}
	}

	if flt.RequireTwitter && f.Socials.Twitter == "" {
		return false
	}
	if flt.RequireWebsite && f.Socials.Website == "" {
		return false
	}
	if flt.RequireTelegram && f.Socials.Telegram == "" {
		return false
	}
	if flt.RequireDiscord && f.Socials.Discord == "" {
		return false
	}

	if exceeds(f.SniperPct, flt.MaxSniperPct) ||
		exceeds(f.DevPct, flt.MaxDevPct) ||
		exceeds(f.InsiderPct, flt.MaxInsiderPct) ||
		exceeds(f.Top10Pct, flt.MaxTop10Pct) {
		return false
	}

	return flt.MinProTraders <= 0 || f.ProTraders >= flt.MinProTraders
}

func exceeds(v, ceiling float64) bool {
	return ceiling > 0 && v > ceiling
}

func sortRows[T any](rows []row[T], field string, ascending bool, now time.Time) {
	if field == "" {
		return
	}

	if field == SortName {
		col := collate.New(language.English, collate.IgnoreCase)
		sort.SliceStable(rows, func(i, j int) bool {
			c := col.CompareString(rows[i].fields.Name, rows[j].fields.Name)
			if ascending {
				return c < 0
			}
			return c > 0
		})
		return
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a := rows[i].fields.Number(field, now)
		b := rows[j].fields.Number(field, now)
		if ascending {
			return a < b
		}
		return a > b
	})
}
