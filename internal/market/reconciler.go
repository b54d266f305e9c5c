package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spectra/engine/internal/ingest"
	"github.com/spectra/engine/internal/store"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultRefreshInterval is the visible-row price refresh cadence
	DefaultRefreshInterval = time.Second
	// DefaultOrder is the generic pagination ordering
	DefaultOrder = "volume24hr"

	// CategoryAll disables category filtering
	CategoryAll = "all"

	categoryPageLimit = 100
	maxCategoryPages  = 10
	refreshChunk      = 20
)

// ErrFetchInFlight is returned when an identical fetch is already running.
var ErrFetchInFlight = errors.New("fetch already in flight")

// Source is the market data API the reconciler pulls from.
type Source interface {
	FetchEvents(ctx context.Context, q ingest.EventQuery) ([]ingest.Event, error)
	FetchMarkets(ctx context.Context, conditionIDs []string) ([]ingest.RawMarket, error)
}

// Stats receives reconciler activity.
type Stats interface {
	RecordPage(added int)
	RecordRefresh(updated int)
}

// VisibleFunc returns the ids of the rows currently on screen.
type VisibleFunc func() []string

// Config tunes a Reconciler.
type Config struct {
	PageSize        int
	Order           string
	RefreshInterval time.Duration
}

// Reconciler merges fetched pages into the cache and keeps visible rows
// fresh.
type Reconciler struct {
	source Source
	cache  *Cache
	seen   *SeenSet
	stats  Stats
	cfg    Config

	loading   atomic.Bool
	exhausted atomic.Bool
	// offset is only touched while loading is held
	offset int

	visibleMu sync.RWMutex
	visible   VisibleFunc

	catMu      sync.Mutex
	members    map[string]map[string]struct{}
	memberList map[string][]string
	inFlight   map[string]struct{}
	fetched    map[string]struct{}

	now    func() time.Time
	logger *slog.Logger
}

// NewReconciler creates a Reconciler over cache. stats may be nil.
func NewReconciler(source Source, cache *Cache, seen *SeenSet, stats Stats, cfg Config) *Reconciler {
	if cfg.PageSize <= 0 {
		cfg.PageSize = ingest.DefaultEventLimit
	}
	if cfg.Order == "" {
		cfg.Order = DefaultOrder
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultRefreshInterval
	}
	return &Reconciler{
		source:     source,
		cache:      cache,
		seen:       seen,
		stats:      stats,
		cfg:        cfg,
		members:    make(map[string]map[string]struct{}),
		memberList: make(map[string][]string),
		inFlight:   make(map[string]struct{}),
		fetched:    make(map[string]struct{}),
		now:        time.Now,
		logger:     slog.Default().WithGroup("market"),
	}
}

// Loading reports whether a page fetch is running.
func (r *Reconciler) Loading() bool {
	return r.loading.Load()
}

// Exhausted reports whether pagination has stopped for this session.
func (r *Reconciler) Exhausted() bool {
	return r.exhausted.Load()
}

// SetVisible registers the callback that reports on-screen ids.
func (r *Reconciler) SetVisible(fn VisibleFunc) {
	r.visibleMu.Lock()
	defer r.visibleMu.Unlock()
	r.visible = fn
}

// LoadNextPage fetches the next page of events and merges unseen records.
// Overlapping calls return ErrFetchInFlight without fetching. An empty page
// or a fetch error stops pagination for the session.
func (r *Reconciler) LoadNextPage(ctx context.Context) (int, error) {
	if r.exhausted.Load() {
		return 0, nil
	}
	if !r.loading.CompareAndSwap(false, true) {
		return 0, ErrFetchInFlight
	}
	defer r.loading.Store(false)

	events, err := r.source.FetchEvents(ctx, ingest.EventQuery{
		Limit:      r.cfg.PageSize,
		Offset:     r.offset,
		Order:      r.cfg.Order,
		EndDateMin: r.now(),
	})
	if err != nil {
		r.exhausted.Store(true)
		r.logger.Error("page_fetch_failed", "offset", r.offset, "error", err)
		return 0, fmt.Errorf("fetch page at offset %d: %w", r.offset, err)
	}
	if len(events) == 0 {
		r.exhausted.Store(true)
		r.logger.Info("pages_exhausted", "offset", r.offset)
		return 0, nil
	}

	r.offset += len(events)
	records := FromEvents(events)
	r.addMembers(records)
	added := r.cache.Merge(r.seen.FilterNew(records))

	if r.stats != nil {
		r.stats.RecordPage(added)
	}
	r.logger.Info("page_merged", "events", len(events), "added", added, "offset", r.offset)
	return added, nil
}

// RefreshVisible updates prices of the on-screen records. It is a no-op
// while a page fetch is running or nothing is visible.
func (r *Reconciler) RefreshVisible(ctx context.Context) (int, error) {
	if r.loading.Load() {
		return 0, nil
	}

	r.visibleMu.RLock()
	fn := r.visible
	r.visibleMu.RUnlock()
	if fn == nil {
		return 0, nil
	}

	current := r.cache.Lookup(fn())
	if len(current) == 0 {
		return 0, nil
	}

	var conditionIDs []string
	for _, m := range current {
		if m.MultiOutcome() {
			for _, c := range m.Children {
				conditionIDs = append(conditionIDs, c.ID)
			}
			continue
		}
		conditionIDs = append(conditionIDs, m.ID)
	}

	raw, err := r.fetchMarkets(ctx, conditionIDs)
	if err != nil {
		r.logger.Warn("refresh_failed", "ids", len(conditionIDs), "error", err)
		return 0, err
	}

	now := r.now()
	updates := make([]store.Market, 0, len(current))
	for _, m := range current {
		if next, ok := patch(m, raw, now); ok {
			updates = append(updates, next)
		}
	}
	updated := r.cache.ApplyRefresh(updates)

	if r.stats != nil {
		r.stats.RecordRefresh(updated)
	}
	r.logger.Debug("refresh_applied", "visible", len(current), "updated", updated)
	return updated, nil
}

// fetchMarkets fetches conditionIDs in chunks and indexes the result.
func (r *Reconciler) fetchMarkets(ctx context.Context, conditionIDs []string) (map[string]ingest.RawMarket, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]ingest.RawMarket, len(conditionIDs))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(conditionIDs); start += refreshChunk {
		end := min(start+refreshChunk, len(conditionIDs))
		chunk := conditionIDs[start:end]
		g.Go(func() error {
			markets, err := r.source.FetchMarkets(gctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, rm := range markets {
				out[rm.ConditionID] = rm
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// StartRefresh runs RefreshVisible on a fixed interval until ctx is done.
func (r *Reconciler) StartRefresh(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshVisible(ctx)
		}
	}
}

// SwitchCategory returns the ids belonging to category. A category fetched
// earlier this session is served from the cache; otherwise all of its
// events are fetched once. "" and "all" return nil, meaning no filter.
func (r *Reconciler) SwitchCategory(ctx context.Context, category string) ([]string, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" || category == CategoryAll {
		return nil, nil
	}

	r.catMu.Lock()
	if _, ok := r.fetched[category]; ok {
		ids := append([]string(nil), r.memberList[category]...)
		r.catMu.Unlock()
		return ids, nil
	}
	if _, ok := r.inFlight[category]; ok {
		r.catMu.Unlock()
		return nil, ErrFetchInFlight
	}
	r.inFlight[category] = struct{}{}
	r.catMu.Unlock()

	records, err := r.fetchCategory(ctx, category)

	r.catMu.Lock()
	delete(r.inFlight, category)
	if err == nil {
		r.fetched[category] = struct{}{}
	}
	r.catMu.Unlock()

	if err != nil {
		r.logger.Error("category_fetch_failed", "category", category, "error", err)
		return nil, err
	}

	for i := range records {
		if records[i].Category == "" {
			records[i].Category = category
		}
	}
	r.addMembersTo(category, records)
	r.addMembers(records)
	added := r.cache.Merge(r.seen.FilterNew(records))
	r.logger.Info("category_merged", "category", category, "records", len(records), "added", added)

	return r.Members(category), nil
}

func (r *Reconciler) fetchCategory(ctx context.Context, category string) ([]store.Market, error) {
	var records []store.Market
	for page := 0; page < maxCategoryPages; page++ {
		events, err := r.source.FetchEvents(ctx, ingest.EventQuery{
			Limit:      categoryPageLimit,
			Offset:     page * categoryPageLimit,
			Order:      r.cfg.Order,
			TagSlug:    category,
			EndDateMin: r.now(),
		})
		if err != nil {
			return nil, fmt.Errorf("fetch category %s page %d: %w", category, page, err)
		}
		records = append(records, FromEvents(events)...)
		if len(events) < categoryPageLimit {
			break
		}
	}
	return records, nil
}

// Members returns the ids known to belong to category.
func (r *Reconciler) Members(category string) []string {
	r.catMu.Lock()
	defer r.catMu.Unlock()
	return append([]string(nil), r.memberList[strings.ToLower(category)]...)
}

// Categories returns every category seen so far.
func (r *Reconciler) Categories() []string {
	r.catMu.Lock()
	defer r.catMu.Unlock()
	out := make([]string, 0, len(r.memberList))
	for c := range r.memberList {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (r *Reconciler) addMembers(records []store.Market) {
	for _, m := range records {
		if m.Category != "" {
			r.addMembersTo(m.Category, []store.Market{m})
		}
	}
}

func (r *Reconciler) addMembersTo(category string, records []store.Market) {
	category = strings.ToLower(category)

	r.catMu.Lock()
	defer r.catMu.Unlock()

	set, ok := r.members[category]
	if !ok {
		set = make(map[string]struct{})
		r.members[category] = set
	}
	for _, m := range records {
		if _, ok := set[m.ID]; ok {
			continue
		}
		set[m.ID] = struct{}{}
		r.memberList[category] = append(r.memberList[category], m.ID)
	}
}

// patch applies fetched market state to m. It reports false when none of
// m's markets were in raw.
func patch(m store.Market, raw map[string]ingest.RawMarket, now time.Time) (store.Market, bool) {
	if !m.MultiOutcome() {
		rm, ok := raw[m.ID]
		if !ok {
			return m, false
		}
		applyRaw(&m, rm)
		m.UpdatedAt = now
		return m, true
	}

	touched := false
	children := make([]store.Market, len(m.Children))
	copy(children, m.Children)
	for i := range children {
		if rm, ok := raw[children[i].ID]; ok {
			applyRaw(&children[i], rm)
			children[i].UpdatedAt = now
			touched = true
		}
	}
	if !touched {
		return m, false
	}

	prices := make(map[string]store.Outcome, len(children))
	for _, c := range children {
		if len(c.Outcomes) > 0 {
			prices[c.ID] = c.Outcomes[0]
		}
	}
	outcomes := make([]store.Outcome, len(m.Outcomes))
	copy(outcomes, m.Outcomes)
	for i := range outcomes {
		if o, ok := prices[outcomes[i].ConditionID]; ok {
			outcomes[i].Price = o.Price
		}
	}

	m.Children = children
	m.Outcomes = outcomes
	resum(&m)
	m.UpdatedAt = now
	return m, true
}

func applyRaw(m *store.Market, rm ingest.RawMarket) {
	if next := outcomes(rm); len(next) > 0 {
		m.Outcomes = next
	}
	m.Volume = rm.Volume.Decimal
	m.Volume24h = rm.Volume24hr.Decimal
	m.Liquidity = rm.Liquidity.Decimal
	m.Active = rm.Active
	m.Closed = rm.Closed
	m.Archived = rm.Archived
}
