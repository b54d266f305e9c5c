// Package settings persists client state as JSON blobs in a local sqlite
// key/value table. Reads are best-effort: a missing or malformed blob yields
// the defaults.
package settings

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/spectra/engine/internal/store"
	"github.com/spectra/engine/internal/view"
)

//go:embed schema.sql
var schemaDDL string

// Keys of the persisted blobs.
const (
	KeyDisplay     = "display"
	KeyAlerts      = "alerts"
	KeyBlacklist   = "blacklist"
	KeyWalletNames = "wallet_names"

	filtersPrefix  = "filters."
	quickBuyPrefix = "quickbuy."
	presetPrefix   = "quickbuy.preset."
)

// Store is the settings database.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	now    func() time.Time
	logger *slog.Logger
}

// Open opens (creating if needed) the settings database at path. Use
// ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()

	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	return &Store{
		db:     db,
		now:    time.Now,
		logger: slog.Default().WithGroup("settings"),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Get returns the raw blob for key. ok is false when the key is absent.
func (s *Store) Get(ctx context.Context, key string) (raw []byte, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return raw, true, nil
}

// Put stores raw under key.
func (s *Store) Put(ctx context.Context, key string, raw []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at_utc) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at_utc = excluded.updated_at_utc`,
		key, raw, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// load decodes key into out. It reports false, leaving out untouched, when
// the key is missing, unreadable or malformed.
func (s *Store) load(ctx context.Context, key string, out interface{}) bool {
	raw, ok, err := s.Get(ctx, key)
	if err != nil {
		s.logger.Warn("settings_read_failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		s.logger.Debug("settings_malformed", "key", key, "error", err)
		return false
	}
	return true
}

func (s *Store) save(ctx context.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(ctx, key, raw)
}

// Display returns the display settings.
func (s *Store) Display(ctx context.Context) store.DisplaySettings {
	var v store.DisplaySettings
	if !s.load(ctx, KeyDisplay, &v) || v.PageSize <= 0 {
		return store.DefaultDisplaySettings()
	}
	return v
}

// SaveDisplay persists the display settings.
func (s *Store) SaveDisplay(ctx context.Context, v store.DisplaySettings) error {
	return s.save(ctx, KeyDisplay, v)
}

// Alerts returns the alert settings.
func (s *Store) Alerts(ctx context.Context) store.AlertSettings {
	var v store.AlertSettings
	if !s.load(ctx, KeyAlerts, &v) {
		return store.DefaultAlertSettings()
	}
	return v
}

// SaveAlerts persists the alert settings.
func (s *Store) SaveAlerts(ctx context.Context, v store.AlertSettings) error {
	return s.save(ctx, KeyAlerts, v)
}

// Blacklist returns the blacklist.
func (s *Store) Blacklist(ctx context.Context) store.BlacklistSettings {
	var v store.BlacklistSettings
	if !s.load(ctx, KeyBlacklist, &v) {
		return store.BlacklistSettings{}
	}
	return v
}

// SaveBlacklist persists the blacklist.
func (s *Store) SaveBlacklist(ctx context.Context, v store.BlacklistSettings) error {
	return s.save(ctx, KeyBlacklist, v)
}

// Filters returns the user filter set of one explorer ("markets" or
// "tokens"). Nothing persisted means no filtering.
func (s *Store) Filters(ctx context.Context, explorer string) view.Filters {
	var v view.Filters
	if !s.load(ctx, filtersPrefix+explorer, &v) {
		return view.Filters{}
	}
	return v
}

// SaveFilters persists the filter set of one explorer.
func (s *Store) SaveFilters(ctx context.Context, explorer string, v view.Filters) error {
	return s.save(ctx, filtersPrefix+explorer, v)
}

// QuickBuy returns the quick-buy amount and active preset for a token
// status.
func (s *Store) QuickBuy(ctx context.Context, status string) store.QuickBuySettings {
	def := store.DefaultQuickBuySettings()
	out := def

	var amount string
	if s.load(ctx, quickBuyPrefix+status, &amount) && amount != "" {
		out.Amount = amount
	}

	var preset json.Number
	if s.load(ctx, presetPrefix+status, &preset) {
		if n, err := strconv.Atoi(preset.String()); err == nil && n > 0 {
			out.Preset = n
		}
	}
	return out
}

// SaveQuickBuy persists the quick-buy amount and preset for a token status.
func (s *Store) SaveQuickBuy(ctx context.Context, status string, v store.QuickBuySettings) error {
	if err := s.save(ctx, quickBuyPrefix+status, v.Amount); err != nil {
		return err
	}
	return s.save(ctx, presetPrefix+status, v.Preset)
}

// WalletNames returns the display names keyed by lower-case address.
func (s *Store) WalletNames(ctx context.Context) map[string]string {
	v := make(map[string]string)
	if !s.load(ctx, KeyWalletNames, &v) {
		return make(map[string]string)
	}
	return v
}

// SaveWalletNames persists the wallet display names.
func (s *Store) SaveWalletNames(ctx context.Context, names map[string]string) error {
	return s.save(ctx, KeyWalletNames, names)
}
