// Package store persists the engine-acknowledged satellite configuration so
// the daemon can restore it after a restart.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/signalsfoundry/gnss-adapter/internal/logging"
	"github.com/signalsfoundry/gnss-adapter/model"
)

const saveTimeout = 5 * time.Second

// Store is a SQLite-backed SV configuration store. SaveSvConfig never blocks
// the caller: writes go through a single background writer and only the
// newest pending configuration is kept.
type Store struct {
	db  *sql.DB
	log logging.Logger
	now func() time.Time

	mu      sync.Mutex
	pending *model.SvConfig
	closed  bool
	wake    chan struct{}
	done    chan struct{}
}

// Open opens or creates the database at path and starts the writer.
func Open(ctx context.Context, path string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Noop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := applyMigrations(ctx, db); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}

	s := &Store{
		db:   db,
		log:  log,
		now:  time.Now,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go s.writer()
	return s, nil
}

// Close flushes the pending write and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.wake)
	<-s.done
	return s.db.Close()
}

// SaveSvConfig queues cfg for persistence.
func (s *Store) SaveSvConfig(cfg model.SvConfig) {
	cfg.Blacklist = cfg.Blacklist.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = &cfg
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store) writer() {
	defer close(s.done)
	for range s.wake {
		s.flush()
	}
	s.flush()
}

func (s *Store) flush() {
	s.mu.Lock()
	cfg := s.pending
	s.pending = nil
	s.mu.Unlock()
	if cfg == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.Save(ctx, *cfg); err != nil {
		s.log.Warn(ctx, "persist sv config failed", logging.Err(err))
	}
}

// Save writes cfg synchronously and appends it to the history.
func (s *Store) Save(ctx context.Context, cfg model.SvConfig) error {
	bl, err := encodeBlacklist(cfg.Blacklist)
	if err != nil {
		return err
	}
	at := ts(s.now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO sv_config(id, blacklist, enabled, secondary_band, updated_at)
VALUES (1, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	blacklist=excluded.blacklist,
	enabled=excluded.enabled,
	secondary_band=excluded.secondary_band,
	updated_at=excluded.updated_at
`, bl, int64(cfg.Enabled), int64(cfg.SecondaryBandMask), at); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("upsert sv config: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO sv_config_history(blacklist, enabled, secondary_band, saved_at)
VALUES (?, ?, ?, ?)
`, bl, int64(cfg.Enabled), int64(cfg.SecondaryBandMask), at); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("append sv config history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sv config: %w", err)
	}
	return nil
}

// Load returns the last saved configuration, or nil when none was saved.
func (s *Store) Load(ctx context.Context) (*model.SvConfig, error) {
	var (
		bl                 string
		enabled, secondary int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT blacklist, enabled, secondary_band FROM sv_config WHERE id = 1`).Scan(&bl, &enabled, &secondary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sv config: %w", err)
	}
	blacklist, err := decodeBlacklist(bl)
	if err != nil {
		return nil, err
	}
	return &model.SvConfig{
		Blacklist:         blacklist,
		Enabled:           model.ConstellationMask(enabled),
		SecondaryBandMask: model.ConstellationMask(secondary),
	}, nil
}

// HistoryEntry is one saved configuration.
type HistoryEntry struct {
	Config  model.SvConfig
	SavedAt time.Time
}

// History returns up to limit saved configurations, newest first.
func (s *Store) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT blacklist, enabled, secondary_band, saved_at
FROM sv_config_history
ORDER BY seq DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sv config history: %w", err)
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			bl, savedAt        string
			enabled, secondary int64
		)
		if err := rows.Scan(&bl, &enabled, &secondary, &savedAt); err != nil {
			return nil, fmt.Errorf("scan sv config history: %w", err)
		}
		blacklist, err := decodeBlacklist(bl)
		if err != nil {
			return nil, err
		}
		at, err := time.Parse(time.RFC3339Nano, savedAt)
		if err != nil {
			return nil, fmt.Errorf("parse saved_at: %w", err)
		}
		out = append(out, HistoryEntry{
			Config: model.SvConfig{
				Blacklist:         blacklist,
				Enabled:           model.ConstellationMask(enabled),
				SecondaryBandMask: model.ConstellationMask(secondary),
			},
			SavedAt: at,
		})
	}
	return out, rows.Err()
}

// Blacklists are stored as {"gps": bits, ...} keyed by constellation name.
func encodeBlacklist(bl model.Blacklist) (string, error) {
	m := make(map[string]uint64, len(bl))
	for c, bits := range bl {
		if bits != 0 {
			m[c.String()] = bits
		}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode blacklist: %w", err)
	}
	return string(b), nil
}

func decodeBlacklist(s string) (model.Blacklist, error) {
	var m map[string]uint64
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("decode blacklist: %w", err)
	}
	bl := model.Blacklist{}
	for name, bits := range m {
		c, err := model.ParseConstellation(name)
		if err != nil {
			return nil, fmt.Errorf("decode blacklist: %w", err)
		}
		bl[c] = bits
	}
	return bl, nil
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
