package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/signalsfoundry/gnss-adapter/model"
)

func openForTest(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return s
}

func sampleConfig() model.SvConfig {
	cfg := model.DefaultSvConfig()
	cfg.Blacklist.Add(model.ConstellationGPS, 5)
	cfg.Blacklist.Add(model.ConstellationGalileo, 31)
	cfg.Enabled = model.MaskOf(model.ConstellationGPS) | model.MaskOf(model.ConstellationGalileo)
	return cfg
}

func TestLoadEmptyReturnsNil(t *testing.T) {
	s := openForTest(t, filepath.Join(t.TempDir(), "gnss.db"))
	defer s.Close() //nolint:errcheck

	cfg, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != nil {
		t.Fatalf("Load = %+v, want nil", cfg)
	}
}

func TestSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	s := openForTest(t, filepath.Join(t.TempDir(), "gnss.db"))
	defer s.Close() //nolint:errcheck

	want := sampleConfig()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || !got.Blacklist.Equal(want.Blacklist) || got.Enabled != want.Enabled || got.SecondaryBandMask != want.SecondaryBandMask {
		t.Fatalf("Load = %+v, want %+v", got, want)
	}
}

func TestSaveSvConfigFlushedOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gnss.db")
	s := openForTest(t, path)

	first := model.DefaultSvConfig()
	s.SaveSvConfig(first)
	last := sampleConfig()
	s.SaveSvConfig(last)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := openForTest(t, path)
	defer reopened.Close() //nolint:errcheck
	got, err := reopened.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil || !got.Blacklist.Equal(last.Blacklist) || got.Enabled != last.Enabled {
		t.Fatalf("Load after reopen = %+v, want %+v", got, last)
	}
}

func TestSaveSvConfigAfterCloseIsIgnored(t *testing.T) {
	s := openForTest(t, filepath.Join(t.TempDir(), "gnss.db"))
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	s.SaveSvConfig(sampleConfig())
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openForTest(t, filepath.Join(t.TempDir(), "gnss.db"))
	defer s.Close() //nolint:errcheck

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	s.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	if err := s.Save(ctx, model.DefaultSvConfig()); err != nil {
		t.Fatalf("Save default: %v", err)
	}
	if err := s.Save(ctx, sampleConfig()); err != nil {
		t.Fatalf("Save sample: %v", err)
	}

	hist, err := s.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("History len = %d, want 2", len(hist))
	}
	if !hist[0].Config.Blacklist.Contains(model.ConstellationGPS, 5) {
		t.Fatalf("newest entry = %+v, want sample config", hist[0].Config)
	}
	if !hist[0].SavedAt.After(hist[1].SavedAt) {
		t.Fatalf("history not newest first: %v then %v", hist[0].SavedAt, hist[1].SavedAt)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gnss.db")
	first := openForTest(t, path)
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	second := openForTest(t, path)
	defer second.Close() //nolint:errcheck

	var n int
	if err := second.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != len(migrations) {
		t.Fatalf("schema_migrations rows = %d, want %d", n, len(migrations))
	}
}
