package settings

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/notesprefs/internal/catalog"
	"github.com/kalambet/notesprefs/internal/preference"
	"github.com/kalambet/notesprefs/internal/storage"
)

// --- Mock store ---

type mockStore struct {
	mu      sync.Mutex
	data    map[string]string
	changes []storage.Change

	getAllCalls int
	setErr      error
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) GetPreference(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *mockStore) SetPreference(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *mockStore) DeletePreference(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *mockStore) AllPreferences(_ context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getAllCalls++
	cp := make(map[string]string, len(m.data))
	for k, v := range m.data {
		cp[k] = v
	}
	return cp, nil
}

func (m *mockStore) RecordChange(_ context.Context, c storage.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, c)
	return nil
}

func (m *mockStore) ListChanges(_ context.Context, key string, limit int) ([]storage.Change, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []storage.Change
	for i := len(m.changes) - 1; i >= 0 && len(out) < limit; i-- {
		if m.changes[i].Key == key {
			out = append(out, m.changes[i])
		}
	}
	return out, nil
}

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var (
	ctx    = context.Background()
	modern = preference.Capabilities{PlatformVersion: 34}
	legacy = preference.Capabilities{PlatformVersion: 29}
)

func newTestManager(t *testing.T) (*Manager, *mockStore, *mockClock) {
	t.Helper()
	store := newMockStore()
	clock := &mockClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return NewManagerWithClock(catalog.Registry(), store, clock, time.Minute), store, clock
}

// --- Tests ---

func TestGet_EmptyStoreReturnsDefault(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	sel, err := mgr.Get(ctx, catalog.KeySortMethod)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sel.Option.ID != "MODIFIED_DESC" {
		t.Errorf("Option = %s, want MODIFIED_DESC", sel.Option.ID)
	}
	if sel.Stored || sel.Normalized {
		t.Errorf("Stored=%v Normalized=%v, want both false", sel.Stored, sel.Normalized)
	}
}

func TestGet_UnknownStoredValueNormalized(t *testing.T) {
	mgr, store, _ := newTestManager(t)
	store.data[catalog.KeySortMethod] = "unknown_value"

	sel, err := mgr.Get(ctx, catalog.KeySortMethod)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sel.Option.ID != "MODIFIED_DESC" {
		t.Errorf("Option = %s, want MODIFIED_DESC", sel.Option.ID)
	}
	if !sel.Normalized || sel.Raw != "unknown_value" {
		t.Errorf("Normalized=%v Raw=%q", sel.Normalized, sel.Raw)
	}

	// The stored value is left for whichever version wrote it.
	if store.data[catalog.KeySortMethod] != "unknown_value" {
		t.Errorf("stored value rewritten to %q", store.data[catalog.KeySortMethod])
	}
}

func TestGet_UnknownDomain(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	_, err := mgr.Get(ctx, "no_such_key")
	if !errors.Is(err, preference.ErrUnknownDomain) {
		t.Errorf("error = %v, want ErrUnknownDomain", err)
	}
}

func TestGet_UnsupportedButStoredIsReadable(t *testing.T) {
	mgr, store, _ := newTestManager(t)
	store.data[catalog.KeyColorScheme] = "SYSTEM"

	sel, err := mgr.Get(ctx, catalog.KeyColorScheme)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sel.Option.ID != "SYSTEM" || sel.Normalized {
		t.Errorf("Option = %s Normalized = %v", sel.Option.ID, sel.Normalized)
	}

	choices, err := mgr.Choices(catalog.KeyColorScheme, legacy)
	if err != nil {
		t.Fatalf("Choices: %v", err)
	}
	for _, o := range choices {
		if o.ID == "SYSTEM" {
			t.Error("SYSTEM offered on legacy platform")
		}
	}
}

func TestSet(t *testing.T) {
	mgr, store, _ := newTestManager(t)

	opt, err := mgr.Set(ctx, catalog.KeyLayoutMode, "LIST", modern)
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
	if opt.ID != "LIST" {
		t.Errorf("Set returned %s", opt.ID)
	}
	if store.data[catalog.KeyLayoutMode] != "LIST" {
		t.Errorf("stored = %q, want LIST", store.data[catalog.KeyLayoutMode])
	}

	sel, _ := mgr.Get(ctx, catalog.KeyLayoutMode)
	if sel.Option.ID != "LIST" || !sel.Stored {
		t.Errorf("Get after Set = %s stored=%v", sel.Option.ID, sel.Stored)
	}

	if len(store.changes) != 1 {
		t.Fatalf("changes = %d, want 1", len(store.changes))
	}
	c := store.changes[0]
	if c.OldValue != "" || c.NewValue != "LIST" || c.ID == "" {
		t.Errorf("change = %+v", c)
	}
}

func TestSet_SameValueRecordsNoChange(t *testing.T) {
	mgr, store, _ := newTestManager(t)

	mgr.Set(ctx, catalog.KeySyncMode, "ALWAYS", modern)
	mgr.Set(ctx, catalog.KeySyncMode, "ALWAYS", modern)

	if len(store.changes) != 1 {
		t.Errorf("changes = %d, want 1", len(store.changes))
	}
}

func TestSet_UnknownOption(t *testing.T) {
	mgr, store, _ := newTestManager(t)

	_, err := mgr.Set(ctx, catalog.KeyLayoutMode, "grid", modern)
	if !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("error = %v, want ErrUnknownOption", err)
	}
	if _, ok := store.data[catalog.KeyLayoutMode]; ok {
		t.Error("store written on rejected set")
	}
}

func TestSet_UnsupportedOption(t *testing.T) {
	mgr, store, _ := newTestManager(t)

	_, err := mgr.Set(ctx, catalog.KeyColorScheme, "SYSTEM", legacy)
	if !errors.Is(err, ErrUnsupportedOption) {
		t.Fatalf("error = %v, want ErrUnsupportedOption", err)
	}
	if _, ok := store.data[catalog.KeyColorScheme]; ok {
		t.Error("store written on rejected set")
	}

	if _, err := mgr.Set(ctx, catalog.KeyColorScheme, "SYSTEM", modern); err != nil {
		t.Errorf("Set on modern platform: %v", err)
	}
}

func TestSet_UnknownDomain(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	_, err := mgr.Set(ctx, "no_such_key", "X", modern)
	if !errors.Is(err, preference.ErrUnknownDomain) {
		t.Errorf("error = %v, want ErrUnknownDomain", err)
	}
}

func TestSet_StoreError(t *testing.T) {
	mgr, store, _ := newTestManager(t)
	store.setErr = errors.New("disk full")

	if _, err := mgr.Set(ctx, catalog.KeyLayoutMode, "LIST", modern); err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(store.changes) != 0 {
		t.Error("change recorded for failed write")
	}
}

func TestReset(t *testing.T) {
	mgr, store, _ := newTestManager(t)

	mgr.Set(ctx, catalog.KeyThemeMode, "DARK", modern)
	def, err := mgr.Reset(ctx, catalog.KeyThemeMode)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if def.ID != "SYSTEM" {
		t.Errorf("Reset returned %s, want SYSTEM", def.ID)
	}

	sel, _ := mgr.Get(ctx, catalog.KeyThemeMode)
	if sel.Option.ID != "SYSTEM" || sel.Stored {
		t.Errorf("after reset: %s stored=%v", sel.Option.ID, sel.Stored)
	}

	hist, _ := mgr.History(ctx, catalog.KeyThemeMode, 10)
	if len(hist) != 2 || hist[0].OldValue != "DARK" || hist[0].NewValue != "" {
		t.Errorf("history = %+v", hist)
	}

	// Resetting an unset key records nothing.
	before := len(store.changes)
	mgr.Reset(ctx, catalog.KeyLayoutMode)
	if len(store.changes) != before {
		t.Error("reset of unset key recorded a change")
	}
}

func TestCacheTTL(t *testing.T) {
	mgr, store, clock := newTestManager(t)

	mgr.Get(ctx, catalog.KeyLayoutMode)
	mgr.Get(ctx, catalog.KeyThemeMode)
	if store.getAllCalls != 1 {
		t.Errorf("getAllCalls = %d, want 1 (cached)", store.getAllCalls)
	}

	clock.Advance(2 * time.Minute)
	mgr.Get(ctx, catalog.KeyLayoutMode)
	if store.getAllCalls != 2 {
		t.Errorf("getAllCalls = %d, want 2 after TTL", store.getAllCalls)
	}

	mgr.Set(ctx, catalog.KeyLayoutMode, "LIST", modern)
	sel, _ := mgr.Get(ctx, catalog.KeyLayoutMode)
	if sel.Option.ID != "LIST" {
		t.Errorf("stale read after Set: %s", sel.Option.ID)
	}
	if store.getAllCalls != 3 {
		t.Errorf("getAllCalls = %d, want 3 (invalidated by Set)", store.getAllCalls)
	}
}

func TestSnapshot(t *testing.T) {
	mgr, store, _ := newTestManager(t)
	store.data[catalog.KeyBackupStrategy] = "KEEP_INFO"

	snap, err := mgr.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	keys := catalog.Registry().Keys()
	if len(snap) != len(keys) {
		t.Fatalf("len = %d, want %d", len(snap), len(keys))
	}
	for i, sel := range snap {
		if sel.Key != keys[i] {
			t.Errorf("snapshot[%d] = %s, want %s", i, sel.Key, keys[i])
		}
		if sel.Key == catalog.KeyBackupStrategy && sel.Option.ID != "KEEP_INFO" {
			t.Errorf("backup_strategy = %s, want KEEP_INFO", sel.Option.ID)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	ids := []string{"WEEK", "TWO_WEEKS", "MONTH", "NEVER", "INSTANTLY"}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			mgr.Set(ctx, catalog.KeyNoteDeletionTime, ids[i%len(ids)], modern)
		}(i)
		go func() {
			defer wg.Done()
			if _, err := mgr.Get(ctx, catalog.KeyNoteDeletionTime); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()

	sel, _ := mgr.Get(ctx, catalog.KeyNoteDeletionTime)
	valid := append([]string(nil), ids...)
	sort.Strings(valid)
	if i := sort.SearchStrings(valid, sel.Option.ID); i == len(valid) || valid[i] != sel.Option.ID {
		t.Errorf("final value %s is not a declared option", sel.Option.ID)
	}
}

// TestWithSQLiteStore runs the manager against the real store.
func TestWithSQLiteStore(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mgr := NewManager(catalog.Registry(), store)

	if _, err := mgr.Set(ctx, catalog.KeyEditorFontSize, "THIRTY", modern); err != nil {
		t.Fatalf("Set: %v", err)
	}
	sel, err := mgr.Get(ctx, catalog.KeyEditorFontSize)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if catalog.FontPoints(sel.Option) != 30 {
		t.Errorf("font points = %d, want 30", catalog.FontPoints(sel.Option))
	}

	hist, err := mgr.History(ctx, catalog.KeyEditorFontSize, 5)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 1 || hist[0].NewValue != "THIRTY" {
		t.Errorf("history = %+v", hist)
	}
}
