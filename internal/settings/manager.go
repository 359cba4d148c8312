package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/notesprefs/internal/preference"
	"github.com/kalambet/notesprefs/internal/storage"
)

var (
	// ErrUnknownOption is returned when a write names no option of the domain.
	ErrUnknownOption = errors.New("unknown option")

	// ErrUnsupportedOption is returned when a write selects an option the
	// caller's runtime cannot offer.
	ErrUnsupportedOption = errors.New("option not supported on this platform")
)

// Store defines the persistence operations the Manager needs.
// Implemented by storage.Store and storage.RedisStore.
type Store interface {
	GetPreference(ctx context.Context, key string) (string, error)
	SetPreference(ctx context.Context, key, value string) error
	DeletePreference(ctx context.Context, key string) error
	AllPreferences(ctx context.Context) (map[string]string, error)
	RecordChange(ctx context.Context, c storage.Change) error
	ListChanges(ctx context.Context, key string, limit int) ([]storage.Change, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Selection is the resolved value of one domain.
//
// Normalized is set when a stored value matched no option and the default
// was substituted.
type Selection struct {
	Key        string
	Option     preference.Option
	Raw        string // empty when nothing is stored
	Stored     bool
	Normalized bool
}

// Manager provides cached, typed access to the stored preferences.
type Manager struct {
	registry *preference.Registry
	store    Store
	clock    Clock
	ttl      time.Duration

	mu       sync.RWMutex
	cached   map[string]string
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(registry *preference.Registry, store Store) *Manager {
	return NewManagerWithClock(registry, store, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(registry *preference.Registry, store Store, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		registry: registry,
		store:    store,
		clock:    clock,
		ttl:      ttl,
	}
}

// Registry returns the schema the manager resolves against.
func (m *Manager) Registry() *preference.Registry {
	return m.registry
}

// raw returns the stored values, from cache while fresh.
func (m *Manager) raw(ctx context.Context) (map[string]string, error) {
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		vals := m.cached
		m.mu.RUnlock()
		return vals, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return m.cached, nil
	}

	vals, err := m.store.AllPreferences(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading preferences: %w", err)
	}
	m.cached = vals
	m.cachedAt = m.clock.Now()
	return vals, nil
}

func (m *Manager) resolve(key string, vals map[string]string) (Selection, error) {
	raw, stored := vals[key]
	opt, err := m.registry.Parse(key, raw)
	if err != nil {
		return Selection{}, err
	}
	sel := Selection{Key: key, Option: opt, Raw: raw, Stored: stored}
	switch {
	case !stored:
		readsTotal.WithLabelValues(key, "default").Inc()
	case opt.ID != raw:
		sel.Normalized = true
		readsTotal.WithLabelValues(key, "normalized").Inc()
		slog.Warn("stored preference value matches no option, using default",
			"key", key, "raw", raw, "default", opt.ID)
	default:
		readsTotal.WithLabelValues(key, "stored").Inc()
	}
	return sel, nil
}

// Get resolves the current option of the domain under key. A stored value
// that matches no option resolves to the default; it is not rewritten.
func (m *Manager) Get(ctx context.Context, key string) (Selection, error) {
	if _, err := m.registry.Domain(key); err != nil {
		return Selection{}, err
	}
	vals, err := m.raw(ctx)
	if err != nil {
		return Selection{}, err
	}
	return m.resolve(key, vals)
}

// Snapshot resolves every domain in registry order.
func (m *Manager) Snapshot(ctx context.Context) ([]Selection, error) {
	vals, err := m.raw(ctx)
	if err != nil {
		return nil, err
	}
	keys := m.registry.Keys()
	out := make([]Selection, 0, len(keys))
	for _, k := range keys {
		sel, err := m.resolve(k, vals)
		if err != nil {
			return nil, err
		}
		out = append(out, sel)
	}
	return out, nil
}

// Choices returns the options that may be offered for key under caps.
func (m *Manager) Choices(key string, caps preference.Capabilities) ([]preference.Option, error) {
	return m.registry.Supported(key, caps)
}

// Set stores id as the selected option of key. The option must exist and be
// supported under caps.
func (m *Manager) Set(ctx context.Context, key, id string, caps preference.Capabilities) (preference.Option, error) {
	if _, err := m.registry.Domain(key); err != nil {
		writesTotal.WithLabelValues("unknown_domain").Inc()
		return preference.Option{}, err
	}
	opt, ok := m.registry.Lookup(key, id)
	if !ok {
		writesTotal.WithLabelValues("unknown_option").Inc()
		return preference.Option{}, fmt.Errorf("%w %q for %s", ErrUnknownOption, id, key)
	}
	if !preference.IsSupported(opt, caps) {
		writesTotal.WithLabelValues("unsupported").Inc()
		return preference.Option{}, fmt.Errorf("%w: %s=%s needs platform %d, have %d",
			ErrUnsupportedOption, key, id, opt.Requires.MinPlatformVersion, caps.PlatformVersion)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old, err := m.current(ctx, key)
	if err != nil {
		return preference.Option{}, err
	}
	if err := m.store.SetPreference(ctx, key, opt.ID); err != nil {
		writesTotal.WithLabelValues("error").Inc()
		return preference.Option{}, fmt.Errorf("setting preference %q: %w", key, err)
	}
	m.cached = nil
	writesTotal.WithLabelValues("ok").Inc()

	if old != opt.ID {
		m.record(ctx, key, old, opt.ID)
	}
	slog.Debug("preference set", "key", key, "option", opt.ID)
	return opt, nil
}

// Reset removes the stored value of key so reads return the default.
func (m *Manager) Reset(ctx context.Context, key string) (preference.Option, error) {
	def, err := m.registry.Default(key)
	if err != nil {
		return preference.Option{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	old, err := m.current(ctx, key)
	if err != nil {
		return preference.Option{}, err
	}
	if err := m.store.DeletePreference(ctx, key); err != nil {
		return preference.Option{}, fmt.Errorf("resetting preference %q: %w", key, err)
	}
	m.cached = nil

	if old != "" {
		m.record(ctx, key, old, "")
	}
	return def, nil
}

// History returns up to limit recorded changes of key, newest first.
func (m *Manager) History(ctx context.Context, key string, limit int) ([]storage.Change, error) {
	if _, err := m.registry.Domain(key); err != nil {
		return nil, err
	}
	changes, err := m.store.ListChanges(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("listing changes for %q: %w", key, err)
	}
	return changes, nil
}

// current reads the stored raw value bypassing the cache. Callers hold mu.
func (m *Manager) current(ctx context.Context, key string) (string, error) {
	v, err := m.store.GetPreference(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading preference %q: %w", key, err)
	}
	return v, nil
}

// record writes a history entry. The value itself is already stored, so a
// failure here is logged rather than returned.
func (m *Manager) record(ctx context.Context, key, old, next string) {
	c := storage.Change{
		ID:        uuid.New().String(),
		Key:       key,
		OldValue:  old,
		NewValue:  next,
		ChangedAt: m.clock.Now().UTC(),
	}
	if err := m.store.RecordChange(ctx, c); err != nil {
		slog.Warn("failed to record preference change", "key", key, "error", err)
	}
}
