package storefront

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/abgdnv/storefront/internal/cart"
	"github.com/abgdnv/storefront/internal/currency"
	"github.com/abgdnv/storefront/internal/storage"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Session is the live state of one visitor.
type Session struct {
	ID         string
	Cart       *cart.Store
	Preference *currency.Preference
}

// SessionsConfig holds what every new session is built from.
type SessionsConfig struct {
	Size          int
	BaseCurrency  string
	DefaultLocale string
}

// entry is a cached session and the number of callers currently holding it.
type entry struct {
	sess *Session
	refs int
}

// Sessions keeps recently used sessions in memory, at most one live session per id.
// A session evicted while a caller still holds it stays pinned until released, and a
// later Get returns that same session. Sessions evicted with no holders are reloaded
// from storage on next use.
type Sessions struct {
	mu       sync.Mutex
	cache    *lru.Cache[string, *entry]
	pinned   map[string]*entry
	loads    singleflight.Group
	storage  storage.Storage
	table    *currency.Table
	detector currency.Detector
	cfg      SessionsConfig
	onCreate func(*Session)
	logger   *slog.Logger
}

// NewSessions creates the registry. onCreate, when set, runs once for every session loaded.
func NewSessions(cfg SessionsConfig, st storage.Storage, table *currency.Table, detector currency.Detector, onCreate func(*Session), logger *slog.Logger) (*Sessions, error) {
	s := &Sessions{
		pinned:   make(map[string]*entry),
		storage:  st,
		table:    table,
		detector: detector,
		cfg:      cfg,
		onCreate: onCreate,
		logger:   logger.With("component", "sessions"),
	}
	// runs from cache.Add, which is only called with s.mu held
	cache, err := lru.NewWithEvict[string, *entry](cfg.Size, func(id string, e *entry) {
		if e.refs > 0 {
			s.pinned[id] = e
			return
		}
		s.logger.Debug("Session evicted from memory", "session_id", id)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// Get returns the session, loading its persisted state on first use. The caller must call
// release once it is done with the session. Loading happens outside the registry lock, and
// concurrent first uses of the same id share one load.
func (s *Sessions) Get(ctx context.Context, id string) (sess *Session, release func()) {
	for {
		s.mu.Lock()
		e := s.acquireLocked(id)
		s.mu.Unlock()
		if e != nil {
			var once sync.Once
			return e.sess, func() { once.Do(func() { s.release(id, e) }) }
		}
		// the loaded entry may be evicted unheld before we acquire it, in which case we load again
		_, _, _ = s.loads.Do(id, func() (any, error) {
			s.load(context.WithoutCancel(ctx), id)
			return nil, nil
		})
	}
}

func (s *Sessions) acquireLocked(id string) *entry {
	if e, ok := s.cache.Get(id); ok {
		e.refs++
		return e
	}
	e, ok := s.pinned[id]
	if !ok {
		return nil
	}
	delete(s.pinned, id)
	e.refs++
	s.cache.Add(id, e)
	return e
}

// load builds the session from storage and caches it, unless another one got there first.
func (s *Sessions) load(ctx context.Context, id string) {
	sess := &Session{
		ID:         id,
		Cart:       cart.NewStore(ctx, s.storage, id, s.cfg.BaseCurrency, s.logger),
		Preference: currency.NewPreference(s.storage, id, s.table, s.detector, s.cfg.DefaultLocale, s.logger),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cache.Contains(id) {
		return
	}
	if _, ok := s.pinned[id]; ok {
		return
	}
	if s.onCreate != nil {
		s.onCreate(sess)
	}
	s.cache.Add(id, &entry{sess: sess})
}

func (s *Sessions) release(id string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.refs--
	if e.refs == 0 && s.pinned[id] == e {
		delete(s.pinned, id)
		s.logger.Debug("Session evicted from memory", "session_id", id)
	}
}

// Len reports how many sessions are held in memory, including evicted ones still in use.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cache.Len() + len(s.pinned)
}
