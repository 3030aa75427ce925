package memory

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/bdobrica/nutritrackr/common/redact"
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// MaxSessions bounds the number of live sessions; the least recently
	// used one is evicted when a new key arrives. Zero means unbounded.
	MaxSessions int

	// IdleTTL evicts sessions that have not been looked up for this long.
	// Zero means sessions never expire.
	IdleTTL time.Duration

	// Memory is applied to every new session; start from DefaultOptions or
	// WindowOptions.
	Memory Options

	// Condenser feeds every session's summary store. Nil selects
	// NoopCondenser.
	Condenser Condenser

	// OnCreate and OnEvict, when set, are called with the session after it
	// is created or evicted. OnEvict runs under the cache lock and must not
	// call back into the Registry.
	OnCreate func(*Session)
	OnEvict  func(*Session)

	Logger *slog.Logger
}

// Session is one conversation: a stable key and the memory that belongs to
// it. Lock/Unlock give callers exclusive use for a full respond cycle.
type Session struct {
	ID        string
	Key       string
	CreatedAt time.Time

	mu     sync.Mutex
	memory *Hybrid
}

// Lock acquires exclusive use of the session.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the session.
func (s *Session) Unlock() { s.mu.Unlock() }

// Memory returns the session's memory.
func (s *Session) Memory() *Hybrid { return s.memory }

// Registry maps session keys to sessions, creating them on first use.
// It is safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	cfg    RegistryConfig
	logger *slog.Logger
	cache  *expirable.LRU[string, *Session]
}

// NewRegistry returns an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Condenser == nil {
		cfg.Condenser = NoopCondenser{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &Registry{cfg: cfg, logger: cfg.Logger}
	r.cache = expirable.NewLRU[string, *Session](cfg.MaxSessions, r.evicted, cfg.IdleTTL)
	return r
}

// GetOrCreate returns the session for key, creating it exactly once.
// Every lookup refreshes the session's idle timer.
func (r *Registry) GetOrCreate(key string) (*Session, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrEmptySessionKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.cache.Get(key); ok {
		r.cache.Add(key, s)
		return s, nil
	}

	opts := r.cfg.Memory
	opts.Logger = r.logger.With("session", redact.Phone(key))
	s := &Session{
		ID:        uuid.NewString(),
		Key:       key,
		CreatedAt: time.Now(),
		memory:    NewHybrid(r.cfg.Condenser, opts),
	}
	r.cache.Add(key, s)

	r.logger.Debug("memory: session created", "session", redact.Phone(key), "session_id", s.ID)
	if r.cfg.OnCreate != nil {
		r.cfg.OnCreate(s)
	}
	return s, nil
}

// Get returns the session for key without creating it.
func (r *Registry) Get(key string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Peek(key)
}

// Remove drops the session for key. It reports whether one existed.
func (r *Registry) Remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Remove(key)
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}

func (r *Registry) evicted(key string, s *Session) {
	r.logger.Debug("memory: session evicted", "session", redact.Phone(key), "session_id", s.ID)
	if r.cfg.OnEvict != nil {
		r.cfg.OnEvict(s)
	}
}
