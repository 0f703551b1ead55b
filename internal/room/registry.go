package room

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Registry maps room keys to live actors, creating each actor lazily on
// first reference and retaining it for the process lifetime. Session state
// is in-memory only: losing it on process restart is an accepted failure
// mode, and clients reconnect.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*Actor
	clock  func() time.Time
	nextID func() string
	logger *zap.Logger
}

// RegistryConfig captures optional registry dependencies.
type RegistryConfig struct {
	Clock     func() time.Time
	SessionID func() string
	Logger    *zap.Logger
}

// NewRegistry constructs an empty room registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	nextID := cfg.SessionID
	if nextID == nil {
		nextID = uuid.NewString
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		rooms:  make(map[string]*Actor),
		clock:  clock,
		nextID: nextID,
		logger: logger,
	}
}

// GetOrCreate returns the actor serving the key, creating it on first
// access. Concurrent first-access callers observe a single actor per key.
func (r *Registry) GetOrCreate(key string) *Actor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if actor, ok := r.rooms[key]; ok {
		return actor
	}
	actor := newActor(key, r.clock, r.nextID, r.logger)
	r.rooms[key] = actor
	r.logger.Debug("room created", zap.String("room", key))
	return actor
}

// BroadcastEvent fans a server event out to every session of the keyed room.
func (r *Registry) BroadcastEvent(key string, event map[string]any) {
	r.GetOrCreate(key).BroadcastEvent(event)
}
