package session

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/careassist/hospital-assistant/internal/store"
)

// Manager keeps one orchestrator per user context, created and restored
// on first use.
type Manager struct {
	store  store.Store
	engine Replier
	opts   []Option
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]*entry
}

// entry restores its orchestrator exactly once. Callers wait on restored
// rather than on the registry lock.
type entry struct {
	orchestrator *Orchestrator
	restored     sync.Once
}

// NewManager creates a registry. opts are applied to every orchestrator it
// creates.
func NewManager(st store.Store, engine Replier, logger *zap.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:   st,
		engine:  engine,
		opts:    opts,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Get returns the orchestrator for userID, restoring it from the store
// the first time it is requested. The restore ignores ctx cancellation so
// an aborted first request cannot cache an empty session.
func (m *Manager) Get(ctx context.Context, userID string) *Orchestrator {
	e := m.entry(Namespace(userID))
	e.restored.Do(func() {
		e.orchestrator.Restore(context.WithoutCancel(ctx))
	})
	return e.orchestrator
}

func (m *Manager) entry(userID string) *entry {
	m.mu.RLock()
	e, exists := m.entries[userID]
	m.mu.RUnlock()
	if exists {
		return e
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, exists := m.entries[userID]; exists {
		return e
	}

	opts := append([]Option{WithLogger(m.logger)}, m.opts...)
	e = &entry{orchestrator: New(userID, m.store, m.engine, opts...)}
	m.entries[userID] = e

	m.logger.Debug("session orchestrator created", zap.String("user", userID))
	return e
}

// Remove drops the in-memory orchestrator for userID. Persisted state is kept.
func (m *Manager) Remove(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, Namespace(userID))
}

// Len reports the number of live orchestrators
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Namespace turns a user context into a store key prefix. Blank ids map
// to "anonymous" and colons are replaced so they cannot forge other keys.
func Namespace(userID string) string {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "anonymous"
	}
	return strings.ReplaceAll(userID, ":", "_")
}
