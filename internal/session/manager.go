package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Andy963/ads-sub001/internal/adapter"
	"github.com/Andy963/ads-sub001/internal/common/logger"
	"github.com/Andy963/ads-sub001/internal/orchestrator"
	"go.uber.org/zap"
)

// KVStore is the small persistence surface the manager needs for thread-id
// reuse and pending-prompt replay; *store.Store satisfies it structurally.
type KVStore interface {
	GetKV(ctx context.Context, namespace, key string) (string, bool, error)
	SetKV(ctx context.Context, namespace, key, value string, now time.Time) error
}

// AdapterFactory builds the set of adapters a fresh Runtime should register,
// in the order the session should expose them.
type AdapterFactory func() []adapter.Adapter

const threadStateNamespace = "session_thread"

type threadState struct {
	ThreadID string `json:"threadId"`
	AgentID  string `json:"agentId"`
}

// Runtime is one user's live orchestrator plus session-scoped state
// (spec.md §4.6).
type Runtime struct {
	UserID string

	mu           sync.Mutex
	orchestrator *orchestrator.Orchestrator
	log          *logger.Logger
}

// Orchestrator returns the runtime's orchestrator.
func (r *Runtime) Orchestrator() *orchestrator.Orchestrator {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orchestrator
}

// Logger returns the runtime's per-session logger.
func (r *Runtime) Logger() *logger.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log
}

// Manager owns the userId → Runtime mapping (spec.md §4.6 "Session Manager (C6)").
type Manager struct {
	mu       sync.RWMutex
	runtimes map[string]*Runtime

	factory AdapterFactory
	kv      KVStore
	baseLog *logger.Logger
}

// NewManager builds a Manager. kv may be nil, in which case thread-id
// persistence and pending-prompt replay are both no-ops.
func NewManager(factory AdapterFactory, kv KVStore, baseLog *logger.Logger) *Manager {
	return &Manager{
		runtimes: make(map[string]*Runtime),
		factory:  factory,
		kv:       kv,
		baseLog:  baseLog,
	}
}

// GetOrCreate returns the cached runtime for userID, or constructs a new
// orchestrator with the configured adapters. When resumeThread is true and
// a prior thread id was persisted, it is restored onto the active adapter.
func (m *Manager) GetOrCreate(ctx context.Context, userID, cwd string, resumeThread bool) (*Runtime, error) {
	m.mu.Lock()
	if rt, ok := m.runtimes[userID]; ok {
		m.mu.Unlock()
		if cwd != "" {
			rt.Orchestrator().SetWorkingDirectory(cwd)
		}
		return rt, nil
	}

	agents := m.factory()
	orch := orchestrator.New(agents...)
	if cwd != "" {
		orch.SetWorkingDirectory(cwd)
	}
	rt := &Runtime{
		UserID:       userID,
		orchestrator: orch,
		log:          m.ensureLoggerLocked(userID),
	}
	m.runtimes[userID] = rt
	m.mu.Unlock()

	if resumeThread && m.kv != nil {
		raw, ok, err := m.kv.GetKV(ctx, threadStateNamespace, userID)
		if err != nil {
			return rt, fmt.Errorf("session: load thread state for %s: %w", userID, err)
		}
		if ok {
			var st threadState
			if jerr := json.Unmarshal([]byte(raw), &st); jerr == nil && st.AgentID != "" {
				if err := orch.SetActiveAgent(st.AgentID); err == nil && st.ThreadID != "" {
					if a, ok := orch.Agent(st.AgentID); ok {
						_ = a.ResumeThread(ctx, st.ThreadID)
					}
				}
			}
		}
	}

	return rt, nil
}

// Reset tears down the runtime and its thread id for userID.
func (m *Manager) Reset(userID string) {
	m.mu.Lock()
	rt, ok := m.runtimes[userID]
	delete(m.runtimes, userID)
	m.mu.Unlock()
	if m.kv != nil {
		_ = m.kv.SetKV(context.Background(), threadStateNamespace, userID, "", time.Now())
	}
	if !ok {
		return
	}
	for _, id := range rt.Orchestrator().ListAgents() {
		if a, ok := rt.Orchestrator().Agent(id); ok {
			_ = a.Close()
		}
	}
}

// SaveThreadID persists (threadId, agentId) for userID for future resume.
func (m *Manager) SaveThreadID(ctx context.Context, userID, threadID, agentID string) error {
	if m.kv == nil {
		return nil
	}
	raw, err := json.Marshal(threadState{ThreadID: threadID, AgentID: agentID})
	if err != nil {
		return err
	}
	return m.kv.SetKV(ctx, threadStateNamespace, userID, string(raw), time.Now())
}

// SwitchAgent changes the active adapter for userID's runtime.
func (m *Manager) SwitchAgent(userID, agentID string) error {
	rt, ok := m.lookup(userID)
	if !ok {
		return fmt.Errorf("session: no runtime for user %s", userID)
	}
	return rt.Orchestrator().SetActiveAgent(agentID)
}

// EnsureLogger lazily opens a per-session logger, correlated by userID.
func (m *Manager) EnsureLogger(userID string) *logger.Logger {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLoggerLocked(userID)
}

func (m *Manager) ensureLoggerLocked(userID string) *logger.Logger {
	if rt, ok := m.runtimes[userID]; ok && rt.log != nil {
		return rt.log
	}
	base := m.baseLog
	if base == nil {
		base = logger.Default()
	}
	return base.WithFields(zap.String("user_id", userID))
}

// SetUserCwd updates the runtime's working directory and propagates it to
// the orchestrator.
func (m *Manager) SetUserCwd(userID, cwd string) error {
	rt, ok := m.lookup(userID)
	if !ok {
		return fmt.Errorf("session: no runtime for user %s", userID)
	}
	rt.Orchestrator().SetWorkingDirectory(cwd)
	return nil
}

func (m *Manager) lookup(userID string) (*Runtime, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.runtimes[userID]
	return rt, ok
}

// SavePendingPrompt persists the last unacknowledged prompt text for
// (namespace, sessionID) so a client reconnect can replay it.
func (m *Manager) SavePendingPrompt(ctx context.Context, namespace, sessionID, text string) error {
	if m.kv == nil {
		return nil
	}
	return m.kv.SetKV(ctx, namespace, sessionID, text, time.Now())
}

// TakePendingPrompt returns the pending prompt for (namespace, sessionID),
// if any.
func (m *Manager) TakePendingPrompt(ctx context.Context, namespace, sessionID string) (string, bool, error) {
	if m.kv == nil {
		return "", false, nil
	}
	return m.kv.GetKV(ctx, namespace, sessionID)
}

// ClearPendingPrompt empties the replay slot once the prompt has been
// acknowledged. The slot is overwritten with an empty string, not deleted, so
// a later TakePendingPrompt reports an empty prompt.
func (m *Manager) ClearPendingPrompt(ctx context.Context, namespace, sessionID string) error {
	if m.kv == nil {
		return nil
	}
	return m.kv.SetKV(ctx, namespace, sessionID, "", time.Now())
}
