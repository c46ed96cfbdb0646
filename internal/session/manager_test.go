package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Andy963/ads-sub001/internal/adapter"
)

type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: make(map[string]string)} }

func kvKey(namespace, k string) string { return namespace + "\x00" + k }

func (m *memKV) GetKV(ctx context.Context, namespace, k string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[kvKey(namespace, k)]
	return v, ok, nil
}

func (m *memKV) SetKV(ctx context.Context, namespace, k, value string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[kvKey(namespace, k)] = value
	return nil
}

func factoryWithMock() AdapterFactory {
	return func() []adapter.Adapter {
		return []adapter.Adapter{adapter.NewMockAdapter("claude", "Claude", nil)}
	}
}

func TestGetOrCreateCachesRuntimePerUser(t *testing.T) {
	m := NewManager(factoryWithMock(), newMemKV(), nil)

	rt1, err := m.GetOrCreate(context.Background(), "u1", "/work", false)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	rt2, err := m.GetOrCreate(context.Background(), "u1", "/work", false)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if rt1 != rt2 {
		t.Fatal("expected cached runtime to be reused")
	}
}

func TestResetTearsDownRuntime(t *testing.T) {
	m := NewManager(factoryWithMock(), newMemKV(), nil)
	rt1, _ := m.GetOrCreate(context.Background(), "u1", "/work", false)

	m.Reset("u1")

	rt2, err := m.GetOrCreate(context.Background(), "u1", "/work", false)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if rt1 == rt2 {
		t.Fatal("expected a fresh runtime after Reset")
	}
}

func TestSaveAndResumeThreadID(t *testing.T) {
	kv := newMemKV()
	m := NewManager(factoryWithMock(), kv, nil)

	if err := m.SaveThreadID(context.Background(), "u1", "thread-123", "claude"); err != nil {
		t.Fatalf("SaveThreadID: %v", err)
	}

	rt, err := m.GetOrCreate(context.Background(), "u1", "/work", true)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if rt.Orchestrator().ActiveAgentID() != "claude" {
		t.Fatalf("ActiveAgentID = %q, want claude", rt.Orchestrator().ActiveAgentID())
	}
}

func TestPendingPromptRoundTrip(t *testing.T) {
	m := NewManager(factoryWithMock(), newMemKV(), nil)
	ctx := context.Background()

	if err := m.SavePendingPrompt(ctx, "ns", "sess-1", "do the thing"); err != nil {
		t.Fatalf("SavePendingPrompt: %v", err)
	}
	got, ok, err := m.TakePendingPrompt(ctx, "ns", "sess-1")
	if err != nil {
		t.Fatalf("TakePendingPrompt: %v", err)
	}
	if !ok || got != "do the thing" {
		t.Fatalf("got %q, %v, want %q, true", got, ok, "do the thing")
	}

	if err := m.ClearPendingPrompt(ctx, "ns", "sess-1"); err != nil {
		t.Fatalf("ClearPendingPrompt: %v", err)
	}
	got, ok, _ = m.TakePendingPrompt(ctx, "ns", "sess-1")
	if ok && got != "" {
		t.Fatalf("expected cleared prompt, got %q", got)
	}
}
