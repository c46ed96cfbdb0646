package adapter

import (
	"context"
)

// ScriptedEvent is one event a MockAdapter replays, grounded on the
// teacher's scripted-scenario idea in cmd/mock-agent.
type ScriptedEvent = Event

// MockAdapter replays a fixed sequence of events for one or more Send calls,
// used by the end-to-end scenario tests (spec.md §8) and anywhere a real CLI
// backend is unavailable.
type MockAdapter struct {
	id, name string
	script   []ScriptedEvent
	ready    bool
	sent     []Input
}

// NewMockAdapter builds a MockAdapter that replays script on every Send call.
func NewMockAdapter(id, name string, script []ScriptedEvent) *MockAdapter {
	return &MockAdapter{id: id, name: name, script: script, ready: true}
}

func (m *MockAdapter) ID() string   { return m.id }
func (m *MockAdapter) Name() string { return m.name }

func (m *MockAdapter) Status(ctx context.Context) Status {
	return Status{Ready: m.ready}
}

func (m *MockAdapter) SetReady(ready bool) { m.ready = ready }

// Sent returns every Input passed to Send, for test assertions.
func (m *MockAdapter) Sent() []Input { return m.sent }

func (m *MockAdapter) ResumeThread(ctx context.Context, threadID string) error { return nil }

func (m *MockAdapter) Close() error { return nil }

// Send replays the scripted events on a buffered channel, honoring ctx
// cancellation by emitting a PhaseError(ErrCancelled) and stopping early.
func (m *MockAdapter) Send(ctx context.Context, input Input, opts SendOptions) (<-chan Event, error) {
	m.sent = append(m.sent, input)
	events := make(chan Event, len(m.script)+1)
	go func() {
		defer close(events)
		for _, ev := range m.script {
			if ctx.Err() != nil {
				events <- Event{Phase: PhaseError, Err: ErrCancelled}
				return
			}
			events <- ev
			if ev.Phase == PhaseDone || ev.Phase == PhaseError {
				return
			}
		}
	}()
	return events, nil
}
