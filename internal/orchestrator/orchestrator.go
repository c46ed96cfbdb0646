// Package orchestrator maintains the registry of agent adapters for one
// session, the active-agent selection, working-directory propagation, and
// event fan-out to subscribers (spec.md §4.3).
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Andy963/ads-sub001/internal/adapter"
)

// Handler receives every event the active adapter emits during a Send call.
type Handler func(adapter.Event)

// Unsubscribe removes a previously registered Handler.
type Unsubscribe func()

// Orchestrator is scoped to one session: a registry of adapters, an active
// adapter id, and the current working directory (spec.md §4.3).
type Orchestrator struct {
	mu       sync.RWMutex
	agents   map[string]adapter.Adapter
	order    []string
	active   string
	cwd      string
	threadID string

	subMu sync.Mutex
	subs  map[int]Handler
	nextSubID int
}

// New builds an Orchestrator over the given adapters, activating the first
// by registration order.
func New(agents ...adapter.Adapter) *Orchestrator {
	o := &Orchestrator{
		agents: make(map[string]adapter.Adapter, len(agents)),
		subs:   make(map[int]Handler),
	}
	for _, a := range agents {
		o.agents[a.ID()] = a
		o.order = append(o.order, a.ID())
	}
	if len(o.order) > 0 {
		o.active = o.order[0]
	}
	return o
}

// ListAgents returns every registered adapter id in registration order.
func (o *Orchestrator) ListAgents() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// HasAgent reports whether id is registered.
func (o *Orchestrator) HasAgent(id string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, ok := o.agents[id]
	return ok
}

// Agent returns the registered adapter for id, if any.
func (o *Orchestrator) Agent(id string) (adapter.Adapter, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	a, ok := o.agents[id]
	return a, ok
}

// SetActiveAgent switches the active adapter; fails if id is not registered.
func (o *Orchestrator) SetActiveAgent(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.agents[id]; !ok {
		return fmt.Errorf("orchestrator: unknown agent %q", id)
	}
	o.active = id
	return nil
}

// ActiveAgentID returns the currently active adapter id.
func (o *Orchestrator) ActiveAgentID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.active
}

// SetWorkingDirectory updates the cwd propagated to subsequent Send calls.
func (o *Orchestrator) SetWorkingDirectory(cwd string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cwd = cwd
}

// WorkingDirectory returns the current cwd.
func (o *Orchestrator) WorkingDirectory() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cwd
}

// GetThreadID returns the thread id last observed from the active adapter.
func (o *Orchestrator) GetThreadID() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.threadID
}

// Status reports readiness for every registered adapter.
func (o *Orchestrator) Status(ctx context.Context) map[string]adapter.Status {
	o.mu.RLock()
	agents := make([]adapter.Adapter, 0, len(o.agents))
	for _, a := range o.agents {
		agents = append(agents, a)
	}
	o.mu.RUnlock()

	out := make(map[string]adapter.Status, len(agents))
	for _, a := range agents {
		out[a.ID()] = a.Status(ctx)
	}
	return out
}

// OnEvent registers a handler invoked for every event fanned out by Send or
// InvokeAgent; handler panics/errors never abort the stream (spec.md §4.3).
func (o *Orchestrator) OnEvent(h Handler) Unsubscribe {
	o.subMu.Lock()
	id := o.nextSubID
	o.nextSubID++
	o.subs[id] = h
	o.subMu.Unlock()
	return func() {
		o.subMu.Lock()
		delete(o.subs, id)
		o.subMu.Unlock()
	}
}

func (o *Orchestrator) fanOut(ev adapter.Event) {
	o.subMu.Lock()
	ids := make([]int, 0, len(o.subs))
	for id := range o.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, o.subs[id])
	}
	o.subMu.Unlock()
	for _, h := range handlers {
		func() {
			defer func() { _ = recover() }()
			h(ev)
		}()
	}
}

// Send forwards input to the active adapter and fans every event to
// subscribers in registration order, updating the cached thread id as it
// observes it.
func (o *Orchestrator) Send(ctx context.Context, input adapter.Input, opts adapter.SendOptions) (<-chan adapter.Event, error) {
	o.mu.RLock()
	activeID := o.active
	a, ok := o.agents[activeID]
	cwd := o.cwd
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("orchestrator: no active agent registered")
	}
	if opts.Cwd == "" {
		opts.Cwd = cwd
	}

	upstream, err := a.Send(ctx, input, opts)
	if err != nil {
		return nil, err
	}
	out := make(chan adapter.Event, 16)
	go func() {
		defer close(out)
		for ev := range upstream {
			if ev.ThreadID != "" {
				o.mu.Lock()
				o.threadID = ev.ThreadID
				o.mu.Unlock()
			}
			o.fanOut(ev)
			out <- ev
		}
	}()
	return out, nil
}

// InvokeAgent sends input to a specific registered adapter (used by the
// Collaboration Engine's delegation and the tool runtime's "agent" tool),
// without changing the active adapter.
func (o *Orchestrator) InvokeAgent(ctx context.Context, id string, input adapter.Input, opts adapter.SendOptions) (<-chan adapter.Event, error) {
	o.mu.RLock()
	a, ok := o.agents[id]
	cwd := o.cwd
	o.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("orchestrator: unknown agent %q", id)
	}
	if opts.Cwd == "" {
		opts.Cwd = cwd
	}
	upstream, err := a.Send(ctx, input, opts)
	if err != nil {
		return nil, err
	}
	out := make(chan adapter.Event, 16)
	go func() {
		defer close(out)
		for ev := range upstream {
			o.fanOut(ev)
			out <- ev
		}
	}()
	return out, nil
}

// SendText sends input to the active adapter and drains its event stream
// into one string, for callers (the Collaboration Engine's top-level
// supervisor turn) that want the full response rather than incremental
// deltas. Subscribers registered via OnEvent still observe every event as
// it is produced, so streaming to a connected client and collecting the
// full text happen off the same Send call.
func (o *Orchestrator) SendText(ctx context.Context, input adapter.Input, opts adapter.SendOptions) (string, error) {
	events, err := o.Send(ctx, input, opts)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for ev := range events {
		switch ev.Phase {
		case adapter.PhaseDelta:
			b.WriteString(ev.Text)
		case adapter.PhaseDone:
			if ev.Output != "" {
				return ev.Output, nil
			}
		case adapter.PhaseError:
			return "", ev.Err
		}
	}
	return b.String(), nil
}

// InvokeAgentText drains InvokeAgent's event stream into one string,
// satisfying the small AgentInvoker/Delegate interfaces the Tool Runtime's
// "agent" tool and the Collaboration Engine use to reach other adapters
// without a back-reference to the orchestrator (spec.md §9).
func (o *Orchestrator) InvokeAgentText(ctx context.Context, id, prompt string) (string, error) {
	events, err := o.InvokeAgent(ctx, id, adapter.Input{Text: prompt}, adapter.SendOptions{})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for ev := range events {
		switch ev.Phase {
		case adapter.PhaseDelta:
			b.WriteString(ev.Text)
		case adapter.PhaseDone:
			if ev.Output != "" {
				return ev.Output, nil
			}
		case adapter.PhaseError:
			return "", ev.Err
		}
	}
	return b.String(), nil
}
