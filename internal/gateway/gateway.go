// Package gateway is the WebSocket front door (C8): one live connection per
// session, authenticated by sub-protocol, streaming a supervisor turn's
// events to the client and persisting enough state to replay a pending
// prompt across a reconnect (spec.md §4.8).
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Andy963/ads-sub001/internal/adapter"
	"github.com/Andy963/ads-sub001/internal/collab"
	"github.com/Andy963/ads-sub001/internal/common/logger"
	"github.com/Andy963/ads-sub001/internal/session"
	"github.com/Andy963/ads-sub001/internal/store"
	"github.com/Andy963/ads-sub001/internal/tools"
	"go.uber.org/zap"
)

// CommandRouter dispatches slash commands the gateway does not handle
// itself to the Command Router (C9), decoupled the same way the tool
// runtime's AgentInvoker decouples from the orchestrator.
type CommandRouter interface {
	Dispatch(ctx context.Context, workspace, line string) (ok bool, output string, err error)
}

// reviewSafeCommands are allowed through the review lock (spec.md §4.8
// "Review lock").
var reviewSafeCommands = map[string]bool{
	"/ads.help":         true,
	"/ads.review --show": true,
}

// Config bundles the gateway's own tunables, read once from
// internal/common/config at startup.
type Config struct {
	Token       string
	MaxClients  int
	IdleMinutes int
	Workspace   string
	TempDir     string // workspace-scoped temp dir for image attachments
}

// Gateway owns the hub, per-session collaborator wiring, and history/KV
// persistence shared by every connection.
type Gateway struct {
	cfg     Config
	hub     *Hub
	log     *logger.Logger
	st      *store.Store
	sessMgr *session.Manager
	router  CommandRouter

	toolsPolicy tools.Policy

	mu       sync.Mutex
	sessions map[string]*gatewaySession

	reviewLocked bool
}

// gatewaySession is the per-sessionId bundle of collaborators a connected
// client drives: the session runtime (orchestrator), the tool runtime bound
// to the session's current working directory, and a collaboration engine
// wired to the same orchestrator for delegation.
type gatewaySession struct {
	rt     *session.Runtime
	tools  *tools.Runtime
	collab *collab.Engine
	cwd    string
}

// New builds a Gateway. toolsPolicy is the baseline policy; each session
// gets its own *tools.Runtime derived from it so /cd can narrow the
// workspace without mutating shared state.
func New(cfg Config, st *store.Store, sessMgr *session.Manager, toolsPolicy tools.Policy, router CommandRouter, log *logger.Logger) *Gateway {
	gw := &Gateway{
		cfg:         cfg,
		hub:         NewHub(cfg.MaxClients, log),
		log:         log.WithFields(zap.String("component", "gateway")),
		st:          st,
		sessMgr:     sessMgr,
		router:      router,
		toolsPolicy: toolsPolicy,
		sessions:    make(map[string]*gatewaySession),
	}
	return gw
}

// sessionFor returns (creating if needed) the gatewaySession for sessionID.
func (gw *Gateway) sessionFor(ctx context.Context, sessionID string) (*gatewaySession, error) {
	gw.mu.Lock()
	if gs, ok := gw.sessions[sessionID]; ok {
		gw.mu.Unlock()
		return gs, nil
	}
	gw.mu.Unlock()

	rt, err := gw.sessMgr.GetOrCreate(ctx, sessionID, gw.cfg.Workspace, true)
	if err != nil {
		return nil, fmt.Errorf("gateway: build session runtime: %w", err)
	}
	policy := gw.toolsPolicy
	policy.Workspace = gw.cfg.Workspace
	tr := tools.New(policy, rt.Orchestrator(), rt.Logger())
	ce := collab.New(collab.Config{}, rt.Orchestrator(), rt.Logger())

	gs := &gatewaySession{rt: rt, tools: tr, collab: ce, cwd: gw.cfg.Workspace}

	gw.mu.Lock()
	gw.sessions[sessionID] = gs
	gw.mu.Unlock()
	return gs, nil
}

// setCwd rebuilds the session's tool runtime against a new workspace root
// (spec.md §4.8 "/cd <path> switches the runtime cwd").
func (gw *Gateway) setCwd(gs *gatewaySession, sessionID, cwd string) error {
	if err := gw.sessMgr.SetUserCwd(sessionID, cwd); err != nil {
		return err
	}
	policy := gw.toolsPolicy
	policy.Workspace = cwd
	gs.tools = tools.New(policy, gs.rt.Orchestrator(), gs.rt.Logger())
	gs.cwd = cwd
	return nil
}

// runPrompt drives one turn: when the active agent is the supervisor
// ("codex") the prompt goes through the Collaboration Engine, otherwise it
// is sent to the active agent directly with no delegation. It then
// substitutes tool blocks in the final text, records the stripped text in
// history, and returns the substituted text as the `result` frame's output.
// Only the input's text reaches the agent; image parts are not forwarded.
// Every delta/command/plan/patch event the orchestrator fans out during the
// call is forwarded to onEvent as it happens (spec.md §4.8).
func (gw *Gateway) runPrompt(ctx context.Context, gs *gatewaySession, sessionID string, input adapter.Input, onEvent func(adapter.Event)) (string, error) {
	unsub := gs.rt.Orchestrator().OnEvent(onEvent)
	defer unsub()

	supervisor := orchestratorSupervisor{orch: gs.rt.Orchestrator()}
	prompt := inputText(input)

	var finalText string
	if gs.rt.Orchestrator().ActiveAgentID() == "codex" {
		result, err := gs.collab.Run(ctx, supervisor, prompt)
		if err != nil {
			return "", err
		}
		finalText = result.FinalText
	} else {
		text, err := supervisor.Send(ctx, prompt)
		if err != nil {
			return "", err
		}
		finalText = text
	}

	toolResult, err := gs.tools.Execute(ctx, finalText, tools.Hooks{})
	if err != nil {
		return "", err
	}

	if gw.st != nil {
		now := time.Now()
		_, _ = gw.st.AddHistoryEntry(ctx, store.HistoryEntry{
			Namespace: "web", SessionID: sessionID, Role: store.HistoryRoleUser, Text: prompt,
		}, now)
		_, _ = gw.st.AddHistoryEntry(ctx, store.HistoryEntry{
			Namespace: "web", SessionID: sessionID, Role: store.HistoryRoleAI, Text: toolResult.StrippedText,
		}, now)
	}

	return toolResult.ReplacedText, nil
}

// inputText flattens an Input into the plain text the Collaboration Engine
// parses delegation directives from; image parts carry no text of their own.
func inputText(in adapter.Input) string {
	if in.Text != "" || len(in.Parts) == 0 {
		return in.Text
	}
	for _, p := range in.Parts {
		if p.Text != "" {
			return p.Text
		}
	}
	return ""
}

// orchestratorSupervisor adapts the session orchestrator's active-agent
// Send call to collab.SupervisorClient.
type orchestratorSupervisor struct {
	orch interface {
		SendText(ctx context.Context, input adapter.Input, opts adapter.SendOptions) (string, error)
	}
}

func (s orchestratorSupervisor) Send(ctx context.Context, prompt string) (string, error) {
	return s.orch.SendText(ctx, adapter.Input{Text: prompt}, adapter.SendOptions{})
}
