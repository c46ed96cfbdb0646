package gateway

import (
	"context"
	"strings"

	ws "github.com/Andy963/ads-sub001/pkg/websocket"
)

// handleCommand implements the gateway's own built-ins (spec.md §4.8:
// /cd, /pwd, /search, /agent, /clear_history) and routes everything else
// through the Command Router (C9). `/ads.review` is rewritten to its
// canonical `/ads.review --show` form, the only review sub-command exempt
// from the review lock besides `/ads.help`.
func (c *Client) handleCommand(ctx context.Context, frameID, line string) {
	line = strings.TrimSpace(line)
	if line == "/ads.review" {
		line = "/ads.review --show"
	}

	verb, rest := splitVerb(line)
	switch verb {
	case "/cd":
		c.cmdCd(ctx, frameID, rest)
	case "/pwd":
		c.cmdPwd(ctx, frameID)
	case "/search":
		c.cmdSearch(ctx, frameID, rest)
	case "/agent":
		c.cmdAgent(ctx, frameID, rest)
	case "/clear_history":
		c.handleClearHistory(ctx, frameID)
	default:
		// The Command Router registers its verbs without the `ads.` namespace.
		if strings.HasPrefix(line, "/ads.") {
			line = "/" + strings.TrimPrefix(line, "/ads.")
		}
		c.cmdRouted(ctx, frameID, line)
	}
}

func splitVerb(line string) (verb, rest string) {
	i := strings.IndexByte(line, ' ')
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i+1:])
}

func (c *Client) cmdCd(ctx context.Context, frameID, path string) {
	if path == "" {
		c.sendError(frameID, ws.ErrorCodeValidation, "/cd requires a path")
		return
	}
	gs, err := c.gw.sessionFor(ctx, c.SessionID)
	if err != nil {
		c.sendError(frameID, ws.ErrorCodeInternal, err.Error())
		return
	}
	if _, err := c.gw.toolsPolicy.ResolvePath(path); err != nil {
		c.sendError(frameID, ws.ErrorCodeToolPolicy, err.Error())
		return
	}
	if err := c.gw.setCwd(gs, c.SessionID, path); err != nil {
		c.sendError(frameID, ws.ErrorCodeInternal, err.Error())
		return
	}
	c.sendResult(frameID, true, "cwd set to "+path)
}

func (c *Client) cmdPwd(ctx context.Context, frameID string) {
	gs, err := c.gw.sessionFor(ctx, c.SessionID)
	if err != nil {
		c.sendError(frameID, ws.ErrorCodeInternal, err.Error())
		return
	}
	c.sendResult(frameID, true, gs.cwd)
}

// cmdSearch runs the workspace history search built-in: a plain substring
// scan over the session's persisted console history, not the `search`/
// `vsearch` tool-runtime collaborators (those are model-invoked, not
// operator-invoked).
func (c *Client) cmdSearch(ctx context.Context, frameID, query string) {
	if c.gw.st == nil {
		c.sendResult(frameID, true, "no history store configured")
		return
	}
	entries, err := c.gw.st.GetHistory(ctx, "web", c.SessionID)
	if err != nil {
		c.sendError(frameID, ws.ErrorCodeInternal, err.Error())
		return
	}
	var b strings.Builder
	matches := 0
	for _, e := range entries {
		if query == "" || strings.Contains(strings.ToLower(e.Text), strings.ToLower(query)) {
			b.WriteString(e.Role)
			b.WriteString(": ")
			b.WriteString(e.Text)
			b.WriteString("\n")
			matches++
		}
	}
	if matches == 0 {
		c.sendResult(frameID, true, "no matches")
		return
	}
	c.sendResult(frameID, true, b.String())
}

func (c *Client) cmdAgent(ctx context.Context, frameID, id string) {
	gs, err := c.gw.sessionFor(ctx, c.SessionID)
	if err != nil {
		c.sendError(frameID, ws.ErrorCodeInternal, err.Error())
		return
	}
	orch := gs.rt.Orchestrator()
	if id == "" {
		c.sendResult(frameID, true, strings.Join(orch.ListAgents(), ", ")+" (active: "+orch.ActiveAgentID()+")")
		return
	}
	if err := orch.SetActiveAgent(id); err != nil {
		c.sendError(frameID, ws.ErrorCodeValidation, err.Error())
		return
	}
	_ = c.gw.sessMgr.SaveThreadID(ctx, c.SessionID, orch.GetThreadID(), id)
	c.sendResult(frameID, true, "active agent set to "+id)
}

func (c *Client) cmdRouted(ctx context.Context, frameID, line string) {
	if c.gw.router == nil {
		c.sendError(frameID, ws.ErrorCodeValidation, "unknown command")
		return
	}
	ok, output, err := c.gw.router.Dispatch(ctx, c.gw.cfg.Workspace, line)
	if err != nil {
		c.sendError(frameID, ws.ErrorCodeInternal, err.Error())
		return
	}
	c.sendResult(frameID, ok, output)
}
