package command

import (
	"context"
	"encoding/json"
)

// Result is a handler's verdict: ok plus the text to surface to the caller.
type Result struct {
	OK     bool
	Output string
}

// Handler executes one parsed command against a workspace.
type Handler interface {
	Handle(ctx context.Context, workspace string, cmd Parsed) (Result, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, workspace string, cmd Parsed) (Result, error)

func (f HandlerFunc) Handle(ctx context.Context, workspace string, cmd Parsed) (Result, error) {
	return f(ctx, workspace, cmd)
}

// Router dispatches slash commands to handlers registered by verb, in the
// same registration-table shape as pkg/websocket's frame Dispatcher, applied
// to command verbs instead of wire frame types.
type Router struct {
	handlers map[string]Handler
}

// NewRouter builds a Router with every verb named in spec.md §4.9
// (init, branch, checkout, status, log, new, commit, rules, workspace,
// sync, review, skill.init, skill.validate, help) wired to its handler.
func NewRouter(deps Dependencies) *Router {
	r := &Router{handlers: make(map[string]Handler)}
	registerWorkspaceHandlers(r, deps)
	registerGitHandlers(r, deps)
	registerSkillHandlers(r, deps)
	r.Register("help", HandlerFunc(func(ctx context.Context, workspace string, cmd Parsed) (Result, error) {
		return Result{OK: true, Output: helpText}, nil
	}))
	return r
}

// Register wires a verb to a handler; a verb registered twice overwrites the
// prior handler.
func (r *Router) Register(verb string, h Handler) {
	r.handlers[verb] = h
}

// Dispatch parses line and runs its handler. It satisfies
// internal/gateway.CommandRouter.
func (r *Router) Dispatch(ctx context.Context, workspace, line string) (bool, string, error) {
	cmd, err := Parse(line)
	if err != nil {
		return false, "", err
	}
	h, ok := r.handlers[cmd.Verb]
	if !ok {
		return false, "", ErrUnknownCommand
	}
	result, err := h.Handle(ctx, workspace, cmd)
	if err != nil {
		return false, "", err
	}
	return result.OK, reformatIfErrorJSON(result.Output), nil
}

// reformatIfErrorJSON rewrites a handler output that is a JSON object
// carrying an "error" field into a plain error line; any other output,
// JSON or not, passes through unchanged.
func reformatIfErrorJSON(output string) string {
	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(output), &probe); err != nil || probe.Error == "" {
		return output
	}
	return "error: " + probe.Error
}

const helpText = `available commands: init, branch, checkout, status, log, new, commit, rules, workspace, sync, review, skill.init, skill.validate, help`
