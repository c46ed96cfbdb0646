package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

type agentRequest struct {
	Agent  string `json:"agent"`
	Prompt string `json:"prompt"`
}

func parseAgentRequest(payload string) (agentRequest, error) {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "{") {
		var req agentRequest
		if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
			return agentRequest{}, &PolicyError{Reason: "invalid agent payload: " + err.Error()}
		}
		return req, nil
	}
	if id, prompt, ok := strings.Cut(trimmed, ":"); ok {
		return agentRequest{Agent: strings.TrimSpace(id), Prompt: strings.TrimSpace(prompt)}, nil
	}
	return agentRequest{}, &PolicyError{Reason: "agent: expected {agent, prompt} or \"<agent>: <prompt>\""}
}

// runAgent implements the `agent` tool (spec.md §4.4): delegates to another
// registered adapter via the callback supplied at Runtime construction,
// avoiding a direct dependency on the orchestrator.
func (r *Runtime) runAgent(ctx context.Context, payload string) (string, error) {
	if r.invoker == nil {
		return "", &DisabledError{Tool: "agent"}
	}
	req, err := parseAgentRequest(payload)
	if err != nil {
		return "", err
	}
	if req.Agent == "" || req.Prompt == "" {
		return "", &PolicyError{Reason: "agent: both agent id and prompt are required"}
	}

	out, err := r.invoker.InvokeAgentText(ctx, req.Agent, req.Prompt)
	if err != nil {
		return "", &ExecutionError{Tool: "agent", Err: err}
	}
	return fmt.Sprintf("🤝 %s: %s", req.Agent, out), nil
}
