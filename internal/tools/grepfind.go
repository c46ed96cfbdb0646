package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

type grepRequest struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
}

// runGrep is a thin wrapper over ripgrep, scoped to the workspace.
func (r *Runtime) runGrep(ctx context.Context, payload string) (string, error) {
	if !r.policy.EnableFileTools {
		return "", &DisabledError{Tool: "grep"}
	}
	req, err := parseGrepRequest(payload)
	if err != nil {
		return "", err
	}
	if req.Pattern == "" {
		return "", &PolicyError{Reason: "grep: pattern is required"}
	}

	searchPath := req.Path
	if searchPath == "" {
		searchPath = "."
	}
	abs, err := r.policy.ResolvePath(searchPath)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, "rg", "--line-number", "--no-heading", "--max-count", "200", req.Pattern, abs)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if runErr != nil {
		if cmd.ProcessState != nil && cmd.ProcessState.ExitCode() == 1 {
			return fmt.Sprintf("🔍 no matches for %q in %s", req.Pattern, searchPath), nil
		}
		return "", &ExecutionError{Tool: "grep", Err: fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), runErr)}
	}
	return fmt.Sprintf("🔍 %s\n```\n%s\n```", req.Pattern, capOutput(stdout.String(), execMaxOutputBytes)), nil
}

func parseGrepRequest(payload string) (grepRequest, error) {
	trimmed := strings.TrimSpace(payload)
	var req grepRequest
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
			return grepRequest{}, &PolicyError{Reason: "invalid grep payload: " + err.Error()}
		}
		return req, nil
	}
	return grepRequest{Pattern: trimmed}, nil
}

type findRequest struct {
	Glob string `json:"glob"`
	Path string `json:"path"`
}

// runFind is a thin wrapper listing files by glob under the workspace.
func (r *Runtime) runFind(ctx context.Context, payload string) (string, error) {
	if !r.policy.EnableFileTools {
		return "", &DisabledError{Tool: "find"}
	}
	req, err := parseFindRequest(payload)
	if err != nil {
		return "", err
	}
	if req.Glob == "" {
		return "", &PolicyError{Reason: "find: glob is required"}
	}

	searchPath := req.Path
	if searchPath == "" {
		searchPath = "."
	}
	abs, err := r.policy.ResolvePath(searchPath)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, "rg", "--files", "--glob", req.Glob, abs)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if runErr != nil {
		if cmd.ProcessState != nil && cmd.ProcessState.ExitCode() == 1 {
			return fmt.Sprintf("📁 no files matched %q", req.Glob), nil
		}
		return "", &ExecutionError{Tool: "find", Err: fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), runErr)}
	}
	return fmt.Sprintf("📁 %s\n```\n%s\n```", req.Glob, capOutput(stdout.String(), execMaxOutputBytes)), nil
}

func parseFindRequest(payload string) (findRequest, error) {
	trimmed := strings.TrimSpace(payload)
	var req findRequest
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
			return findRequest{}, &PolicyError{Reason: "invalid find payload: " + err.Error()}
		}
		return req, nil
	}
	return findRequest{Glob: trimmed}, nil
}
