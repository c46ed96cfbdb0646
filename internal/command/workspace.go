package command

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const rulesFileName = ".ads/RULES.md"

// registerWorkspaceHandlers wires the remaining non-git verbs named in
// spec.md §4.9: new, rules, workspace, sync, review.
func registerWorkspaceHandlers(r *Router, deps Dependencies) {
	r.Register("new", HandlerFunc(func(ctx context.Context, workspace string, cmd Parsed) (Result, error) {
		return handleNewTask(ctx, workspace, cmd, deps)
	}))
	r.Register("rules", HandlerFunc(handleRules))
	r.Register("workspace", HandlerFunc(handleWorkspace))
	r.Register("sync", HandlerFunc(handleSync))
	r.Register("review", HandlerFunc(func(ctx context.Context, workspace string, cmd Parsed) (Result, error) {
		return handleReview(ctx, workspace, cmd, deps)
	}))
}

func handleNewTask(ctx context.Context, workspace string, cmd Parsed, deps Dependencies) (Result, error) {
	if deps.NewTask == nil {
		return Result{}, &ValidationError{Reason: "task creation is not wired for this router"}
	}
	prompt := strings.Join(cmd.Positional, " ")
	if prompt == "" {
		return Result{}, &ValidationError{Reason: "new requires a prompt"}
	}
	title := cmd.Params["title"]
	if title == "" {
		title = truncateTitle(prompt)
	}
	id, err := deps.NewTask(ctx, workspace, title, prompt)
	if err != nil {
		return Result{}, err
	}
	return Result{OK: true, Output: "created task " + id}, nil
}

func truncateTitle(prompt string) string {
	runes := []rune(strings.TrimSpace(strings.SplitN(prompt, "\n", 2)[0]))
	const max = 32
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "…"
}

// handleRules reads or overwrites the workspace's project rules file;
// `rules` alone prints the current contents, `rules --set=<text>` replaces
// them.
func handleRules(ctx context.Context, workspace string, cmd Parsed) (Result, error) {
	path := filepath.Join(workspace, rulesFileName)
	if text, ok := cmd.Params["set"]; ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return Result{}, fmt.Errorf("command: write rules: %w", err)
		}
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			return Result{}, fmt.Errorf("command: write rules: %w", err)
		}
		return Result{OK: true, Output: "rules updated"}, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Result{OK: true, Output: "no rules file yet"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("command: read rules: %w", err)
	}
	return Result{OK: true, Output: string(data)}, nil
}

func handleWorkspace(ctx context.Context, workspace string, cmd Parsed) (Result, error) {
	return Result{OK: true, Output: "workspace root: " + workspace}, nil
}

func handleSync(ctx context.Context, workspace string, cmd Parsed) (Result, error) {
	if res, err := runGit(ctx, workspace, "fetch", "--all"); err != nil || !res.OK {
		return res, err
	}
	return runGit(ctx, workspace, "pull", "--ff-only")
}

func handleReview(ctx context.Context, workspace string, cmd Parsed, deps Dependencies) (Result, error) {
	if _, show := cmd.Params["show"]; show || len(cmd.Positional) == 0 {
		locked := false
		if deps.ReviewLocked != nil {
			locked = deps.ReviewLocked()
		}
		return Result{OK: true, Output: fmt.Sprintf("review lock: %v", locked)}, nil
	}
	if deps.SetReviewLocked == nil {
		return Result{}, &ValidationError{Reason: "review lock is not wired for this router"}
	}
	switch cmd.Positional[0] {
	case "start":
		deps.SetReviewLocked(true)
		return Result{OK: true, Output: "review started, command surface locked"}, nil
	case "stop", "done":
		deps.SetReviewLocked(false)
		return Result{OK: true, Output: "review finished, command surface unlocked"}, nil
	default:
		return Result{}, &ValidationError{Reason: "review: unknown sub-command " + cmd.Positional[0]}
	}
}
