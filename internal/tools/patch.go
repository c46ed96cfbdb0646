package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

var diffPathPattern = regexp.MustCompile(`(?m)^(?:---|\+\+\+) (?:a/|b/)?(.+)$`)

// runApplyPatch implements the `apply_patch` tool (spec.md §4.4): applies a
// unified diff against the workspace via `git apply`, rejecting any hunk
// that touches a path outside the workspace (absolute or `../`-escaping).
func (r *Runtime) runApplyPatch(ctx context.Context, payload string) (string, error) {
	if !r.policy.EnableApplyPatch {
		return "", &DisabledError{Tool: "apply_patch"}
	}
	if int64(len(payload)) > r.policy.PatchMaxBytes {
		return "", &PolicyError{Reason: fmt.Sprintf("apply_patch: patch %d bytes exceeds cap %d bytes", len(payload), r.policy.PatchMaxBytes)}
	}
	if err := rejectEscapingPaths(payload); err != nil {
		return "", err
	}

	workspace := r.policy.Workspace
	if workspace == "" {
		workspace = "."
	}

	cmd := exec.CommandContext(ctx, "git", "apply", "--whitespace=nowarn", "--directory", workspace, "-")
	cmd.Stdin = strings.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &ExecutionError{Tool: "apply_patch", Err: fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)}
	}

	files := changedFiles(payload)
	return fmt.Sprintf("🩹 patch applied (%d file(s)): %s", len(files), strings.Join(files, ", ")), nil
}

func rejectEscapingPaths(patch string) error {
	for _, m := range diffPathPattern.FindAllStringSubmatch(patch, -1) {
		p := strings.TrimSpace(m[1])
		if p == "/dev/null" {
			continue
		}
		if filepath.IsAbs(p) || strings.Contains(p, "..") {
			return &PolicyError{Reason: "apply_patch: path escapes workspace: " + p}
		}
	}
	return nil
}

func changedFiles(patch string) []string {
	seen := map[string]bool{}
	var files []string
	for _, m := range diffPathPattern.FindAllStringSubmatch(patch, -1) {
		p := strings.TrimSpace(m[1])
		if p == "/dev/null" || seen[p] {
			continue
		}
		seen[p] = true
		files = append(files, p)
	}
	return files
}
