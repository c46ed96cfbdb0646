package tools

import (
	"path/filepath"
	"strings"

	"github.com/Andy963/ads-sub001/internal/common/config"
)

// Policy is the Tool Runtime's enable flags and byte caps, read once at
// startup into a value type and never re-read per invocation (spec.md §9
// "Ambient process-environment options → typed configuration struct").
type Policy struct {
	EnableExec       bool
	EnableFileTools  bool
	EnableApplyPatch bool

	ExecAllowlist         []string
	ExecAllowlistDisabled bool
	ExecTimeoutMs         int64

	FileMaxBytes      int64
	FileMaxWriteBytes int64
	PatchMaxBytes     int64

	AllowedDirs []string
	Workspace   string
}

// NewPolicy builds a Policy from the process configuration.
func NewPolicy(toolsCfg config.ToolsConfig, wsCfg config.WorkspaceConfig) Policy {
	return Policy{
		EnableExec:            toolsCfg.EnableExec,
		EnableFileTools:       toolsCfg.EnableFileTools,
		EnableApplyPatch:      toolsCfg.EnableApplyPatch,
		ExecAllowlist:         toolsCfg.ExecAllowlist,
		ExecAllowlistDisabled: toolsCfg.ExecAllowlistDisabled(),
		ExecTimeoutMs:         toolsCfg.ExecTimeoutDuration().Milliseconds(),
		FileMaxBytes:          toolsCfg.FileMaxBytes,
		FileMaxWriteBytes:     toolsCfg.FileMaxWriteBytes,
		PatchMaxBytes:         toolsCfg.PatchMaxBytes,
		AllowedDirs:           wsCfg.AllowedDirs,
		Workspace:             wsCfg.Root,
	}
}

// ExecAllowed reports whether basename may be executed by the exec tool.
func (p Policy) ExecAllowed(basename string) bool {
	if p.ExecAllowlistDisabled {
		return true
	}
	for _, entry := range p.ExecAllowlist {
		if strings.EqualFold(strings.TrimSpace(entry), basename) {
			return true
		}
	}
	return false
}

// ResolvePath resolves rel against the workspace root and rejects any
// result outside the configured allow-list (spec.md §4.4 read/write/
// apply_patch path policy).
func (p Policy) ResolvePath(rel string) (string, error) {
	base := p.Workspace
	if base == "" {
		base = "."
	}
	abs := rel
	if !filepath.IsAbs(rel) {
		abs = filepath.Join(base, rel)
	}
	abs = filepath.Clean(abs)

	dirs := p.AllowedDirs
	if len(dirs) == 0 {
		dirs = []string{base}
	}
	for _, dir := range dirs {
		cleanDir := filepath.Clean(dir)
		if abs == cleanDir || strings.HasPrefix(abs, cleanDir+string(filepath.Separator)) {
			return abs, nil
		}
	}
	return "", &PolicyError{Reason: "path escapes allowed directories: " + rel}
}
