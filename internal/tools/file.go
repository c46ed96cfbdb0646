package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

type readRequest struct {
	Path      string   `json:"path"`
	Paths     []string `json:"paths"`
	StartLine int      `json:"startLine"`
	EndLine   int      `json:"endLine"`
	MaxBytes  int64    `json:"maxBytes"`
}

func parseReadPayload(payload string) (readRequest, error) {
	trimmed := strings.TrimSpace(payload)
	var req readRequest
	if strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal([]byte(trimmed), &req); err != nil {
			return readRequest{}, &PolicyError{Reason: "invalid read payload: " + err.Error()}
		}
		return req, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var paths []string
		if err := json.Unmarshal([]byte(trimmed), &paths); err != nil {
			return readRequest{}, &PolicyError{Reason: "invalid read payload: " + err.Error()}
		}
		return readRequest{Paths: paths}, nil
	}
	return readRequest{Path: trimmed}, nil
}

// runRead implements the `read` tool (spec.md §4.4): resolves each path
// against the allow-list, rejects binary (NUL-containing) files, caps reads
// at FileMaxBytes, and returns a fenced block per path.
func (r *Runtime) runRead(payload string) (string, error) {
	if !r.policy.EnableFileTools {
		return "", &DisabledError{Tool: "read"}
	}
	req, err := parseReadPayload(payload)
	if err != nil {
		return "", err
	}
	paths := req.Paths
	if req.Path != "" {
		paths = append([]string{req.Path}, paths...)
	}
	if len(paths) == 0 {
		return "", &PolicyError{Reason: "read: no path given"}
	}

	var out strings.Builder
	for i, p := range paths {
		section, err := r.readOne(p, req)
		if err != nil {
			return "", err
		}
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(section)
	}
	return out.String(), nil
}

func (r *Runtime) readOne(path string, req readRequest) (string, error) {
	abs, err := r.policy.ResolvePath(path)
	if err != nil {
		return "", err
	}
	maxBytes := r.policy.FileMaxBytes
	if req.MaxBytes > 0 && req.MaxBytes < maxBytes {
		maxBytes = req.MaxBytes
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", &ExecutionError{Tool: "read", Err: err}
	}
	if bytes.IndexByte(data, 0) != -1 {
		return "", &PolicyError{Reason: "binary refused: " + path}
	}

	truncated := false
	if int64(len(data)) > maxBytes {
		data = data[:maxBytes]
		truncated = true
	}

	content := string(data)
	if req.StartLine > 0 || req.EndLine > 0 {
		lines := strings.Split(content, "\n")
		start := req.StartLine - 1
		if start < 0 {
			start = 0
		}
		end := req.EndLine
		if end <= 0 || end > len(lines) {
			end = len(lines)
		}
		if start < end {
			content = strings.Join(lines[start:end], "\n")
		}
	}

	header := fmt.Sprintf("📄 %s", path)
	if req.StartLine > 0 || req.EndLine > 0 {
		header = fmt.Sprintf("📄 %s (lines %d-%d)", path, req.StartLine, req.EndLine)
	}
	body := fmt.Sprintf("%s\n```\n%s```", header, content)
	if truncated {
		body += "\n…(truncated)"
	}
	return body, nil
}

type writeRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Append  bool   `json:"append"`
}

// runWrite implements the `write` tool (spec.md §4.4).
func (r *Runtime) runWrite(payload string) (string, error) {
	if !r.policy.EnableFileTools {
		return "", &DisabledError{Tool: "write"}
	}
	var req writeRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return "", &PolicyError{Reason: "invalid write payload: " + err.Error()}
	}
	if req.Path == "" {
		return "", &PolicyError{Reason: "write: path is required"}
	}
	if int64(len(req.Content)) > r.policy.FileMaxWriteBytes {
		return "", &PolicyError{Reason: fmt.Sprintf("write: content %d bytes exceeds cap %d bytes", len(req.Content), r.policy.FileMaxWriteBytes)}
	}

	abs, err := r.policy.ResolvePath(req.Path)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", &ExecutionError{Tool: "write", Err: err}
	}

	flags := os.O_CREATE | os.O_WRONLY
	if req.Append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(abs, flags, 0o644)
	if err != nil {
		return "", &ExecutionError{Tool: "write", Err: err}
	}
	defer func() { _ = f.Close() }()

	n, err := f.WriteString(req.Content)
	if err != nil {
		return "", &ExecutionError{Tool: "write", Err: err}
	}
	return fmt.Sprintf("✏️ wrote %d bytes to %s", n, req.Path), nil
}
