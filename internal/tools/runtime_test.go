package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Andy963/ads-sub001/internal/common/logger"
)

func testPolicy(t *testing.T, workspace string) Policy {
	t.Helper()
	return Policy{
		EnableExec:        true,
		EnableFileTools:   true,
		EnableApplyPatch:  true,
		ExecAllowlistDisabled: true,
		ExecTimeoutMs:     2000,
		FileMaxBytes:      1 << 20,
		FileMaxWriteBytes: 1 << 20,
		PatchMaxBytes:     1 << 20,
		AllowedDirs:       []string{workspace},
		Workspace:         workspace,
	}
}

func TestExecuteSubstitutesReadBlockPreservingSurroundingText(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "x.txt"), []byte("ok\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rt := New(testPolicy(t, dir), nil, logger.Default())

	text := "prefix <<<tool.read\nx.txt\n>>> suffix"
	res, err := rt.Execute(context.Background(), text, Hooks{})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "prefix 📄 x.txt\n```\nok\n``` suffix"
	if res.ReplacedText != want {
		t.Fatalf("ReplacedText = %q, want %q", res.ReplacedText, want)
	}
	if res.StrippedText != "prefix  suffix" {
		t.Fatalf("StrippedText = %q, want %q", res.StrippedText, "prefix  suffix")
	}
	if res.Invocations != 1 {
		t.Fatalf("Invocations = %d, want 1", res.Invocations)
	}
}

func TestExecuteNeverAbortsOnToolFailure(t *testing.T) {
	dir := t.TempDir()
	rt := New(testPolicy(t, dir), nil, logger.Default())

	text := "before <<<tool.read\nmissing.txt\n>>> after"
	res, err := rt.Execute(context.Background(), text, Hooks{})
	if err != nil {
		t.Fatalf("Execute returned error, want nil (tool failures are inline): %v", err)
	}
	if res.ReplacedText == text {
		t.Fatalf("expected block to be substituted with a warning, got unchanged text")
	}
}

func TestRunReadRejectsBinaryFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bin.dat"), []byte{0x00, 0x01}, 0o644); err != nil {
		t.Fatal(err)
	}
	rt := New(testPolicy(t, dir), nil, logger.Default())

	_, err := rt.runRead("bin.dat")
	if err == nil {
		t.Fatal("expected error for binary file")
	}
}

func TestRunReadRejectsPathEscapingWorkspace(t *testing.T) {
	dir := t.TempDir()
	rt := New(testPolicy(t, dir), nil, logger.Default())

	_, err := rt.runRead("../../etc/passwd")
	if err == nil {
		t.Fatal("expected error for path escaping workspace")
	}
}

func TestRunWriteRejectsOversizedContent(t *testing.T) {
	dir := t.TempDir()
	p := testPolicy(t, dir)
	p.FileMaxWriteBytes = 4
	rt := New(p, nil, logger.Default())

	_, err := rt.runWrite(`{"path":"out.txt","content":"way too long"}`)
	if err == nil {
		t.Fatal("expected error for oversized write")
	}
}

func TestRunExecRejectsDisallowedCommand(t *testing.T) {
	dir := t.TempDir()
	p := testPolicy(t, dir)
	p.ExecAllowlistDisabled = false
	p.ExecAllowlist = []string{"echo"}
	rt := New(p, nil, logger.Default())

	_, err := rt.runExec(context.Background(), "rm -rf /")
	if err == nil {
		t.Fatal("expected error for disallowed command")
	}
}

func TestRunExecCapturesOutput(t *testing.T) {
	dir := t.TempDir()
	rt := New(testPolicy(t, dir), nil, logger.Default())

	out, err := rt.runExec(context.Background(), `echo hello`)
	if err != nil {
		t.Fatalf("runExec: %v", err)
	}
	if !strings.Contains(out, "hello") {
		t.Fatalf("expected output to contain hello, got %q", out)
	}
}

func TestRunExecTimesOut(t *testing.T) {
	dir := t.TempDir()
	rt := New(testPolicy(t, dir), nil, logger.Default())

	out, err := rt.runExec(context.Background(), `{"cmd":"sleep 10","timeoutMs":100}`)
	if err != nil {
		t.Fatalf("runExec: %v", err)
	}
	if !strings.Contains(out, "timeout after 100ms") {
		t.Fatalf("expected timeout annotation, got %q", out)
	}
	if !strings.Contains(out, "exit=null") {
		t.Fatalf("expected exit=null, got %q", out)
	}
}

func TestRunApplyPatchRejectsEscapingPath(t *testing.T) {
	dir := t.TempDir()
	rt := New(testPolicy(t, dir), nil, logger.Default())

	patch := "--- a/../../etc/passwd\n+++ b/../../etc/passwd\n@@ -1 +1 @@\n-old\n+new\n"
	_, err := rt.runApplyPatch(context.Background(), patch)
	if err == nil {
		t.Fatal("expected error for patch escaping workspace")
	}
}
