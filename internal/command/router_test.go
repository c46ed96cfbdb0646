package command

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestDispatchReturnsUnknownCommandForUnregisteredVerb(t *testing.T) {
	r := NewRouter(Dependencies{})
	_, _, err := r.Dispatch(context.Background(), t.TempDir(), "/nope")
	if err != ErrUnknownCommand {
		t.Fatalf("err = %v, want ErrUnknownCommand", err)
	}
}

func TestDispatchHelpListsVerbs(t *testing.T) {
	r := NewRouter(Dependencies{})
	ok, output, err := r.Dispatch(context.Background(), t.TempDir(), "/help")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if output == "" {
		t.Fatal("expected non-empty help output")
	}
}

func TestDispatchReformatsJSONErrorOutputAsErrorLine(t *testing.T) {
	r := NewRouter(Dependencies{})
	r.Register("probe", HandlerFunc(func(ctx context.Context, workspace string, cmd Parsed) (Result, error) {
		return Result{OK: false, Output: `{"error":"something broke"}`}, nil
	}))
	_, output, err := r.Dispatch(context.Background(), t.TempDir(), "/probe")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if output != "error: something broke" {
		t.Fatalf("output = %q, want reformatted error line", output)
	}
}

func TestNewTaskRequiresDependency(t *testing.T) {
	r := NewRouter(Dependencies{})
	_, _, err := r.Dispatch(context.Background(), t.TempDir(), "/new fix the bug")
	if err == nil {
		t.Fatal("expected an error when NewTask is not wired")
	}
}

func TestNewTaskDelegatesToDependency(t *testing.T) {
	var gotTitle, gotPrompt string
	r := NewRouter(Dependencies{
		NewTask: func(ctx context.Context, workspace, title, prompt string) (string, error) {
			gotTitle, gotPrompt = title, prompt
			return "task-123", nil
		},
	})
	ok, output, err := r.Dispatch(context.Background(), t.TempDir(), "/new fix the login bug --title=login-fix")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !ok || output != "created task task-123" {
		t.Fatalf("ok=%v output=%q", ok, output)
	}
	if gotTitle != "login-fix" {
		t.Fatalf("title = %q", gotTitle)
	}
	if gotPrompt != "fix the login bug" {
		t.Fatalf("prompt = %q", gotPrompt)
	}
}

func TestRulesRoundTripsThroughWorkspaceFile(t *testing.T) {
	r := NewRouter(Dependencies{})
	workspace := t.TempDir()

	ok, output, err := r.Dispatch(context.Background(), workspace, "/rules")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !ok || output != "no rules file yet" {
		t.Fatalf("ok=%v output=%q", ok, output)
	}

	ok, output, err = r.Dispatch(context.Background(), workspace, `/rules --set="always write tests"`)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !ok || output != "rules updated" {
		t.Fatalf("ok=%v output=%q", ok, output)
	}

	data, err := os.ReadFile(filepath.Join(workspace, rulesFileName))
	if err != nil {
		t.Fatalf("read rules file: %v", err)
	}
	if string(data) != "always write tests" {
		t.Fatalf("rules file = %q", string(data))
	}
}

func TestReviewReportsAndTogglesLockThroughDependency(t *testing.T) {
	locked := false
	r := NewRouter(Dependencies{
		SetReviewLocked: func(v bool) { locked = v },
		ReviewLocked:    func() bool { return locked },
	})
	workspace := t.TempDir()

	ok, output, err := r.Dispatch(context.Background(), workspace, "/review --show")
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !ok || output != "review lock: false" {
		t.Fatalf("ok=%v output=%q", ok, output)
	}

	if _, _, err := r.Dispatch(context.Background(), workspace, "/review start"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !locked {
		t.Fatal("expected review lock to be set")
	}

	if _, _, err := r.Dispatch(context.Background(), workspace, "/review stop"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if locked {
		t.Fatal("expected review lock to be cleared")
	}
}

func TestSkillInitThenValidate(t *testing.T) {
	r := NewRouter(Dependencies{})
	workspace := t.TempDir()

	ok, _, err := r.Dispatch(context.Background(), workspace, "/skill.init reviewer")
	if err != nil || !ok {
		t.Fatalf("skill.init: ok=%v err=%v", ok, err)
	}

	ok, output, err := r.Dispatch(context.Background(), workspace, "/skill.validate reviewer")
	if err != nil {
		t.Fatalf("skill.validate: %v", err)
	}
	if !ok {
		t.Fatalf("expected skill.validate to pass, got output %q", output)
	}
}

func TestSkillValidateReportsMissingSkill(t *testing.T) {
	r := NewRouter(Dependencies{})
	workspace := t.TempDir()

	ok, output, err := r.Dispatch(context.Background(), workspace, "/skill.validate ghost")
	if err != nil {
		t.Fatalf("skill.validate: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false, got output %q", output)
	}
}
