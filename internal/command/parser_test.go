package command

import (
	"reflect"
	"testing"
)

func TestParseSplitsVerbPositionalsAndLongOptions(t *testing.T) {
	got, err := Parse(`/checkout feature-x --create --message="fix the thing"`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Verb != "checkout" {
		t.Fatalf("Verb = %q, want checkout", got.Verb)
	}
	if !reflect.DeepEqual(got.Positional, []string{"feature-x"}) {
		t.Fatalf("Positional = %v", got.Positional)
	}
	if got.Params["create"] != "true" {
		t.Fatalf("Params[create] = %q, want true", got.Params["create"])
	}
	if got.Params["message"] != "fix the thing" {
		t.Fatalf("Params[message] = %q, want %q", got.Params["message"], "fix the thing")
	}
}

func TestParsePreservesQuotedTokenWithInteriorSpaces(t *testing.T) {
	got, err := Parse(`/commit 'initial commit message' --author='Jane Doe'`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !reflect.DeepEqual(got.Positional, []string{"initial commit message"}) {
		t.Fatalf("Positional = %v", got.Positional)
	}
	if got.Params["author"] != "Jane Doe" {
		t.Fatalf("Params[author] = %q", got.Params["author"])
	}
}

func TestParseRejectsUnterminatedQuote(t *testing.T) {
	if _, err := Parse(`/commit "oops`); err == nil {
		t.Fatal("expected an error for an unterminated quote")
	}
}

func TestParseRejectsEmptyLine(t *testing.T) {
	if _, err := Parse("   "); err == nil {
		t.Fatal("expected an error for an empty command line")
	}
}
