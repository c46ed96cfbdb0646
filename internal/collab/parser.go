package collab

import (
	"regexp"
	"strings"
)

// directivePattern matches one delegation block embedded in supervisor
// output: <<<agent.<claude|gemini>>\n<prompt>\n>>> (spec.md §4.5).
var directivePattern = regexp.MustCompile(`(?s)<<<agent\.([a-z0-9][a-z0-9_-]*)\n(.*?)\n>>>`)

// Directive is one parsed delegation request.
type Directive struct {
	Match  string
	Agent  string
	Prompt string
}

// ParseDirectives extracts every delegation block from text, in order.
func ParseDirectives(text string) []Directive {
	matches := directivePattern.FindAllStringSubmatch(text, -1)
	out := make([]Directive, 0, len(matches))
	for _, m := range matches {
		out = append(out, Directive{Match: m[0], Agent: m[1], Prompt: strings.TrimSpace(m[2])})
	}
	return out
}

// StripDirectives removes every delegation block from text.
func StripDirectives(text string) string {
	return directivePattern.ReplaceAllString(text, "")
}

func dedupeKey(d Directive) string { return d.Agent + "\x00" + d.Prompt }
