package tools

import "regexp"

// blockPattern matches one embedded tool block: the literal delimiter
// syntax <<<tool.<name>\n<payload>\n>>> (spec.md §4.4). The name charset is
// restricted to lower-case [a-z0-9_-]+; a name with upper-case letters does
// not match.
var blockPattern = regexp.MustCompile(`(?s)<<<tool\.([a-z0-9][a-z0-9_-]*)\n(.*?)\n>>>`)

// Block is one parsed tool invocation found in assistant output.
type Block struct {
	Match   string // the full matched substring, delimiters included
	Name    string
	Payload string
}

// Parallelizable tool names (spec.md §4.4): invocations of these found
// contiguously in output execute concurrently as a batch; all others serialize.
var parallelizable = map[string]bool{
	"read":    true,
	"grep":    true,
	"find":    true,
	"search":  true,
	"vsearch": true,
}

// IsParallelizable reports whether name belongs to the concurrent batch set.
func IsParallelizable(name string) bool { return parallelizable[name] }

// ParseBlocks extracts every tool block from text in the order they appear.
func ParseBlocks(text string) []Block {
	matches := blockPattern.FindAllStringSubmatch(text, -1)
	out := make([]Block, 0, len(matches))
	for _, m := range matches {
		out = append(out, Block{Match: m[0], Name: m[1], Payload: m[2]})
	}
	return out
}
