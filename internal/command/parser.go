// Package command implements the Command Router (C9): a parser and
// dispatch table for slash-prefixed workspace management commands that the
// gateway does not handle itself (spec.md §4.9).
package command

import "strings"

// Parsed is a slash command split into its verb, positional arguments, and
// long options.
type Parsed struct {
	Verb       string
	Positional []string
	Params     map[string]string
}

// Parse tokenizes a command line with the grammar
// `<verb>(\s+<token>)*` where tokens are either bare words, quoted strings
// (single or double, preserving interior whitespace), or long options
// `--key[=value]` (a bare `--key` is recorded as "true").
func Parse(line string) (Parsed, error) {
	tokens, err := tokenize(line)
	if err != nil {
		return Parsed{}, err
	}
	if len(tokens) == 0 {
		return Parsed{}, &ValidationError{Reason: "empty command"}
	}

	p := Parsed{
		Verb:       strings.TrimPrefix(tokens[0], "/"),
		Positional: []string{},
		Params:     map[string]string{},
	}
	for _, tok := range tokens[1:] {
		if strings.HasPrefix(tok, "--") {
			key, value, hasValue := strings.Cut(tok[2:], "=")
			if !hasValue {
				value = "true"
			}
			if key == "" {
				return Parsed{}, &ValidationError{Reason: "empty long option name"}
			}
			p.Params[key] = value
			continue
		}
		p.Positional = append(p.Positional, tok)
	}
	return p, nil
}

// tokenize splits line on whitespace, treating single- and double-quoted
// spans as one token with the quotes stripped.
func tokenize(line string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inToken := false
	var quote rune

	flush := func() {
		if inToken {
			tokens = append(tokens, cur.String())
			cur.Reset()
			inToken = false
		}
	}

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t':
			flush()
		default:
			inToken = true
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, &ValidationError{Reason: "unterminated quote"}
	}
	flush()
	return tokens, nil
}
