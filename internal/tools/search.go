package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// SearchClient is the external web-search collaborator the `search` tool
// delegates to (spec.md §4.4).
type SearchClient interface {
	Search(ctx context.Context, req SearchQuery) ([]SearchResult, error)
}

// SearchQuery is the parsed payload of a `search` tool block.
type SearchQuery struct {
	Query          string   `json:"query"`
	MaxResults     int      `json:"maxResults"`
	IncludeDomains []string `json:"includeDomains"`
	ExcludeDomains []string `json:"excludeDomains"`
	Lang           string   `json:"lang"`
}

// SearchResult is one hit returned by a SearchClient.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

// VectorSearchClient is the workspace-scoped semantic search collaborator
// the `vsearch` tool delegates to (spec.md §4.4).
type VectorSearchClient interface {
	VectorSearch(ctx context.Context, workspaceRoot, query string) ([]SearchResult, error)
}

func parseSearchQuery(payload string) (SearchQuery, error) {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "{") {
		var q SearchQuery
		if err := json.Unmarshal([]byte(trimmed), &q); err != nil {
			return SearchQuery{}, &PolicyError{Reason: "invalid search payload: " + err.Error()}
		}
		return q, nil
	}
	return SearchQuery{Query: trimmed}, nil
}

// runSearch implements the `search` tool: delegates to the external search
// client and formats results as a numbered list with a meta footer.
func (r *Runtime) runSearch(ctx context.Context, payload string) (string, error) {
	if r.searchClient == nil {
		return "", &DisabledError{Tool: "search"}
	}
	q, err := parseSearchQuery(payload)
	if err != nil {
		return "", err
	}
	if q.Query == "" {
		return "", &PolicyError{Reason: "search: query is required"}
	}

	results, err := r.searchClient.Search(ctx, q)
	if err != nil {
		return "", &ExecutionError{Tool: "search", Err: err}
	}
	if len(results) == 0 {
		return fmt.Sprintf("🔎 no results for %q", q.Query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔎 %s\n", q.Query)
	for i, res := range results {
		fmt.Fprintf(&b, "%d. %s — %s\n   %s\n", i+1, res.Title, res.URL, res.Snippet)
	}
	fmt.Fprintf(&b, "(%d result(s))", len(results))
	return b.String(), nil
}

// runVSearch implements the `vsearch` tool: delegates to the vector search
// collaborator, scoped to the workspace root.
func (r *Runtime) runVSearch(ctx context.Context, payload string) (string, error) {
	if r.vectorClient == nil {
		return "", &DisabledError{Tool: "vsearch"}
	}
	query := strings.TrimSpace(payload)
	if query == "" {
		return "", &PolicyError{Reason: "vsearch: query is required"}
	}

	results, err := r.vectorClient.VectorSearch(ctx, r.policy.Workspace, query)
	if err != nil {
		return "", &ExecutionError{Tool: "vsearch", Err: err}
	}
	if len(results) == 0 {
		return fmt.Sprintf("🧭 no matches for %q", query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🧭 %s\n", query)
	for i, res := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, res.Title, res.Snippet)
	}
	return b.String(), nil
}
