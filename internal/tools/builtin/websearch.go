package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"loom/internal/tools"
)

// WebSearchArgs defines the parameters for the websearch tool.
type WebSearchArgs struct {
	Query      string `json:"query" jsonschema:"description=The search query,required"`
	MaxResults int    `json:"max_results" jsonschema:"description=Maximum number of results to return (default: 5)"`
}

// searchResult is one entry returned by the configured search endpoint.
type searchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// WebSearchTool queries a configured search API and returns ranked results.
// It reuses webfetch's SSRF guard since the endpoint URL is itself
// attacker-influenceable through configuration.
type WebSearchTool struct {
	tools.BaseTool
	// Client is the HTTP client used to reach the search endpoint.
	Client *http.Client
	// Endpoint is the search API base URL. It must accept a "q" query
	// parameter and return a JSON array of searchResult.
	Endpoint string
	// APIKey, if set, is sent as a Bearer token to Endpoint.
	APIKey string
	// BlockPrivate enables SSRF protection on the endpoint URL.
	BlockPrivate bool
}

// NewWebSearchTool creates a new websearch tool. Endpoint defaults to empty,
// which causes Execute to fail with a clear configuration error rather than
// silently no-op.
func NewWebSearchTool() *WebSearchTool {
	return &WebSearchTool{
		BaseTool: tools.BaseTool{
			ToolName:        "websearch",
			ToolDescription: "Search the web for a query and return a ranked list of title/url/snippet results.",
			ToolParameters:  tools.BuildSchema(WebSearchArgs{}),
		},
		BlockPrivate: true,
	}
}

// Execute runs the search.
func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) (tools.ToolResult, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return tools.ToolResult{}, tools.NewInvalidArgsError(t.Name(), "query is required", nil)
	}

	maxResults := 5
	if v, ok := args["max_results"].(float64); ok && v > 0 {
		maxResults = int(v)
	}

	if t.Endpoint == "" {
		return tools.NewErrorResult("websearch is not configured with a search endpoint"), nil
	}

	reqURL := t.Endpoint
	sep := "?"
	if strings.Contains(reqURL, "?") {
		sep = "&"
	}
	reqURL = fmt.Sprintf("%s%sq=%s", reqURL, sep, url.QueryEscape(query))

	if t.BlockPrivate {
		if err := checkSSRF(reqURL, nil); err != nil {
			return tools.NewErrorResult(fmt.Sprintf("SSRF protection: %v", err)), nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return tools.NewErrorResult(fmt.Sprintf("failed to create request: %v", err)), nil
	}
	if t.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.APIKey)
	}

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return tools.ToolResult{}, tools.NewToolTimeoutError(t.Name(), "15s")
		}
		return tools.NewErrorResult(fmt.Sprintf("search request failed: %v", err)), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return tools.NewErrorResult(fmt.Sprintf("search endpoint returned status %d", resp.StatusCode)), nil
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return tools.NewErrorResult(fmt.Sprintf("failed to decode search response: %v", err)), nil
	}

	if len(results) > maxResults {
		results = results[:maxResults]
	}

	if len(results) == 0 {
		return tools.NewSuccessResult(fmt.Sprintf("no results for %q", query)), nil
	}

	var out strings.Builder
	for i, r := range results {
		if i > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(fmt.Sprintf("%d. %s\n%s\n%s", i+1, r.Title, r.URL, r.Snippet))
	}

	return tools.NewResultWithMetadata(
		wrapExternalContent(out.String(), t.Endpoint),
		map[string]any{"result_count": len(results)},
	), nil
}
