package salesdata

import (
	"context"
	"encoding/json"
	"fmt"
)

// FetchTool exposes the sales database to the agent as the fetch_sales_data
// function tool.
type FetchTool struct {
	engine *Engine
}

// NewFetchTool creates the tool over a connected engine.
func NewFetchTool(engine *Engine) *FetchTool { return &FetchTool{engine: engine} }

func (t *FetchTool) Name() string { return "fetch_sales_data" }

func (t *FetchTool) Description() string {
	return "Execute a read-only SQLite SELECT query against the Contoso sales database and return the matching rows as JSON"
}

func (t *FetchTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "A well-formed SQLite SELECT query"}
		},
		"required": ["query"]
	}`)
}

func (t *FetchTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Query == "" {
		return "", fmt.Errorf("query is required")
	}

	rows, err := t.engine.Query(ctx, params.Query)
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "The query returned no results. Try a different query.", nil
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode rows: %w", err)
	}
	return string(data), nil
}
