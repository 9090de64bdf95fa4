package mcpserver

// RunChainInput is the input for the run_chain MCP tool.
type RunChainInput struct {
	Prompt string `json:"prompt" jsonschema:"the coding request to run through the agent waves"`
}

// RunChainOutput is the result of the run_chain MCP tool.
type RunChainOutput struct {
	RunID           string   `json:"runId"`
	Status          string   `json:"status"` // "completed" or "failed"
	Message         string   `json:"message,omitempty"`
	FinalAnswer     string   `json:"finalAnswer"`
	Intent          string   `json:"intent"`
	Waves           []string `json:"waves"`
	CachedWaves     []string `json:"cachedWaves"`
	SkippedWaves    []string `json:"skippedWaves"`
	Conflicts       []string `json:"conflicts"`
	TokensUsed      int      `json:"tokensUsed"`
	BudgetExhausted bool     `json:"budgetExhausted"`
}

// GetRunInput is the input for the get_run MCP tool.
type GetRunInput struct {
	RunID string `json:"run_id" jsonschema:"ID of a stored run"`
}

// GetRunOutput is the result of the get_run MCP tool.
type GetRunOutput struct {
	Run         RunSummary     `json:"run"`
	FinalAnswer string         `json:"finalAnswer"`
	State       map[string]any `json:"state"`
	Conflicts   []string       `json:"conflicts"`
}

// ListRunsInput is the input for the list_runs MCP tool.
type ListRunsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"maximum number of runs to return (default 20)"`
}

// ListRunsOutput is the result of the list_runs MCP tool.
type ListRunsOutput struct {
	Runs []RunSummary `json:"runs"`
}

// RunSummary is a brief overview of one stored run.
type RunSummary struct {
	RunID      string `json:"runId"`
	Input      string `json:"input"`
	Intent     string `json:"intent"`
	TokensUsed int    `json:"tokensUsed"`
	DurationMS int64  `json:"durationMs"`
	CreatedAt  string `json:"createdAt"`
}
