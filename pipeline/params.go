package pipeline

import "encoding/json"

// Job types handled by the pipeline.
const (
	JobTypeOptimize = "optimize"
	JobTypeEvaluate = "evaluate"
	JobTypeChain    = "chain"
	JobTypeAgent    = "agent"
)

// TestCase pairs an input with its expected output for scoring.
type TestCase struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
}

// OptimizeParams is the payload for an optimize job.
type OptimizeParams struct {
	PromptID  string     `json:"prompt_id"`
	Rounds    int        `json:"rounds,omitempty"`
	TestCases []TestCase `json:"test_cases,omitempty"`
}

// OptimizeResult is the terminal result of an optimize job.
type OptimizeResult struct {
	OptimizedID  string  `json:"optimized_id"`
	Score        float64 `json:"score"`
	SourcePrompt string  `json:"source_prompt"`
	Rounds       int     `json:"rounds"`
}

// EvaluateParams is the payload for an evaluate job.
type EvaluateParams struct {
	PromptID  string     `json:"prompt_id"`
	TestCases []TestCase `json:"test_cases"`
}

// EvaluateResult is the terminal result of an evaluate job.
type EvaluateResult struct {
	PromptID string  `json:"prompt_id"`
	Score    float64 `json:"score"`
	Cases    int     `json:"cases"`
}

// ChainParams is the payload for a chain job.
type ChainParams struct {
	PromptIDs []string `json:"prompt_ids"`
	ChainName string   `json:"chain_name,omitempty"`
}

// ChainResult is the terminal result of a chain job.
type ChainResult struct {
	ChainID       string   `json:"chain_id"`
	SourcePrompts []string `json:"source_prompts"`
}

// AgentParams is the payload for an agent job.
type AgentParams struct {
	PromptID  string     `json:"prompt_id"`
	Rounds    int        `json:"rounds,omitempty"`
	MinScore  float64    `json:"min_score,omitempty"`
	TestCases []TestCase `json:"test_cases,omitempty"`
}

// AgentResult is the terminal result of an agent job.
type AgentResult struct {
	BestID       string  `json:"best_id"`
	FinalScore   float64 `json:"final_score"`
	SourcePrompt string  `json:"source_prompt"`
}

// Result reports what ProcessPrompt accomplished. StagesCompleted lists
// the stages that ran, in order, even when a later stage failed.
type Result struct {
	PromptID        string   `json:"prompt_id"`
	Success         bool     `json:"success"`
	StagesCompleted []string `json:"stages_completed"`
	JobID           string   `json:"job_id,omitempty"`
	Error           string   `json:"error,omitempty"`
	Timestamp       string   `json:"timestamp"`
}

// Dispatch is the outcome of submitting pipeline work: a queued job ID
// for async requests, an inline result for sync ones.
type Dispatch struct {
	JobID  string          `json:"job_id,omitempty"`
	Status string          `json:"status,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}
