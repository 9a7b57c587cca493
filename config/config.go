package config

// Config represents the core promptctl configuration
type Config struct {
	Repo           RepoConfig           `mapstructure:"repo"`
	Daemon         DaemonConfig         `mapstructure:"daemon"`
	Queue          QueueConfig          `mapstructure:"queue"`
	Server         ServerConfig         `mapstructure:"server"`
	Pipeline       PipelineConfig       `mapstructure:"pipeline"`
	LocalInference LocalInferenceConfig `mapstructure:"local_inference"`
}

// RepoConfig configures the prompt repository location
type RepoConfig struct {
	Path string `mapstructure:"path"` // Path to the prompt repository (default: ~/.promptctl)
}

// DaemonConfig configures the auto-commit daemon.
// Immutable after daemon construction; changing values requires a restart.
type DaemonConfig struct {
	WatchIntervalSeconds int    `mapstructure:"watch_interval_seconds"` // Seconds between change checks (default: 60)
	ConflictStrategy     string `mapstructure:"conflict_strategy"`      // ours | theirs | manual | timestamp
	UseLLMCommits        bool   `mapstructure:"use_llm_commits"`        // Generate commit messages with a local model
	Serve                bool   `mapstructure:"serve"`                  // Expose the HTTP request surface
}

// QueueConfig configures the background job queue
type QueueConfig struct {
	Workers            int `mapstructure:"workers"`              // Number of concurrent job workers (default: 2)
	MaxHistory         int `mapstructure:"max_history"`          // Terminal jobs retained before eviction (default: 100)
	PollIntervalMillis int `mapstructure:"poll_interval_millis"` // Worker dequeue poll interval (default: 250)
	StopTimeoutSeconds int `mapstructure:"stop_timeout_seconds"` // Bound on waiting for workers at shutdown (default: 5)
}

// ServerConfig configures the HTTP request surface
type ServerConfig struct {
	Port int `mapstructure:"port"` // Listen port (default: 8765)
}

// PipelineConfig configures the save/optimize pipeline
type PipelineConfig struct {
	AutoOptimize       bool     `mapstructure:"auto_optimize"`       // Queue an optimize job on save
	OptimizationRounds int      `mapstructure:"optimization_rounds"` // Rounds per optimize job (default: 3)
	AutoCommit         bool     `mapstructure:"auto_commit"`         // Commit after save
	CommitBatchSize    int      `mapstructure:"commit_batch_size"`   // Saves per commit; 1 = commit every save
	DefaultTags        []string `mapstructure:"default_tags"`        // Tags applied to every saved prompt
}

// LocalInferenceConfig configures local model inference (Ollama, LocalAI, etc.)
type LocalInferenceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`         // Enable local inference
	BaseURL        string `mapstructure:"base_url"`        // e.g., "http://localhost:11434" for Ollama
	Model          string `mapstructure:"model"`           // e.g., "phi3.5", "llama3.2:3b"
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // Request timeout in seconds
	MaxPerMinute   int    `mapstructure:"max_per_minute"`  // Rate limit on model calls (default: 6)
}

// Conflict strategy names accepted by daemon.conflict_strategy
const (
	StrategyOurs      = "ours"
	StrategyTheirs    = "theirs"
	StrategyManual    = "manual"
	StrategyTimestamp = "timestamp"
)
