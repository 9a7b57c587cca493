package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Repository defaults
	v.SetDefault("repo.path", defaultRepoPath())

	// Daemon defaults
	v.SetDefault("daemon.watch_interval_seconds", 60)
	v.SetDefault("daemon.conflict_strategy", StrategyTimestamp)
	v.SetDefault("daemon.use_llm_commits", false)
	v.SetDefault("daemon.serve", false)

	// Queue defaults
	v.SetDefault("queue.workers", 2)
	v.SetDefault("queue.max_history", 100)
	v.SetDefault("queue.poll_interval_millis", 250)
	v.SetDefault("queue.stop_timeout_seconds", 5)

	// Server defaults
	v.SetDefault("server.port", 8765)

	// Pipeline defaults
	v.SetDefault("pipeline.auto_optimize", false)
	v.SetDefault("pipeline.optimization_rounds", 3)
	v.SetDefault("pipeline.auto_commit", true)
	v.SetDefault("pipeline.commit_batch_size", 1)

	// Local Inference (Ollama) defaults
	v.SetDefault("local_inference.enabled", false)
	v.SetDefault("local_inference.base_url", "http://localhost:11434")
	v.SetDefault("local_inference.model", "phi3.5")
	v.SetDefault("local_inference.timeout_seconds", 30)
	v.SetDefault("local_inference.max_per_minute", 6)
}

func defaultRepoPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".promptctl"
	}
	return filepath.Join(home, ".promptctl")
}
