package config

import "github.com/promptctl/promptctl/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Daemon.WatchIntervalSeconds <= 0 {
		return errors.Newf("daemon.watch_interval_seconds must be > 0, got %d", c.Daemon.WatchIntervalSeconds)
	}

	switch c.Daemon.ConflictStrategy {
	case StrategyOurs, StrategyTheirs, StrategyManual, StrategyTimestamp:
	default:
		return errors.Newf("daemon.conflict_strategy must be one of ours|theirs|manual|timestamp, got %q", c.Daemon.ConflictStrategy)
	}

	if c.Queue.Workers <= 0 {
		return errors.Newf("queue.workers must be > 0, got %d", c.Queue.Workers)
	}
	if c.Queue.MaxHistory < 0 {
		return errors.Newf("queue.max_history must be >= 0, got %d", c.Queue.MaxHistory)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.Newf("server.port must be in (0, 65535], got %d", c.Server.Port)
	}

	if c.Pipeline.CommitBatchSize < 1 {
		return errors.Newf("pipeline.commit_batch_size must be >= 1, got %d", c.Pipeline.CommitBatchSize)
	}

	// Validate local inference configuration only when enabled
	if c.LocalInference.Enabled {
		if c.LocalInference.BaseURL == "" {
			return errors.New("local_inference.base_url cannot be empty when enabled")
		}
		if c.LocalInference.Model == "" {
			return errors.New("local_inference.model cannot be empty when enabled")
		}
		if c.LocalInference.TimeoutSeconds <= 0 {
			return errors.Newf("local_inference.timeout_seconds must be > 0, got %d", c.LocalInference.TimeoutSeconds)
		}
	}

	return nil
}
