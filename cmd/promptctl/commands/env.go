package commands

import (
	"time"

	"github.com/promptctl/promptctl/config"
	"github.com/promptctl/promptctl/errors"
	"github.com/promptctl/promptctl/jobs"
	"github.com/promptctl/promptctl/llm"
	"github.com/promptctl/promptctl/store"
	"github.com/promptctl/promptctl/vcs"
)

// cmdEnv bundles the collaborators most commands need.
type cmdEnv struct {
	cfg   *config.Config
	repo  *vcs.Repository
	store *store.Store
	tags  *store.TagIndex
}

// openEnv loads configuration and opens the repository, initializing
// it on first use.
func openEnv() (*cmdEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	path := cfg.RepoPath()
	var repo *vcs.Repository
	if vcs.IsInitialized(path) {
		repo, err = vcs.Open(path)
	} else {
		repo, err = vcs.Init(path)
	}
	if err != nil {
		return nil, err
	}

	st, err := store.New(path)
	if err != nil {
		return nil, err
	}

	return &cmdEnv{
		cfg:   cfg,
		repo:  repo,
		store: st,
		tags:  store.NewTagIndex(path, st),
	}, nil
}

// queueConfig maps the config file's queue section onto the job queue.
func queueConfig(cfg *config.Config) jobs.Config {
	return jobs.Config{
		Workers:      cfg.Queue.Workers,
		MaxHistory:   cfg.Queue.MaxHistory,
		PollInterval: time.Duration(cfg.Queue.PollIntervalMillis) * time.Millisecond,
		StopTimeout:  time.Duration(cfg.Queue.StopTimeoutSeconds) * time.Second,
	}
}

// inferenceClient builds a client for the configured local model.
func inferenceClient(cfg *config.Config) (*llm.Client, error) {
	if !cfg.LocalInference.Enabled {
		return nil, errors.New("local inference is disabled; enable [local_inference] in promptctl.toml")
	}
	timeout := time.Duration(cfg.LocalInference.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return llm.NewClient(cfg.LocalInference.BaseURL, cfg.LocalInference.Model, timeout), nil
}
