package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/promptctl/promptctl/daemon"
	"github.com/promptctl/promptctl/jobs"
	"github.com/promptctl/promptctl/pipeline"
	"github.com/promptctl/promptctl/server"
	"github.com/promptctl/promptctl/store"
)

// DaemonCmd runs the auto-commit daemon in the foreground.
var DaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the auto-commit daemon",
	Long: `Run the auto-commit daemon in foreground mode.

The daemon will:
- Poll the repository for uncommitted changes on a fixed interval
- Resolve merge conflicts under the configured strategy
- Commit changes, optionally with model-generated messages
- Process background jobs with a worker pool
- Optionally expose the HTTP and WebSocket request surface

Runs until interrupted (Ctrl+C), then shuts subsystems down in
reverse order of startup.

Examples:
  promptctl daemon                          # Config-file settings
  promptctl daemon --interval 30 --serve    # Poll every 30s, with HTTP
  promptctl daemon --conflict-strategy ours --llm-commits`,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv()
		if err != nil {
			return err
		}
		cfg := env.cfg

		if cmd.Flags().Changed("interval") {
			cfg.Daemon.WatchIntervalSeconds, _ = cmd.Flags().GetInt("interval")
		}
		if cmd.Flags().Changed("conflict-strategy") {
			cfg.Daemon.ConflictStrategy, _ = cmd.Flags().GetString("conflict-strategy")
		}
		if cmd.Flags().Changed("llm-commits") {
			cfg.Daemon.UseLLMCommits, _ = cmd.Flags().GetBool("llm-commits")
		}
		if cmd.Flags().Changed("serve") {
			cfg.Daemon.Serve, _ = cmd.Flags().GetBool("serve")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		if cmd.Flags().Changed("workers") {
			cfg.Queue.Workers, _ = cmd.Flags().GetInt("workers")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		repoPath := cfg.RepoPath()
		queue := jobs.NewQueue(queueConfig(cfg))
		batch := store.NewBatchCounter(repoPath, cfg.Pipeline.CommitBatchSize)

		watcher, err := store.NewWatcher(env.store, env.tags)
		if err != nil {
			return err
		}
		watcher.Start()
		defer watcher.Stop()

		pipelineOpts := []pipeline.Option{pipeline.WithWatcher(watcher)}
		if cfg.LocalInference.Enabled {
			client, err := inferenceClient(cfg)
			if err != nil {
				return err
			}
			optimizer := pipeline.NewLLMOptimizer(client)
			pipelineOpts = append(pipelineOpts,
				pipeline.WithOptimizer(optimizer),
				pipeline.WithAgent(pipeline.NewLLMAgent(optimizer)),
			)
		}
		pipe := pipeline.New(cfg.Pipeline, env.store, env.tags, env.repo, batch, queue, pipelineOpts...)

		var daemonOpts []daemon.Option
		if cfg.Daemon.UseLLMCommits {
			client, err := inferenceClient(cfg)
			if err != nil {
				return err
			}
			gen := daemon.NewOllamaGenerator(client, cfg.LocalInference.MaxPerMinute)
			daemonOpts = append(daemonOpts, daemon.WithMessageGenerator(gen))
		}
		if cfg.Daemon.Serve {
			daemonOpts = append(daemonOpts, daemon.WithListener(server.New(cfg.Server, pipe, queue)))
		}

		d := daemon.New(daemon.Config{
			WatchInterval:    time.Duration(cfg.Daemon.WatchIntervalSeconds) * time.Second,
			ConflictStrategy: cfg.Daemon.ConflictStrategy,
		}, env.repo, daemon.NewAuditLog(repoPath), queue, daemonOpts...)

		fmt.Println("Starting auto-commit daemon...")
		fmt.Printf("  Repository: %s\n", repoPath)
		fmt.Printf("  Watch interval: %ds\n", cfg.Daemon.WatchIntervalSeconds)
		fmt.Printf("  Conflict strategy: %s\n", cfg.Daemon.ConflictStrategy)
		fmt.Printf("  Workers: %d\n", cfg.Queue.Workers)
		fmt.Printf("  LLM commit messages: %v\n", cfg.Daemon.UseLLMCommits)
		if cfg.Daemon.Serve {
			fmt.Printf("  Serving on port %d\n", cfg.Server.Port)
		}
		fmt.Println("\nPress Ctrl+C to stop")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			fmt.Println("\nShutting down...")
			cancel()
		}()

		return d.Run(ctx)
	},
}

func init() {
	DaemonCmd.Flags().IntP("interval", "i", 0, "Seconds between change checks")
	DaemonCmd.Flags().String("conflict-strategy", "", "Conflict strategy: ours, theirs, manual, or timestamp")
	DaemonCmd.Flags().Bool("llm-commits", false, "Generate commit messages with the local model")
	DaemonCmd.Flags().Bool("serve", false, "Expose the HTTP request surface")
	DaemonCmd.Flags().IntP("port", "p", 0, "HTTP listen port")
	DaemonCmd.Flags().IntP("workers", "w", 0, "Concurrent job workers")
}
