package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptctl/promptctl/jobs"
	"github.com/promptctl/promptctl/pipeline"
	"github.com/promptctl/promptctl/store"
)

// OptimizeCmd optimizes a prompt synchronously with the local model.
var OptimizeCmd = &cobra.Command{
	Use:   "optimize <prompt-id>",
	Short: "Optimize a prompt with a local model",
	Long: `Optimize a stored prompt with the configured local model.

Runs synchronously and saves the result as <prompt-id>_optimized.
Requires [local_inference] to be enabled in promptctl.toml.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rounds, _ := cmd.Flags().GetInt("rounds")

		env, err := openEnv()
		if err != nil {
			return err
		}
		client, err := inferenceClient(env.cfg)
		if err != nil {
			return err
		}

		queue := jobs.NewQueue(queueConfig(env.cfg))
		batch := store.NewBatchCounter(env.cfg.RepoPath(), env.cfg.Pipeline.CommitBatchSize)
		pipe := pipeline.New(env.cfg.Pipeline, env.store, env.tags, env.repo, batch, queue,
			pipeline.WithOptimizer(pipeline.NewLLMOptimizer(client)))

		dispatch, err := pipe.Optimize(context.Background(), pipeline.OptimizeParams{
			PromptID: args[0],
			Rounds:   rounds,
		}, false)
		if err != nil {
			return err
		}

		var result pipeline.OptimizeResult
		if err := json.Unmarshal(dispatch.Result, &result); err != nil {
			return err
		}
		fmt.Printf("Optimized %s as %s (score: %.2f, rounds: %d)\n",
			result.SourcePrompt, result.OptimizedID, result.Score, result.Rounds)
		return nil
	},
}

func init() {
	OptimizeCmd.Flags().IntP("rounds", "r", 0, "Optimization rounds (default from config)")
}
