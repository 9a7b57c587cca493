package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/promptctl/promptctl/jobs"
	"github.com/promptctl/promptctl/pipeline"
	"github.com/promptctl/promptctl/store"
)

// SaveCmd saves a prompt through the pipeline.
var SaveCmd = &cobra.Command{
	Use:   "save [content]",
	Short: "Save a prompt into the store",
	Long: `Save a prompt into the version-controlled store.

Content is taken from the argument, or from stdin when the argument is
omitted or is "-". The save is committed according to the configured
batch size.

Examples:
  promptctl save --name greeting "You are a helpful assistant."
  cat prompt.txt | promptctl save --name from-file --tag imported
  promptctl save --optimize "Summarize the following text."`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		tags, _ := cmd.Flags().GetStringArray("tag")
		optimize, _ := cmd.Flags().GetBool("optimize")

		content, err := readContent(args)
		if err != nil {
			return err
		}

		env, err := openEnv()
		if err != nil {
			return err
		}

		queue := jobs.NewQueue(queueConfig(env.cfg))
		batch := store.NewBatchCounter(env.cfg.RepoPath(), env.cfg.Pipeline.CommitBatchSize)

		var opts []pipeline.Option
		if optimize {
			client, err := inferenceClient(env.cfg)
			if err != nil {
				return err
			}
			opts = append(opts, pipeline.WithOptimizer(pipeline.NewLLMOptimizer(client)))
		}
		pipe := pipeline.New(env.cfg.Pipeline, env.store, env.tags, env.repo, batch, queue, opts...)

		// Optimization runs synchronously below; never queue it here
		noQueue := false
		result := pipe.ProcessPrompt(content, name, tags, nil, &noQueue, "cli")
		if !result.Success {
			return fmt.Errorf("save failed: %s", result.Error)
		}
		fmt.Printf("Saved prompt %s (%s)\n", result.PromptID, strings.Join(result.StagesCompleted, ", "))

		if optimize {
			dispatch, err := pipe.Optimize(context.Background(), pipeline.OptimizeParams{PromptID: result.PromptID}, false)
			if err != nil {
				return err
			}
			var opt pipeline.OptimizeResult
			if err := json.Unmarshal(dispatch.Result, &opt); err != nil {
				return err
			}
			fmt.Printf("Optimized as %s (score: %.2f)\n", opt.OptimizedID, opt.Score)
		}
		return nil
	},
}

func readContent(args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return "", fmt.Errorf("no content provided")
	}
	return content, nil
}

func init() {
	SaveCmd.Flags().StringP("name", "n", "", "Prompt name (generated when omitted)")
	SaveCmd.Flags().StringArrayP("tag", "t", nil, "Tag to apply (repeatable)")
	SaveCmd.Flags().Bool("optimize", false, "Optimize the prompt with the local model after saving")
}
