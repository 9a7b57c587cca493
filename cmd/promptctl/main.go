package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/promptctl/promptctl/cmd/promptctl/commands"
	"github.com/promptctl/promptctl/logger"
)

var rootCmd = &cobra.Command{
	Use:   "promptctl",
	Short: "promptctl - version-controlled prompt management",
	Long: `promptctl - prompt management with git-backed storage.

Prompts live as plain text files in a git repository. The auto-commit
daemon keeps the repository committed, resolves merge conflicts under a
configured policy, and can generate commit messages with a local model.

Available commands:
  save     - Save a prompt into the store
  list     - List stored prompts
  show     - Show a prompt's content and metadata
  tag      - Manage prompt tags
  status   - Show repository status
  diff     - Show uncommitted changes to a prompt
  optimize - Optimize a prompt with a local model
  daemon   - Run the auto-commit daemon

Examples:
  promptctl save --name greeting "You are a helpful assistant."
  promptctl tag add greeting chat system
  promptctl daemon --interval 30 --serve`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(false); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commands.SaveCmd)
	rootCmd.AddCommand(commands.ListCmd)
	rootCmd.AddCommand(commands.ShowCmd)
	rootCmd.AddCommand(commands.TagCmd)
	rootCmd.AddCommand(commands.StatusCmd)
	rootCmd.AddCommand(commands.DiffCmd)
	rootCmd.AddCommand(commands.OptimizeCmd)
	rootCmd.AddCommand(commands.DaemonCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
