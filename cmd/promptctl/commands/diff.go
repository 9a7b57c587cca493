package commands

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/cobra"

	"github.com/promptctl/promptctl/store"
)

// DiffCmd shows uncommitted changes to one file.
var DiffCmd = &cobra.Command{
	Use:   "diff <prompt-id|path>",
	Short: "Show uncommitted changes to a prompt",
	Long: `Show the diff between HEAD and the working tree for one file.

A bare prompt ID resolves to its content file under prompts/; anything
containing a slash is treated as a repository-relative path.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv()
		if err != nil {
			return err
		}

		target := args[0]
		if !strings.Contains(target, "/") {
			target = path.Join(store.PromptsDir, target+".txt")
		}

		diff, err := env.repo.Diff(target)
		if err != nil {
			return err
		}
		if strings.TrimSpace(diff) == "" {
			fmt.Println("No changes")
			return nil
		}
		fmt.Print(diff)
		return nil
	},
}
