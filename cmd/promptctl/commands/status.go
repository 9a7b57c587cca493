package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptctl/promptctl/daemon"
	"github.com/promptctl/promptctl/store"
)

// StatusCmd reports repository state.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show repository status",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv()
		if err != nil {
			return err
		}

		dirty, err := env.repo.HasChanges()
		if err != nil {
			return err
		}
		if !dirty {
			fmt.Println("Repository clean")
		} else {
			changed, err := env.repo.GetChangedFiles()
			if err != nil {
				return err
			}
			fmt.Printf("Uncommitted changes (%d):\n", len(changed))
			for _, path := range changed {
				fmt.Printf("  %s\n", path)
			}
		}

		conflicts, err := env.repo.GetMergeConflicts()
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			fmt.Printf("Merge conflicts (%d):\n", len(conflicts))
			for _, path := range conflicts {
				fmt.Printf("  %s\n", path)
			}
		}

		batch := store.NewBatchCounter(env.cfg.RepoPath(), env.cfg.Pipeline.CommitBatchSize)
		if pending := batch.Pending(); pending > 0 {
			fmt.Printf("Saves awaiting batch commit: %d\n", pending)
		}

		audit := daemon.NewAuditLog(env.cfg.RepoPath())
		entries, err := audit.Entries()
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			fmt.Printf("Conflict resolutions on record: %d\n", len(entries))
		}
		return nil
	},
}
