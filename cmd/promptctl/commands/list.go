package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// ListCmd lists stored prompts.
var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored prompts",
	Long: `List prompts in the store, optionally narrowed by tag.

Examples:
  promptctl list
  promptctl list --tag chat
  promptctl list --tag chat --tag system --match-all`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tags, _ := cmd.Flags().GetStringArray("tag")
		matchAll, _ := cmd.Flags().GetBool("match-all")

		env, err := openEnv()
		if err != nil {
			return err
		}

		summaries, err := env.store.List()
		if err != nil {
			return err
		}

		if len(tags) > 0 {
			ids, err := env.tags.FilterByTags(tags, matchAll)
			if err != nil {
				return err
			}
			keep := make(map[string]bool, len(ids))
			for _, id := range ids {
				keep[id] = true
			}
			filtered := summaries[:0]
			for _, s := range summaries {
				if keep[s.ID] {
					filtered = append(filtered, s)
				}
			}
			summaries = filtered
		}

		if len(summaries) == 0 {
			fmt.Println("No prompts found")
			return nil
		}
		for _, s := range summaries {
			if len(s.Tags) > 0 {
				fmt.Printf("%s  [%s]\n", s.ID, strings.Join(s.Tags, ", "))
			} else {
				fmt.Println(s.ID)
			}
		}
		return nil
	},
}

func init() {
	ListCmd.Flags().StringArrayP("tag", "t", nil, "Filter by tag (repeatable)")
	ListCmd.Flags().Bool("match-all", false, "Require all tags instead of any")
}
