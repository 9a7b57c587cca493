package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// TagCmd groups the tag management subcommands.
var TagCmd = &cobra.Command{
	Use:   "tag",
	Short: "Manage prompt tags",
	Long: `Manage tags on stored prompts.

Examples:
  promptctl tag add greeting chat system
  promptctl tag rm greeting system
  promptctl tag list
  promptctl tag list greeting`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var tagAddCmd = &cobra.Command{
	Use:   "add <prompt-id> <tag>...",
	Short: "Add tags to a prompt",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv()
		if err != nil {
			return err
		}
		if err := env.tags.AddTags(args[0], args[1:]); err != nil {
			return err
		}
		fmt.Printf("Tagged %s: %s\n", args[0], strings.Join(env.tags.Tags(args[0]), ", "))
		return nil
	},
}

var tagRmCmd = &cobra.Command{
	Use:   "rm <prompt-id> <tag>...",
	Short: "Remove tags from a prompt",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv()
		if err != nil {
			return err
		}
		if err := env.tags.RemoveTags(args[0], args[1:]); err != nil {
			return err
		}
		remaining := env.tags.Tags(args[0])
		if len(remaining) == 0 {
			fmt.Printf("%s has no tags\n", args[0])
		} else {
			fmt.Printf("%s: %s\n", args[0], strings.Join(remaining, ", "))
		}
		return nil
	},
}

var tagListCmd = &cobra.Command{
	Use:   "list [prompt-id]",
	Short: "List tags, for one prompt or across the store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv()
		if err != nil {
			return err
		}

		if len(args) == 1 {
			tags := env.tags.Tags(args[0])
			if len(tags) == 0 {
				fmt.Printf("%s has no tags\n", args[0])
				return nil
			}
			fmt.Println(strings.Join(tags, ", "))
			return nil
		}

		counts, err := env.tags.AllTags()
		if err != nil {
			return err
		}
		if len(counts) == 0 {
			fmt.Println("No tags found")
			return nil
		}
		names := make([]string, 0, len(counts))
		for tag := range counts {
			names = append(names, tag)
		}
		sort.Strings(names)
		for _, tag := range names {
			fmt.Printf("%s (%d)\n", tag, counts[tag])
		}
		return nil
	},
}

func init() {
	TagCmd.AddCommand(tagAddCmd)
	TagCmd.AddCommand(tagRmCmd)
	TagCmd.AddCommand(tagListCmd)
}
