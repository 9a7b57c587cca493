package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// ShowCmd prints a prompt's content and metadata.
var ShowCmd = &cobra.Command{
	Use:   "show <prompt-id>",
	Short: "Show a prompt's content and metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		metaOnly, _ := cmd.Flags().GetBool("meta")

		env, err := openEnv()
		if err != nil {
			return err
		}

		prompt, err := env.store.Get(args[0])
		if err != nil {
			return err
		}

		if metaOnly {
			data, err := json.MarshalIndent(prompt.Metadata, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}
		fmt.Println(prompt.Content)
		return nil
	},
}

func init() {
	ShowCmd.Flags().Bool("meta", false, "Show metadata instead of content")
}
