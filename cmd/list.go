package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarrylabs/skillstore/internal/presentation"
)

var listDeprecated bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all resolvable skills",
	Long: `List every skill in the registry, fully resolved across layers, as JSON.

Deprecated skills are excluded unless --deprecated is given; they stay
resolvable by ID either way.

Examples:
  skillstore list
  skillstore list --deprecated
  skillstore list | jq '.[].id'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close(cmd.Context()) }()

		all, err := s.ResolveAll(cmd.Context(), listDeprecated)
		if err != nil {
			return err
		}
		return formatter().Format(presentation.FromResolutions(all))
	},
}

func init() {
	listCmd.Flags().BoolVar(&listDeprecated, "deprecated", false, "include deprecated skills")
	rootCmd.AddCommand(listCmd)
}
