package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarrylabs/skillstore/internal/skill"
)

var restoreCmd = &cobra.Command{
	Use:   "restore <id> <layer>",
	Short: "Restore a logically deleted skill",
	Long: `Restore a tombstoned skill definition from the payload embedded in the
content archive. The restore is itself a transaction, so both backends
come back in step.

Examples:
  skillstore restore git-basics user`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close(cmd.Context()) }()

		txID, err := s.RestoreSkill(cmd.Context(), args[0], skill.Layer(args[1]))
		if err != nil {
			return err
		}
		return formatter().Format(map[string]string{"tx": txID})
	},
}

func init() {
	rootCmd.AddCommand(restoreCmd)
}
