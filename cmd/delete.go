package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarrylabs/skillstore/internal/skill"
)

var deleteReason string

var deleteCmd = &cobra.Command{
	Use:   "delete <id> <layer>",
	Short: "Logically delete a skill at one layer",
	Long: `Logically delete a skill definition at a single layer.

The definition stays in both backends as a tombstone and drops out of
resolution and listing. Use "restore" to undo, or "tombstone:purge" to
remove it for good once the retention window has passed.

Examples:
  skillstore delete git-basics user
  skillstore delete git-basics org --reason "superseded by git-advanced"`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close(cmd.Context()) }()

		txID, err := s.DeleteSkill(cmd.Context(), args[0], skill.Layer(args[1]), deleteReason)
		if err != nil {
			return err
		}
		return formatter().Format(map[string]string{"tx": txID})
	},
}

func init() {
	deleteCmd.Flags().StringVar(&deleteReason, "reason", "", "reason recorded on the tombstone")
	rootCmd.AddCommand(deleteCmd)
}
