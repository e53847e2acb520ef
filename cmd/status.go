package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarrylabs/skillstore/internal/presentation"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report registry consistency and lock state",
	Long: `Run a read-only consistency sweep and print the result as JSON:
whether the two backends agree, any divergences found, stuck transactions,
and the current global lock holder.

Examples:
  skillstore status
  skillstore status | jq '.diagnosis.clean'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close(cmd.Context()) }()

		diag, err := s.Diagnose(cmd.Context())
		if err != nil {
			return err
		}
		holder, err := s.LockStatus()
		if err != nil {
			return err
		}
		return formatter().Format(map[string]any{
			"diagnosis": presentation.FromDiagnosis(diag),
			"lock":      presentation.FromHolder(holder),
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
