package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarrylabs/skillstore/internal/presentation"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Reconcile the index against the content archive",
	Long: `Drain the transaction log, then reconcile the indexed store against the
content archive with the archive as the source of truth. Skills present
only in the archive are re-indexed; index rows without an archive file are
tombstoned. Every fix goes through the normal transactional write path.

Examples:
  skillstore repair`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close(cmd.Context()) }()

		report, err := s.Repair(cmd.Context())
		if report != nil {
			_ = formatter().Format(presentation.FromRepairReport(report))
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(repairCmd)
}
