package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarrylabs/skillstore/internal/presentation"
)

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List non-terminal transactions",
	Long: `List transaction log records that never reached a terminal phase.

Opening the registry already replays or rolls these back; anything still
listed afterwards could not be recovered automatically (for example a
corrupt journal payload) and needs operator attention.

Examples:
  skillstore pending`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close(cmd.Context()) }()

		rows, err := s.PendingTransactions()
		if err != nil {
			return err
		}
		return formatter().Format(presentation.FromTxRows(rows))
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd)
}
