package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarrylabs/skillstore/internal/presentation"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent archive commits",
	Long: `Show the most recent content archive commits, newest first. Every commit
subject carries the transaction id that produced it.

Examples:
  skillstore history
  skillstore history --limit 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close(cmd.Context()) }()

		commits, err := s.History(historyLimit)
		if err != nil {
			return err
		}
		return formatter().Format(presentation.FromCommits(commits))
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum commits to show")
	rootCmd.AddCommand(historyCmd)
}
