package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarrylabs/skillstore/internal/presentation"
)

var tombstoneListCmd = &cobra.Command{
	Use:   "tombstone:list",
	Short: "List logical deletions",
	Long: `List every tombstone in the registry, newest first, as JSON.

Examples:
  skillstore tombstone:list
  skillstore tombstone:list | jq '.[].skill_id'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close(cmd.Context()) }()

		stones, err := s.Tombstones()
		if err != nil {
			return err
		}
		return formatter().Format(presentation.FromTombstones(stones))
	},
}

var tombstonePurgeCmd = &cobra.Command{
	Use:   "tombstone:purge",
	Short: "Physically remove expired tombstones",
	Long: `Physically remove tombstones older than the configured retention window
from both backends. Archive history is preserved; only the work tree and
the index forget the entries. This is the only physical deletion path.

Examples:
  skillstore tombstone:purge`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close(cmd.Context()) }()

		purged, err := s.PurgeTombstones(cmd.Context())
		if err != nil {
			return err
		}
		return formatter().Format(presentation.FromTombstones(purged))
	},
}

func init() {
	rootCmd.AddCommand(tombstoneListCmd)
	rootCmd.AddCommand(tombstonePurgeCmd)
}
