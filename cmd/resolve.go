package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/skillstore/internal/presentation"
	"github.com/quarrylabs/skillstore/internal/registry"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve a skill across layers",
	Long: `Resolve a skill identifier to its merged cross-layer definition as JSON.

Aliases are followed to the canonical identifier. The output lists the
layers that contributed, every section-level conflict found, and any
deprecation warnings.

Under the "interactive" conflict strategy unresolved conflicts are printed
instead of a merged skill, and the command exits non-zero.

Examples:
  skillstore resolve git-basics
  skillstore resolve git-basics | jq '.conflicts'`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close(cmd.Context()) }()

		res, err := s.Resolve(cmd.Context(), args[0])
		var interactive *registry.InteractiveConflictError
		if errors.As(err, &interactive) {
			// Print the conflicts so the caller can decide, then fail.
			conflicts := make([]presentation.ConflictDTO, len(interactive.Conflicts))
			for i, c := range interactive.Conflicts {
				conflicts[i] = presentation.ConflictDTO{
					SectionID: c.SectionID,
					Category:  string(c.Category),
					Lower:     string(c.Lower),
					Higher:    string(c.Higher),
					Winner:    string(c.Winner),
				}
			}
			_ = formatter().Format(map[string]any{
				"id":        interactive.SkillID,
				"conflicts": conflicts,
			})
			return err
		}
		if err != nil {
			return err
		}
		return formatter().Format(presentation.FromResolution(res))
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
