package cmd

import (
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan [roots...]",
	Short: "Compute a dependency-ordered load plan",
	Long: `Compute a deterministic load order over the resolved skill graph.

Without arguments the plan covers every skill; with root identifiers it
covers only the roots and their transitive dependencies. Dependencies come
before dependents; ties break lexicographically. A dependency cycle fails
the whole plan.

Examples:
  skillstore plan
  skillstore plan git-advanced
  skillstore plan git-advanced docker-compose`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close(cmd.Context()) }()

		plan, err := s.DependencyPlan(cmd.Context(), args...)
		if err != nil {
			return err
		}
		return formatter().Format(plan)
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
}
