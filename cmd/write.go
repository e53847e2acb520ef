package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/quarrylabs/skillstore/internal/skill"
)

var writeCmd = &cobra.Command{
	Use:   "write <file.yaml> [more files...]",
	Short: "Write skill definitions from YAML files",
	Long: `Write one or more skill definitions through the transactional write path.

Each file holds one skill in YAML form and must carry an id and a layer.
Every file is its own transaction; a definitive rejection stops the run
and reports the transactions that already committed.

Examples:
  skillstore write git-basics.yaml
  skillstore write skills/*.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close(cmd.Context()) }()

		txIDs := make([]string, 0, len(args))
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			var sk skill.Skill
			if err := yaml.Unmarshal(data, &sk); err != nil {
				return fmt.Errorf("parsing %s: %w", path, err)
			}
			txID, err := s.WriteSkill(cmd.Context(), &sk)
			if err != nil {
				_ = formatter().Format(map[string]any{"committed": txIDs})
				return fmt.Errorf("writing %s: %w", path, err)
			}
			txIDs = append(txIDs, txID)
		}
		return formatter().Format(map[string]any{"committed": txIDs})
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)
}
