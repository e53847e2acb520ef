package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarrylabs/skillstore/internal/skill"
)

var aliasKind string

var aliasCmd = &cobra.Command{
	Use:   "alias <source> <target>",
	Short: "Record an identifier redirect",
	Long: `Record an alias so the source identifier resolves to the target skill.

Aliases share a namespace with primary skill IDs; an alias whose source
collides with a live skill is rejected and rolled back.

Examples:
  skillstore alias git-fundamentals git-basics
  skillstore alias old-deploy-skill deploy --kind deprecated`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseAliasKind(aliasKind)
		if err != nil {
			return err
		}

		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer func() { _ = s.Close(cmd.Context()) }()

		txID, err := s.WriteAlias(cmd.Context(), &skill.Alias{
			Source: args[0],
			Target: args[1],
			Kind:   kind,
		})
		if err != nil {
			return err
		}
		return formatter().Format(map[string]string{"tx": txID})
	},
}

func parseAliasKind(s string) (skill.AliasKind, error) {
	switch skill.AliasKind(s) {
	case skill.AliasRename, skill.AliasDeprecated:
		return skill.AliasKind(s), nil
	default:
		return "", fmt.Errorf("unknown alias kind %q (rename, deprecated)", s)
	}
}

func init() {
	aliasCmd.Flags().StringVar(&aliasKind, "kind", string(skill.AliasRename),
		"alias kind: rename or deprecated")
	rootCmd.AddCommand(aliasCmd)
}
