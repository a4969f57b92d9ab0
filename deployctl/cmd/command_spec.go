package main

import (
	"fmt"

	"github.com/doniyusdinar/deploybot/pkg/deployspec"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/spf13/cobra"
)

var specCmd = &cobra.Command{
	Use:   "spec",
	Short: "Work with deployment spec files",
}

var specValidateCmd = &cobra.Command{
	Use:   "validate <file>...",
	Short: "Validate deployment spec files against the schema",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := 0
		for _, path := range args {
			spec, raw, err := deployspec.ParseFile(path)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", path, err)
				failed++
				continue
			}
			if jsonOutput {
				if err := printJSON(cmd, raw); err != nil {
					return err
				}
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s: %s\n", path, describeSpec(spec))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d spec files are invalid", failed, len(args))
		}
		return nil
	},
}

func registerSpecCommand(root *cobra.Command) {
	root.AddCommand(specCmd)
	specCmd.AddCommand(specValidateCmd)
}

func describeSpec(spec models.DeploymentSpec) string {
	switch s := spec.(type) {
	case models.ImageSpec:
		return "image " + s.ImageRef()
	case models.RepoSpec:
		_, ref, _ := s.ToMetadata()
		return "repo " + models.NormalizeRepositoryURL(s.Repository) + "@" + ref
	default:
		return string(spec.Kind())
	}
}
