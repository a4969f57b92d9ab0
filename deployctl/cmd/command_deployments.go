package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/doniyusdinar/deploybot/pkg/deployspec"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/spf13/cobra"
)

var (
	deploymentName        string
	deploymentSpecFile    string
	deploymentDescription string
	deploymentTags        []string
)

var deploymentsCmd = &cobra.Command{
	Use:     "deployments",
	Aliases: []string{"deployment", "dep"},
	Short:   "Manage saved deployment specs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDeployments(cmd)
	},
}

var deploymentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved deployments",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listDeployments(cmd)
	},
}

var deploymentsCreateCmd = &cobra.Command{
	Use:     "create",
	Short:   "Save a deployment spec from a YAML or JSON file",
	Example: "  deployctl deployments create --name web --spec nginx.yaml --tag prod",
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, raw, err := deployspec.ParseFile(deploymentSpecFile)
		if err != nil {
			return err
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()

		record, err := apiClient().CreateDeployment(ctx, models.DeploymentCreate{
			Name:        deploymentName,
			Kind:        spec.Kind(),
			Spec:        raw,
			Description: deploymentDescription,
			Tags:        deploymentTags,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, record)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s deployment %s (%s)\n", record.Kind, record.Name, record.ID)
		return nil
	},
}

var deploymentsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a saved deployment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		record, err := apiClient().GetDeployment(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, record)
	},
}

var deploymentsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a saved deployment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		if err := apiClient().DeleteDeployment(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted deployment %s\n", args[0])
		return nil
	},
}

var deploymentsCloneCmd = &cobra.Command{
	Use:   "clone <id>",
	Short: "Copy a saved deployment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		record, err := apiClient().CloneDeployment(ctx, args[0], deploymentName)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, record)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cloned into %s (%s)\n", record.Name, record.ID)
		return nil
	},
}

func registerDeploymentCommands(root *cobra.Command) {
	root.AddCommand(deploymentsCmd)
	deploymentsCmd.AddCommand(deploymentsListCmd)
	deploymentsCmd.AddCommand(deploymentsCreateCmd)
	deploymentsCmd.AddCommand(deploymentsGetCmd)
	deploymentsCmd.AddCommand(deploymentsDeleteCmd)
	deploymentsCmd.AddCommand(deploymentsCloneCmd)

	deploymentsCreateCmd.Flags().StringVar(&deploymentName, "name", "", "Deployment name")
	deploymentsCreateCmd.Flags().StringVarP(&deploymentSpecFile, "spec", "f", "", "Spec file (YAML or JSON)")
	deploymentsCreateCmd.Flags().StringVarP(&deploymentDescription, "description", "d", "", "Description")
	deploymentsCreateCmd.Flags().StringSliceVar(&deploymentTags, "tag", nil, "Tag (repeatable)")
	deploymentsCreateCmd.MarkFlagRequired("name")
	deploymentsCreateCmd.MarkFlagRequired("spec")

	deploymentsCloneCmd.Flags().StringVar(&deploymentName, "name", "", "Name of the copy (default \"<name> Copy\")")
}

func listDeployments(cmd *cobra.Command) error {
	ctx, cancel := requestContext(cmd)
	defer cancel()

	records, err := apiClient().ListDeployments(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, records)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tKIND\tTAGS\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Kind, strings.Join(r.Tags, ","), r.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}
