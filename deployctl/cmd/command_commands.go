package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/spf13/cobra"
)

var (
	commandName        string
	commandDescription string
	commandRuntime     string
	commandTags        []string
	commandUserOnly    bool

	commandHost     string
	commandEnv      []string
	commandWorkDir  string
	commandTimeout  int
	commandWait     bool
	commandInterval time.Duration
)

var commandsCmd = &cobra.Command{
	Use:     "commands",
	Aliases: []string{"command", "cmd"},
	Short:   "Manage and run saved command templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listCommands(cmd)
	},
}

var commandsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List command templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listCommands(cmd)
	},
}

var commandsCreateCmd = &cobra.Command{
	Use:     "create <command>",
	Short:   "Save a command template",
	Example: `  deployctl commands create --name "Disk usage" "df -h" --tag ops`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runtime := models.CommandRuntime(commandRuntime)
		if !runtime.Valid() {
			return fmt.Errorf("unknown runtime %q (shell, python or powershell)", commandRuntime)
		}

		ctx, cancel := requestContext(cmd)
		defer cancel()

		tmpl, err := apiClient().CreateCommand(ctx, models.CommandCreate{
			Name:        commandName,
			Command:     args[0],
			Description: commandDescription,
			Tags:        commandTags,
			Runtime:     runtime,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, tmpl)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Saved %s command %s (%s)\n", tmpl.Runtime, tmpl.Name, tmpl.ID)
		return nil
	},
}

var commandsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a command template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		tmpl, err := apiClient().GetCommand(ctx, args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd, tmpl)
	},
}

var commandsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a command template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()

		if err := apiClient().DeleteCommand(ctx, args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted command %s\n", args[0])
		return nil
	},
}

var commandsRunCmd = &cobra.Command{
	Use:   "run <id> [-- args...]",
	Short: "Run a command template on a host as an exec job",
	Example: `  deployctl commands run 5c1e... --host web-1 -e CONTAINER=api
  deployctl commands run 5c1e... --host web-1 --wait -- --since 1h`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := parsePairs(commandEnv)
		if err != nil {
			return err
		}

		ctx, cancel := requestContext(cmd)
		job, err := apiClient().RunCommand(ctx, args[0], models.CommandRunRequest{
			Host:           commandHost,
			Arguments:      args[1:],
			Environment:    env,
			TimeoutSeconds: commandTimeout,
			WorkingDir:     commandWorkDir,
		})
		cancel()
		if err != nil {
			return err
		}

		if commandWait {
			if job, err = waitForJob(cmd, job.ID, commandInterval); err != nil {
				return err
			}
		}
		if jsonOutput {
			return printJSON(cmd, job)
		}
		printJob(cmd, job)
		if job.Status == models.JobFailed {
			return fmt.Errorf("job %s failed", job.ID)
		}
		return nil
	},
}

func registerCommandTemplateCommands(root *cobra.Command) {
	root.AddCommand(commandsCmd)
	commandsCmd.AddCommand(commandsListCmd)
	commandsCmd.AddCommand(commandsCreateCmd)
	commandsCmd.AddCommand(commandsGetCmd)
	commandsCmd.AddCommand(commandsDeleteCmd)
	commandsCmd.AddCommand(commandsRunCmd)

	commandsCmd.PersistentFlags().BoolVar(&commandUserOnly, "user-only", false, "Hide built-in templates")

	commandsCreateCmd.Flags().StringVar(&commandName, "name", "", "Template name")
	commandsCreateCmd.Flags().StringVarP(&commandDescription, "description", "d", "", "Description")
	commandsCreateCmd.Flags().StringVar(&commandRuntime, "runtime", string(models.RuntimeShell), "Runtime (shell/python/powershell)")
	commandsCreateCmd.Flags().StringSliceVar(&commandTags, "tag", nil, "Tag (repeatable)")
	commandsCreateCmd.MarkFlagRequired("name")

	commandsRunCmd.Flags().StringVar(&commandHost, "host", "", "Target host")
	commandsRunCmd.Flags().StringArrayVarP(&commandEnv, "env", "e", nil, "Environment KEY=VALUE (repeatable)")
	commandsRunCmd.Flags().StringVar(&commandWorkDir, "workdir", "", "Working directory on the host")
	commandsRunCmd.Flags().IntVar(&commandTimeout, "job-timeout", models.DefaultCommandTimeoutSeconds, "Command timeout in seconds")
	commandsRunCmd.Flags().BoolVarP(&commandWait, "wait", "w", false, "Wait for the job to finish")
	commandsRunCmd.Flags().DurationVar(&commandInterval, "poll", 2*time.Second, "Poll interval with --wait")
	commandsRunCmd.MarkFlagRequired("host")
}

func listCommands(cmd *cobra.Command) error {
	ctx, cancel := requestContext(cmd)
	defer cancel()

	templates, err := apiClient().ListCommands(ctx, !commandUserOnly)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, templates)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tRUNTIME\tSYSTEM\tTAGS\tCOMMAND")
	for _, t := range templates {
		fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\t%s\n", t.ID, t.Name, t.Runtime, t.IsSystem, strings.Join(t.Tags, ","), t.Command)
	}
	return w.Flush()
}
