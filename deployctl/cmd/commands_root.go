package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/doniyusdinar/deploybot/deployctl/internal/client"
	"github.com/spf13/cobra"
)

var (
	controllerURL string
	username      string
	password      string
	jsonOutput    bool
	timeout       time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "deployctl",
	Short:        "Operate the deploybot controller",
	Long:         "deployctl submits deployments and commands to the deploybot controller and inspects jobs, hosts and saved deployments.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&controllerURL, "controller", envOr("DEPLOYBOT_CONTROLLER", "http://localhost:8080"), "Controller base URL (env DEPLOYBOT_CONTROLLER)")
	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", envOr("DEPLOYBOT_USERNAME", "admin"), "Admin username (env DEPLOYBOT_USERNAME)")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", os.Getenv("DEPLOYBOT_PASSWORD"), "Admin password (env DEPLOYBOT_PASSWORD)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print raw JSON")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	registerSubmitCommand(rootCmd)
	registerJobCommands(rootCmd)
	registerHostsCommand(rootCmd)
	registerDeploymentCommands(rootCmd)
	registerCommandTemplateCommands(rootCmd)
	registerSSHCommand(rootCmd)
	registerSpecCommand(rootCmd)
	registerWatchCommand(rootCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func apiClient() *client.Client {
	return client.New(controllerURL, username, password)
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// printJSON writes v indented to the command's output.
func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
