package main

import (
	"fmt"
	"os"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/spf13/cobra"
)

var (
	sshHost       string
	sshPort       int
	sshUser       string
	sshPassword   string
	sshKeyFile    string
	sshPassphrase string
	sshRepo       string
	sshRef        string
	sshName       string
)

var sshDeployCmd = &cobra.Command{
	Use:   "ssh-deploy",
	Short: "Deploy a repository to a host over SSH without an agent",
	Long: `Ask the controller to clone the repository on the host over SSH, build it
with docker and start a container. The call blocks until the deployment finishes.`,
	Example: "  deployctl ssh-deploy --host 10.0.0.5 --user ubuntu --key-file ~/.ssh/id_ed25519 --repo org/app --name app",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds := models.SSHCredentials{
			Hostname:             sshHost,
			Port:                 sshPort,
			Username:             sshUser,
			Password:             sshPassword,
			PrivateKeyPassphrase: sshPassphrase,
		}
		if creds.Password == "" {
			creds.Password = os.Getenv("DEPLOYBOT_SSH_PASSWORD")
		}
		if sshKeyFile != "" {
			key, err := os.ReadFile(sshKeyFile)
			if err != nil {
				return fmt.Errorf("failed to read key file: %w", err)
			}
			creds.PrivateKey = string(key)
		}
		if creds.Password == "" && creds.PrivateKey == "" {
			return fmt.Errorf("either --ssh-password or --key-file is required")
		}

		// Remote builds outlast the default request timeout.
		if !cmd.Flags().Changed("timeout") {
			timeout = 15 * time.Minute
		}
		ctx, cancel := requestContext(cmd)
		defer cancel()

		resp, err := apiClient().DeployViaSSH(ctx, models.SSHDeployRequest{
			Credentials:   creds,
			RepoURL:       models.NormalizeRepositoryURL(sshRepo),
			Ref:           sshRef,
			ContainerName: sshName,
		})
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(cmd, resp)
		}

		out := cmd.OutOrStdout()
		if resp.Output != "" {
			fmt.Fprintln(out, resp.Output)
		}
		if !resp.Success {
			return fmt.Errorf("%s (job %s): %s", resp.Message, resp.JobID, resp.Error)
		}
		fmt.Fprintf(out, "✓ %s (job %s)\n", resp.Message, resp.JobID)
		return nil
	},
}

func registerSSHCommand(root *cobra.Command) {
	root.AddCommand(sshDeployCmd)

	sshDeployCmd.Flags().StringVar(&sshHost, "host", "", "SSH host")
	sshDeployCmd.Flags().IntVar(&sshPort, "port", 22, "SSH port")
	sshDeployCmd.Flags().StringVar(&sshUser, "user", "root", "SSH user")
	sshDeployCmd.Flags().StringVar(&sshPassword, "ssh-password", "", "SSH password (env DEPLOYBOT_SSH_PASSWORD)")
	sshDeployCmd.Flags().StringVar(&sshKeyFile, "key-file", "", "Private key file")
	sshDeployCmd.Flags().StringVar(&sshPassphrase, "key-passphrase", "", "Private key passphrase")
	sshDeployCmd.Flags().StringVar(&sshRepo, "repo", "", "Repository (org/app or URL)")
	sshDeployCmd.Flags().StringVar(&sshRef, "ref", "main", "Git ref")
	sshDeployCmd.Flags().StringVar(&sshName, "name", "", "Container name")
	sshDeployCmd.MarkFlagRequired("host")
	sshDeployCmd.MarkFlagRequired("repo")
	sshDeployCmd.MarkFlagRequired("name")
}
