package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/deployspec"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/spf13/cobra"
)

var (
	submitHost       string
	submitRepo       string
	submitRef        string
	submitType       string
	submitCommand    string
	submitSpecFile   string
	submitDeployment string
	submitStrategy   string
	submitWorkDir    string
	submitEnv        []string
	submitMeta       []string
	submitWait       bool
	submitInterval   time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a deploy or exec job",
	Long: `Submit a job for a host. A deploy job needs --repo, --spec or --deployment;
an exec job needs --command. Resubmitting a deploy that is still pending or
running for the same repo, ref and host returns the existing job.`,
	Example: `  deployctl submit --host web-1 --repo org/app --ref main
  deployctl submit --host web-1 --spec nginx.yaml --wait
  deployctl submit --host web-1 --type exec --command "docker ps"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildJobRequest()
		if err != nil {
			return err
		}

		ctx, cancel := requestContext(cmd)
		job, err := apiClient().SubmitJob(ctx, req)
		cancel()
		if err != nil {
			return err
		}

		if submitWait {
			if job, err = waitForJob(cmd, job.ID, submitInterval); err != nil {
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

func registerSubmitCommand(root *cobra.Command) {
	root.AddCommand(submitCmd)

	submitCmd.Flags().StringVar(&submitHost, "host", "", "Target host")
	submitCmd.Flags().StringVar(&submitRepo, "repo", "", "Repository (org/app or URL)")
	submitCmd.Flags().StringVar(&submitRef, "ref", "", "Git ref (default main)")
	submitCmd.Flags().StringVarP(&submitType, "type", "t", string(models.JobDeploy), "Job type (deploy/exec)")
	submitCmd.Flags().StringVarP(&submitCommand, "command", "c", "", "Command for exec jobs")
	submitCmd.Flags().StringVarP(&submitSpecFile, "spec", "f", "", "Deployment spec file (YAML or JSON)")
	submitCmd.Flags().StringVar(&submitDeployment, "deployment", "", "Saved deployment id")
	submitCmd.Flags().StringVar(&submitStrategy, "strategy", "", "Override the deploy strategy")
	submitCmd.Flags().StringVar(&submitWorkDir, "workdir", "", "Working directory for exec jobs")
	submitCmd.Flags().StringArrayVarP(&submitEnv, "env", "e", nil, "Environment KEY=VALUE for exec jobs (repeatable)")
	submitCmd.Flags().StringArrayVar(&submitMeta, "meta", nil, "Extra metadata KEY=VALUE (repeatable)")
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "Wait for the job to finish")
	submitCmd.Flags().DurationVar(&submitInterval, "poll", 2*time.Second, "Poll interval with --wait")
	submitCmd.MarkFlagRequired("host")
}

func buildJobRequest() (models.JobRequest, error) {
	req := models.JobRequest{
		Host:         submitHost,
		JobType:      models.JobType(submitType),
		Repo:         submitRepo,
		Ref:          submitRef,
		DeploymentID: submitDeployment,
		Strategy:     submitStrategy,
		Metadata:     map[string]any{},
	}

	meta, err := parsePairs(submitMeta)
	if err != nil {
		return req, err
	}
	for k, v := range meta {
		req.Metadata[k] = v
	}

	switch req.JobType {
	case models.JobExec:
		if strings.TrimSpace(submitCommand) == "" {
			return req, fmt.Errorf("--command is required for exec jobs")
		}
		req.Metadata["command"] = submitCommand
		if submitWorkDir != "" {
			req.Metadata["working_dir"] = submitWorkDir
		}
		if len(submitEnv) > 0 {
			env, err := parsePairs(submitEnv)
			if err != nil {
				return req, err
			}
			req.Metadata["environment"] = env
		}
	case models.JobDeploy:
		if submitSpecFile != "" {
			_, raw, err := deployspec.ParseFile(submitSpecFile)
			if err != nil {
				return req, err
			}
			req.Deployment = raw
		}
		if req.Repo == "" && req.Deployment == nil && req.DeploymentID == "" {
			return req, fmt.Errorf("deploy jobs need --repo, --spec or --deployment")
		}
	default:
		return req, fmt.Errorf("unknown job type %q", submitType)
	}
	return req, nil
}

func parsePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", pair)
		}
		out[strings.TrimSpace(k)] = v
	}
	return out, nil
}

// waitForJob polls until the job is terminal and prints its logs.
func waitForJob(cmd *cobra.Command, id string, interval time.Duration) (*models.Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := models.JobStatus("")
	for {
		ctx, cancel := requestContext(cmd)
		job, err := apiClient().GetJob(ctx, id)
		cancel()
		if err != nil {
			return nil, err
		}
		if job.Status != last && !jsonOutput {
			fmt.Fprintf(cmd.ErrOrStderr(), "□ %s: %s\n", job.ID, job.Status)
			last = job.Status
		}
		if job.Status.Terminal() {
			if !jsonOutput {
				if err := printLogs(cmd, id, 0); err != nil {
					return nil, err
				}
			}
			return job, nil
		}

		select {
		case <-cmd.Context().Done():
			return nil, cmd.Context().Err()
		case <-ticker.C:
		}
	}
}
