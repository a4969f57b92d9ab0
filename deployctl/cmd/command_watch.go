package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/doniyusdinar/deploybot/pkg/nats"
	"github.com/doniyusdinar/deploybot/pkg/redis"
	"github.com/spf13/cobra"
)

var (
	watchRedis  string
	watchNATS   string
	watchPrefix string
	watchHost   string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream job events published by the controller",
	Long: `Follow job state changes as the controller publishes them to Redis or NATS.
Exactly one of --redis or --nats must be given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if (watchRedis == "") == (watchNATS == "") {
			return fmt.Errorf("exactly one of --redis or --nats is required")
		}

		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(stop)

		if watchRedis != "" {
			return watchRedisEvents(cmd, stop)
		}
		return watchNATSEvents(cmd, stop)
	},
}

func registerWatchCommand(root *cobra.Command) {
	root.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchRedis, "redis", "", "Redis address (host:port)")
	watchCmd.Flags().StringVar(&watchNATS, "nats", "", "NATS server URLs, comma separated")
	watchCmd.Flags().StringVar(&watchPrefix, "subject-prefix", nats.DefaultSubjectPrefix, "NATS subject prefix")
	watchCmd.Flags().StringVar(&watchHost, "host", "", "Only show jobs for this host")
}

func watchRedisEvents(cmd *cobra.Command, stop <-chan os.Signal) error {
	client, err := redis.NewClient(redis.Config{
		Address:  watchRedis,
		Password: os.Getenv("REDIS_PASSWORD"),
		Enabled:  true,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	events, err := client.SubscribeToJobEvents()
	if err != nil {
		return err
	}
	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-events:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			printEvent(cmd, event.Job)
		}
	}
}

func watchNATSEvents(cmd *cobra.Command, stop <-chan os.Signal) error {
	client := nats.NewClient(nats.Config{
		URLs:           strings.Split(watchNATS, ","),
		ConnectionName: "deployctl-watch",
		SubjectPrefix:  watchPrefix,
		Enabled:        true,
	})
	if err := client.Connect(); err != nil {
		return err
	}
	defer client.Close()

	jobs := make(chan *models.Job, 16)
	sub, err := client.SubscribeJobEvents(func(job *models.Job) {
		jobs <- job
	})
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-stop:
			return nil
		case job := <-jobs:
			printEvent(cmd, job)
		}
	}
}

func printEvent(cmd *cobra.Command, job *models.Job) {
	if job == nil || (watchHost != "" && job.Host != watchHost) {
		return
	}
	if jsonOutput {
		printJSON(cmd, job)
		return
	}
	line := fmt.Sprintf("%s  %-9s %-6s %s", job.ID, job.Status, job.JobType, job.Host)
	if target := jobTarget(job); target != "" {
		line += "  " + target
	}
	if job.Error != nil {
		line += "  error=" + *job.Error
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}
