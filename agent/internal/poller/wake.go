package poller

import (
	"context"
	"fmt"

	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/doniyusdinar/deploybot/pkg/nats"
	"github.com/doniyusdinar/deploybot/pkg/redis"
)

// WakeSource nudges the poller when the controller announces work for this
// host, so jobs start before the next heartbeat tick.
type WakeSource interface {
	Name() string
	Run(ctx context.Context, wake func()) error
}

// wantsWake reports whether job is a fresh job for hostname.
func wantsWake(job *models.Job, hostname string) bool {
	return job != nil && job.Host == hostname && job.Status == models.JobPending
}

// RedisWakeSource listens on the Redis job channel.
type RedisWakeSource struct {
	client   *redis.Client
	hostname string
}

func NewRedisWakeSource(client *redis.Client, hostname string) *RedisWakeSource {
	return &RedisWakeSource{client: client, hostname: hostname}
}

func (r *RedisWakeSource) Name() string { return "redis" }

func (r *RedisWakeSource) Run(ctx context.Context, wake func()) error {
	events, err := r.client.SubscribeToJobEvents()
	if err != nil {
		return fmt.Errorf("failed to subscribe to Redis job events: %w", err)
	}
	logger.Log.Info("Redis wake subscriber started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				logger.Log.Warn("Redis job channel closed")
				return nil
			}
			if wantsWake(event.Job, r.hostname) {
				logger.Log.Debugf("Job %s announced over Redis", event.Job.ID)
				wake()
			}
		}
	}
}

// NATSWakeSource listens on the NATS job subjects.
type NATSWakeSource struct {
	client   *nats.Client
	hostname string
}

func NewNATSWakeSource(client *nats.Client, hostname string) *NATSWakeSource {
	return &NATSWakeSource{client: client, hostname: hostname}
}

func (n *NATSWakeSource) Name() string { return "nats" }

func (n *NATSWakeSource) Run(ctx context.Context, wake func()) error {
	sub, err := n.client.SubscribeJobEvents(func(job *models.Job) {
		if wantsWake(job, n.hostname) {
			logger.Log.Debugf("Job %s announced over NATS", job.ID)
			wake()
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to NATS job events: %w", err)
	}
	defer sub.Unsubscribe()
	logger.Log.Info("NATS wake subscriber started")

	<-ctx.Done()
	return nil
}

// RunWakeSource runs source in the background until ctx is done. A failing
// source only costs latency; heartbeats still pick the job up.
func RunWakeSource(ctx context.Context, source WakeSource, p *Poller) {
	go func() {
		if err := source.Run(ctx, p.Wake); err != nil {
			logger.Log.Warnf("Wake source %s stopped: %v", source.Name(), err)
		}
	}()
}
