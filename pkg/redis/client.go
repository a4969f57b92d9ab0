package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/redis/go-redis/v9"
)

const (
	JobEventChannel   = "deploybot:jobs"
	JobSnapshotPrefix = "deploybot:job:"
	snapshotTTL       = 24 * time.Hour
)

// Client wraps Redis client with pub/sub functionality
type Client struct {
	rdb    *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds Redis connection configuration
type Config struct {
	Address  string
	Password string
	DB       int
	Enabled  bool
}

// JobEvent is published on every persisted job change
type JobEvent struct {
	Job       *models.Job `json:"job"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewClient creates a new Redis client. It returns nil when disabled.
func NewClient(config Config) (*Client, error) {
	if !config.Enabled {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(context.Background())

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})

	// Test connection
	if err := rdb.Ping(ctx).Err(); err != nil {
		cancel()
		return nil, err
	}

	logger.Log.Info("Connected to Redis successfully")

	return &Client{
		rdb:    rdb,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	c.cancel()
	return c.rdb.Close()
}

// IsConnected checks if Redis is connected
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	return c.rdb.Ping(c.ctx).Err() == nil
}

// Name identifies the publisher in logs.
func (c *Client) Name() string {
	return "redis"
}

// PublishJobEvent announces job on the job channel and refreshes its
// snapshot key.
func (c *Client) PublishJobEvent(ctx context.Context, job *models.Job) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(JobEvent{Job: job, Timestamp: time.Now().UTC()})
	if err != nil {
		return err
	}

	pipe := c.rdb.TxPipeline()
	pipe.Publish(ctx, JobEventChannel, data)
	pipe.Set(ctx, JobSnapshotPrefix+job.ID, data, snapshotTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish job %s to redis: %w", job.ID, err)
	}
	return nil
}

// GetJobSnapshot returns the last published state of a job, or nil when the
// snapshot has expired or never existed.
func (c *Client) GetJobSnapshot(ctx context.Context, jobID string) (*JobEvent, error) {
	if c == nil {
		return nil, nil
	}

	data, err := c.rdb.Get(ctx, JobSnapshotPrefix+jobID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var event JobEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// SubscribeToJobEvents streams job events until the client is closed.
func (c *Client) SubscribeToJobEvents() (<-chan JobEvent, error) {
	if c == nil {
		return nil, nil
	}

	pubsub := c.rdb.Subscribe(c.ctx, JobEventChannel)
	ch := make(chan JobEvent, 10)

	go func() {
		defer close(ch)
		defer pubsub.Close()

		for {
			msg, err := pubsub.ReceiveMessage(c.ctx)
			if err != nil {
				if c.ctx.Err() != nil {
					return
				}
				logger.Log.Errorf("Error receiving Redis message: %v", err)
				time.Sleep(time.Second)
				continue
			}

			var event JobEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Log.Errorf("Failed to unmarshal job event: %v", err)
				continue
			}

			select {
			case ch <- event:
			case <-c.ctx.Done():
				return
			default:
				logger.Log.Warn("Job event channel is full, dropping message")
			}
		}
	}()

	return ch, nil
}
