package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/nats-io/nats.go"
)

const DefaultSubjectPrefix = "deploybot"

// Config holds NATS configuration
type Config struct {
	URLs           []string      `json:"urls"`
	Username       string        `json:"username"`
	Password       string        `json:"password"`
	Token          string        `json:"token"`
	TLSEnabled     bool          `json:"tls_enabled"`
	MaxReconnect   int           `json:"max_reconnect"`
	ReconnectWait  time.Duration `json:"reconnect_wait"`
	ConnectionName string        `json:"connection_name"`
	SubjectPrefix  string        `json:"subject_prefix"`
	Enabled        bool          `json:"enabled"`
}

// Client wraps NATS connection with additional functionality
type Client struct {
	conn   *nats.Conn
	config Config
}

// NewClient creates a new NATS client
func NewClient(config Config) *Client {
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = DefaultSubjectPrefix
	}
	return &Client{config: config}
}

// Connect establishes connection to NATS server
func (c *Client) Connect() error {
	if !c.config.Enabled {
		return fmt.Errorf("NATS client is disabled")
	}

	opts := []nats.Option{
		nats.Name(c.config.ConnectionName),
		nats.MaxReconnects(c.config.MaxReconnect),
		nats.ReconnectWait(c.config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Log.Warnf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Infof("NATS reconnected to %v", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Log.Warnf("NATS connection closed")
		}),
	}

	// Add authentication if provided
	if c.config.Token != "" {
		opts = append(opts, nats.Token(c.config.Token))
	} else if c.config.Username != "" && c.config.Password != "" {
		opts = append(opts, nats.UserInfo(c.config.Username, c.config.Password))
	}

	if c.config.TLSEnabled {
		opts = append(opts, nats.Secure())
	}

	url := nats.DefaultURL
	if len(c.config.URLs) > 0 {
		url = strings.Join(c.config.URLs, ",")
	}

	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %v", err)
	}
	c.conn = conn

	logger.Log.Infof("NATS client connected to %s", c.conn.ConnectedUrl())
	return nil
}

// JobSubject is the subject a job in status is published on.
func (c *Client) JobSubject(status models.JobStatus) string {
	return JobSubject(c.config.SubjectPrefix, status)
}

// JobSubject builds "<prefix>.jobs.<status>".
func JobSubject(prefix string, status models.JobStatus) string {
	return prefix + ".jobs." + string(status)
}

// Name identifies the publisher in logs.
func (c *Client) Name() string {
	return "nats"
}

// PublishJobEvent publishes the job on the subject for its status.
func (c *Client) PublishJobEvent(_ context.Context, job *models.Job) error {
	if c.conn == nil {
		return fmt.Errorf("NATS client not connected")
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return c.conn.Publish(c.JobSubject(job.Status), data)
}

// SubscribeJobEvents delivers every job event under the prefix to handler.
func (c *Client) SubscribeJobEvents(handler func(*models.Job)) (*nats.Subscription, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("NATS client not connected")
	}
	return c.conn.Subscribe(c.config.SubjectPrefix+".jobs.>", func(msg *nats.Msg) {
		var job models.Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			logger.Log.Errorf("Failed to unmarshal job event on %s: %v", msg.Subject, err)
			return
		}
		handler(&job)
	})
}

// Close closes the NATS connection
func (c *Client) Close() {
	if c.conn != nil {
		c.conn.Close()
		logger.Log.Info("NATS client connection closed")
	}
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// HealthCheck performs a health check on the NATS connection
func (c *Client) HealthCheck() error {
	if c.conn == nil {
		return fmt.Errorf("NATS client not connected")
	}

	if !c.conn.IsConnected() {
		return fmt.Errorf("NATS connection is down")
	}

	if err := c.conn.Flush(); err != nil {
		return fmt.Errorf("NATS health check failed: %v", err)
	}

	return nil
}
