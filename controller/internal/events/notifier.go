package events

import (
	"context"
	"time"

	"github.com/doniyusdinar/deploybot/pkg/logger"
	"github.com/doniyusdinar/deploybot/pkg/models"
)

const publishTimeout = 2 * time.Second

// Publisher announces job changes to an external bus
type Publisher interface {
	Name() string
	PublishJobEvent(ctx context.Context, job *models.Job) error
}

// Notifier fans job changes out to every configured publisher. Publish
// failures are logged and never reach the caller.
type Notifier struct {
	publishers []Publisher
}

// NewNotifier creates a notifier over publishers.
func NewNotifier(publishers ...Publisher) *Notifier {
	return &Notifier{publishers: publishers}
}

// Add registers another publisher.
func (n *Notifier) Add(p Publisher) {
	n.publishers = append(n.publishers, p)
}

// Len reports how many publishers are configured.
func (n *Notifier) Len() int {
	return len(n.publishers)
}

// JobChanged publishes job to every publisher.
func (n *Notifier) JobChanged(ctx context.Context, job *models.Job) {
	for _, p := range n.publishers {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		if err := p.PublishJobEvent(pctx, job); err != nil {
			logger.WithJob(job.ID, job.Host).Warnf("Failed to publish job event to %s: %v", p.Name(), err)
		}
		cancel()
	}
}
