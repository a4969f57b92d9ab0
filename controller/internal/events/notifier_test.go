package events

import (
	"context"
	"errors"
	"testing"

	"github.com/doniyusdinar/deploybot/pkg/models"
	"github.com/stretchr/testify/assert"
)

type fakePublisher struct {
	name string
	err  error
	got  []string
}

func (f *fakePublisher) Name() string { return f.name }

func (f *fakePublisher) PublishJobEvent(_ context.Context, job *models.Job) error {
	f.got = append(f.got, job.ID+":"+string(job.Status))
	return f.err
}

func TestJobChangedFansOut(t *testing.T) {
	broken := &fakePublisher{name: "broken", err: errors.New("down")}
	ok := &fakePublisher{name: "ok"}
	n := NewNotifier(broken)
	n.Add(ok)
	assert.Equal(t, 2, n.Len())

	n.JobChanged(context.Background(), &models.Job{ID: "j1", Status: models.JobRunning})

	assert.Equal(t, []string{"j1:running"}, broken.got)
	assert.Equal(t, []string{"j1:running"}, ok.got)
}

func TestJobChangedSurvivesCancelledRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var seen error
	p := &ctxPublisher{check: func(ctx context.Context) { seen = ctx.Err() }}
	NewNotifier(p).JobChanged(ctx, &models.Job{ID: "j1"})
	assert.NoError(t, seen)
}

type ctxPublisher struct {
	check func(context.Context)
}

func (c *ctxPublisher) Name() string { return "ctx" }

func (c *ctxPublisher) PublishJobEvent(ctx context.Context, _ *models.Job) error {
	c.check(ctx)
	return nil
}
