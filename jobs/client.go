package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
)

// Client enqueues tasks on demand, e.g. from the CLI.
type Client struct {
	client *asynq.Client
}

// NewClient connects lazily to the queue's Redis.
func NewClient(opts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(opts)}
}

// Enqueue submits task to the default queue with three retries. Extra options
// are applied after the defaults.
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if task == nil {
		return nil, errors.New("jobs: nil task")
	}
	if c == nil || c.client == nil {
		return nil, errors.New("jobs: client not configured")
	}
	all := append([]asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(3)}, opts...)
	return c.client.EnqueueContext(ctx, task, all...)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
