package mailer

import (
	"context"
	"time"

	auth "github.com/goliatone/go-auth-invite"
	goerrors "github.com/goliatone/go-errors"
	"github.com/hibiken/asynq"
)

var _ auth.Notifier = (*Queue)(nil)

// Queue is an auth.Notifier that hands messages to the mail worker through
// asynq. Send returns once the task is stored in redis.
type Queue struct {
	client   *asynq.Client
	queue    string
	maxRetry int
	timeout  time.Duration
	logger   auth.Logger
}

type QueueOption func(*Queue)

func WithQueueName(name string) QueueOption {
	return func(q *Queue) {
		if name != "" {
			q.queue = name
		}
	}
}

func WithMaxRetry(n int) QueueOption {
	return func(q *Queue) {
		if n >= 0 {
			q.maxRetry = n
		}
	}
}

func WithQueueLogger(l auth.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

func NewQueue(client *asynq.Client, opts ...QueueOption) *Queue {
	q := &Queue{
		client:   client,
		queue:    QueueDefault,
		maxRetry: 5,
		timeout:  5 * time.Second,
		logger:   auth.NopLogger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *Queue) Send(ctx context.Context, to, subject, body string) error {
	if q.client == nil {
		return auth.ErrNotifierUnavailable
	}

	task, err := NewSendEmailTask(SendEmailPayload{To: to, Subject: subject, Body: body})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode mail task")
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	info, err := q.client.EnqueueContext(ctx, task,
		asynq.Queue(q.queue),
		asynq.MaxRetry(q.maxRetry),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to enqueue mail task").
			WithTextCode(auth.TextCodeNotifierUnavailable)
	}

	q.logger.Debug("mail task enqueued", "task_id", info.ID, "queue", info.Queue)
	return nil
}
