package mailer

import (
	"context"
	"encoding/json"
	"errors"

	auth "github.com/goliatone/go-auth-invite"
	"github.com/hibiken/asynq"
)

// WorkerConfig collects what the mail worker needs to run.
type WorkerConfig struct {
	RedisOpts   asynq.RedisConnOpt
	Concurrency int
	Queue       string
	Sender      Sender
	Logger      auth.Logger
}

// Worker consumes TaskTypeSendEmail tasks and passes them to a Sender.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	sender Sender
	logger auth.Logger
}

func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Sender == nil {
		return nil, errors.New("mailer: worker requires a sender")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.Queue == "" {
		cfg.Queue = QueueDefault
	}
	if cfg.Logger == nil {
		cfg.Logger = auth.NopLogger()
	}

	w := &Worker{
		sender: cfg.Sender,
		logger: cfg.Logger,
		mux:    asynq.NewServeMux(),
	}
	w.mux.HandleFunc(TaskTypeSendEmail, w.HandleSendEmailTask)

	if cfg.RedisOpts != nil {
		w.server = asynq.NewServer(cfg.RedisOpts, asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      map[string]int{cfg.Queue: 1},
		})
	}

	return w, nil
}

// HandleSendEmailTask processes one mail task. Malformed payloads are not
// retried.
func (w *Worker) HandleSendEmailTask(ctx context.Context, t *asynq.Task) error {
	var payload SendEmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("mail task payload invalid", "error", err)
		return asynq.SkipRetry
	}
	if payload.To == "" {
		w.logger.Error("mail task without recipient")
		return asynq.SkipRetry
	}

	if err := w.sender.Send(ctx, payload.To, payload.Subject, payload.Body); err != nil {
		w.logger.Warn("mail delivery failed", "to", payload.To, "error", err)
		return err
	}

	w.logger.Info("mail delivered", "to", payload.To, "subject", payload.Subject)
	return nil
}

// Handler exposes the task mux, mostly for tests.
func (w *Worker) Handler() asynq.Handler {
	return w.mux
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if w.server == nil {
		return errors.New("mailer: worker has no redis connection")
	}
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	w.logger.Info("mail worker started")

	<-ctx.Done()

	w.server.Shutdown()
	w.logger.Info("mail worker stopped")
	return nil
}
