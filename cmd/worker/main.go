package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	auth "github.com/goliatone/go-auth-invite"
	"github.com/goliatone/go-auth-invite/config"
	"github.com/goliatone/go-auth-invite/mailer"
	"github.com/hibiken/asynq"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := auth.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()})))

	if !cfg.RedisEnabled() {
		logger.Error("mail worker requires REDIS_ADDR")
		os.Exit(1)
	}

	var sender mailer.Sender = mailer.LogSender{Logger: logger}
	if cfg.SMTPEnabled() {
		sender = mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom)
	} else {
		logger.Warn("SMTP_HOST not set, mail is only logged")
	}

	worker, err := mailer.NewWorker(mailer.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		},
		Queue:  cfg.MailQueue,
		Sender: sender,
		Logger: logger,
	})
	if err != nil {
		logger.Error("init mail worker", "error", err)
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil {
		logger.Error("mail worker", "error", err)
		os.Exit(1)
	}
}
