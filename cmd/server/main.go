package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-auth-invite"
	"github.com/goliatone/go-auth-invite/activitymap"
	"github.com/goliatone/go-auth-invite/config"
	"github.com/goliatone/go-auth-invite/mailer"
	"github.com/goliatone/go-auth-invite/storage"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := newLogger(cfg)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Settings, logger auth.Logger) error {
	client, err := auth.NewPersistence(auth.PersistenceConfig{
		Driver: cfg.DBDriver,
		DSN:    cfg.DBDSN,
		Debug:  cfg.Debug,
	})
	if err != nil {
		return err
	}
	db := client.DB()
	defer db.Close()

	if cfg.DBMigrate {
		if err := auth.Migrate(ctx, client); err != nil {
			return err
		}
		logger.Info("migrations applied", "driver", cfg.DBDriver)
	}

	repo := auth.NewRepositoryManager(db,
		auth.WithRepositoryLogger(logger),
		auth.WithInvitationsOptions(auth.WithInvitationTTL(cfg.GetInvitationTTL())),
	)
	if err := repo.Validate(); err != nil {
		return err
	}

	tokenOpts := []auth.TokenServiceOption{auth.WithTokenLogger(logger)}
	serviceOpts := []auth.ServiceOption{
		auth.WithServiceLogger(logger),
		auth.WithServiceActivitySink(activitymap.LogSink(logger)),
	}

	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping", "error", err)
		}
		tokenOpts = append(tokenOpts, auth.WithRevoker(auth.NewRedisRevoker(rdb)))

		queueClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer queueClient.Close()

		serviceOpts = append(serviceOpts, auth.WithNotifier(
			mailer.NewQueue(queueClient, mailer.WithQueueName(cfg.MailQueue), mailer.WithQueueLogger(logger)),
		))
	} else if cfg.SMTPEnabled() {
		serviceOpts = append(serviceOpts, auth.WithNotifier(
			mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom),
		))
	} else {
		logger.Warn("no redis or smtp configured, invitation emails are only logged")
		serviceOpts = append(serviceOpts, auth.WithNotifier(mailer.LogSender{Logger: logger}))
	}

	templates, err := mailer.NewTemplates(cfg.AppName)
	if err != nil {
		return err
	}
	templates.Expires = cfg.GetInvitationTTL().String()
	serviceOpts = append(serviceOpts, auth.WithInviteRenderer(templates))

	disk, err := storage.NewDisk(cfg.StorageDir)
	if err != nil {
		return err
	}
	serviceOpts = append(serviceOpts, auth.WithAvatarStorage(disk))

	tokens := auth.NewTokenServiceFromConfig(cfg, tokenOpts...)
	service := auth.NewService(cfg, repo, tokens, serviceOpts...)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ErrorHandler: auth.FiberErrorHandler(logger, cfg.Debug),
		BodyLimit:    int(auth.AvatarMaxSize) + 64*1024,
	})
	app.Static("/storage", disk.Root)

	api := app.Group("/api")
	auth.RegisterAuthRoutes(api,
		auth.WithControllerService(service),
		auth.WithControllerDebug(cfg.Debug),
	)

	errc := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		errc <- app.Listen(cfg.HTTPAddr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down http server")
	return app.ShutdownWithTimeout(10 * time.Second)
}

func newLogger(cfg *config.Settings) auth.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Level()}
	if cfg.LogFormat == "json" {
		return auth.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, opts)))
	}
	return auth.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stdout, opts)))
}
