package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"merchantcrm/internal/config"
	"merchantcrm/internal/db"
	"merchantcrm/internal/logger"
	"merchantcrm/internal/mailer"
	"merchantcrm/internal/tasks"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.RedisURL == "" {
		logger.Fatal("REDIS_URL is required for the worker")
	}

	conn, err := db.InitDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	logger.Info("Worker connected to database")

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Failed to parse Redis URL", zap.Error(err))
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	purgeTask := tasks.NewPurgeTask()

	// hourly
	entryID, err := scheduler.Register("0 * * * *", purgeTask, asynq.Queue("default"))
	if err != nil {
		logger.Fatal("Failed to register periodic task", zap.Error(err))
	}
	logger.Info("Registered periodic task", zap.String("type", purgeTask.Type()), zap.String("entry_id", entryID))

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Queues: map[string]int{
				"default": 3,
			},
			Concurrency: 10,
		},
	)

	var sender mailer.Sender = &mailer.LogSender{Logger: logger}
	if cfg.SMTPConfigured() {
		sender = mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPSender)
	} else {
		logger.Warn("SMTP is not configured, emails are only logged")
	}
	taskProcessor := tasks.NewTaskProcessor(conn, sender, logger, cfg.AppBaseURL)

	go func() {
		logger.Info("Starting Asynq scheduler")
		if err := scheduler.Run(); err != nil {
			logger.Fatal("Could not run Asynq scheduler", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("Starting Asynq worker server")
		if err := srv.Run(taskProcessor.Mux()); err != nil {
			logger.Fatal("Could not run Asynq worker server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	<-quit

	logger.Info("Shutdown signal received, shutting down gracefully")

	scheduler.Shutdown()
	logger.Info("Asynq scheduler shut down")

	srv.Shutdown()
	logger.Info("Worker process shut down complete")
}
