package main

import (
	"fmt"
	"log"

	"merchantcrm/internal/config"
	"merchantcrm/internal/db"
	"merchantcrm/internal/forms"
	"merchantcrm/internal/logger"
	"merchantcrm/internal/mailer"
	"merchantcrm/internal/pkg/openai"
	"merchantcrm/internal/routes"
	"merchantcrm/internal/tasks"

	"github.com/hibiken/asynq"
	_ "github.com/joho/godotenv/autoload"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.RequireSessionSecret(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	conn, err := db.InitDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.Migrate(conn); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	var queue tasks.Enqueuer
	if cfg.RedisURL != "" {
		redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Failed to parse Redis URL", zap.Error(err))
		}
		client := asynq.NewClient(redisOpt)
		defer client.Close()
		queue = client
	} else {
		// no Redis: run tasks in-process
		var sender mailer.Sender = &mailer.LogSender{Logger: logger}
		if cfg.SMTPConfigured() {
			sender = mailer.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPSender)
		}
		processor := tasks.NewTaskProcessor(conn, sender, logger, cfg.AppBaseURL)
		queue = &tasks.InlineEnqueuer{Handler: processor.Mux(), Logger: logger}
		logger.Warn("REDIS_URL is not set, background tasks run inline")
	}

	var primary forms.Labeler
	if cfg.OpenAIAPIKey != "" {
		client, err := openai.NewFieldLabeler(cfg.OpenAIAPIKey, cfg.OpenAIModel, nil)
		if err != nil {
			logger.Fatal("Failed to create OpenAI client", zap.Error(err))
		}
		primary = forms.AILabeler{Client: client}
	}

	router := routes.SetupRouter(routes.Deps{
		DB:      conn,
		Config:  cfg,
		Logger:  logger,
		Queue:   queue,
		Labeler: forms.NewSuggestingLabeler(primary, logger),
	})

	serverAddr := fmt.Sprintf(":%s", cfg.Port)
	logger.Info("Starting server", zap.String("addr", serverAddr))
	if err := router.Run(serverAddr); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}
