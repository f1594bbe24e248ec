package main

import (
	"AppealRecognition/internal/config"
	detectionRunService "AppealRecognition/internal/api/detection_run/service"
	"AppealRecognition/pkg/log"
	"AppealRecognition/pkg/redis"
	"AppealRecognition/pkg/worker"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.NewLogger().Fatalf("Error loading .env file: %v", err)
	}
	logger := log.NewLogger()

	fiberApp := config.NewFiber(logger)
	validator := config.NewValidator()
	redisServer := redis.New()

	server, err := config.NewServer(
		config.WithFiber(fiberApp),
		config.WithLogger(logger),
		config.WithValidator(validator),
		config.WithDatabase(),
		config.WithRedisServer(redisServer),
		config.WithMiddleware(),
		config.WithS3Client(),
		config.WithWorker(worker.ConfigFromEnv()),
		config.WithPipelineConfig(detectionRunService.ConfigFromEnv()),
		config.WithUtils(),
	)
	if err != nil {
		logger.Fatal(err)
	}

	server.RegisterHandler()

	if err := server.ReconcileStaleRuns(); err != nil {
		logger.Errorf("Failed to reconcile stale runs: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Run(); err != nil {
			logger.Fatalf("Error starting server: %v", err)
		}
	}()

	logger.Info("Server started successfully")

	<-sigChan
	logger.Info("Shutting down server...")

	if err := server.Shutdown(30 * time.Second); err != nil {
		logger.Errorf("Error during shutdown: %v", err)
	}
}
