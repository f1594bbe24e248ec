package config

import (
	"AppealRecognition/database"
	detectionRunHandler "AppealRecognition/internal/api/detection_run/handler"
	detectionRunRepository "AppealRecognition/internal/api/detection_run/repository"
	detectionRunService "AppealRecognition/internal/api/detection_run/service"
	"AppealRecognition/internal/middleware"
	"AppealRecognition/pkg/redis"
	"AppealRecognition/pkg/s3"
	"AppealRecognition/pkg/utils"
	"AppealRecognition/pkg/worker"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

type ServerOption func(*Server) error

type Server struct {
	engine         *fiber.App
	db             *sqlx.DB
	log            *logrus.Logger
	middleware     middleware.Middleware
	validator      *validator.Validate
	utils          utils.IUtils
	handlers       []handler
	redisServer    redis.IRedis
	s3Client       s3.ItfS3
	worker         worker.IWorker
	pipelineConfig detectionRunService.Config
	runService     detectionRunService.IDetectionRunService
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{
		pipelineConfig: detectionRunService.ConfigFromEnv(),
	}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithDatabase() ServerOption {
	return func(s *Server) error {
		db, err := database.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to connect to database: %v", err)
			}
			return fmt.Errorf("failed to create database connection: %w", err)
		}
		s.db = db
		return nil
	}
}

// WithRedisServer accepts a nil cache; runs are then always read from the
// ledger.
func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log)
		return nil
	}
}

func WithS3Client() ServerOption {
	return func(s *Server) error {
		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

func WithWorker(cfg worker.Config) ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before worker")
		}
		s.worker = worker.New(cfg, s.log)
		return nil
	}
}

func WithPipelineConfig(cfg detectionRunService.Config) ServerOption {
	return func(s *Server) error {
		if err := os.MkdirAll(cfg.ScratchDir, 0o750); err != nil {
			return fmt.Errorf("failed to create scratch dir: %w", err)
		}
		s.pipelineConfig = cfg
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

func (s *Server) RegisterHandler() {
	runRepo := detectionRunRepository.New(s.db, s.log)
	s.runService = detectionRunService.NewDetectionRunService(s.log, s.pipelineConfig, runRepo, s.worker, s.s3Client, s.redisServer, s.utils)
	runHandlers := detectionRunHandler.New(s.log, s.validator, s.middleware, s.runService)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, runHandlers)
}

// ReconcileStaleRuns fails runs a previous process left in processing.
func (s *Server) ReconcileStaleRuns() error {
	if s.runService == nil {
		return fmt.Errorf("handlers must be registered before reconciling runs")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.runService.ReconcileStaleRuns(ctx)
	if err != nil {
		return err
	}

	s.log.WithField("count", n).Info("Stale run reconciliation finished")
	return nil
}

func (s *Server) Run() error {
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(middleware.LoggerConfig())
	router := s.engine.Group("/api/v1")

	for _, h := range s.handlers {
		h.Start(router)
	}

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "3000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

func (s *Server) Shutdown(timeout time.Duration) error {
	err := s.engine.ShutdownWithTimeout(timeout)
	if s.db != nil {
		if closeErr := s.db.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message": "Server is Healthy!",
		})
	})
}
