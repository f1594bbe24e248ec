package detectionRunHandler

import (
	detectionRunService "AppealRecognition/internal/api/detection_run/service"
	"AppealRecognition/internal/middleware"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type DetectionRunHandler struct {
	log                 *logrus.Logger
	validator           *validator.Validate
	middleware          middleware.Middleware
	detectionRunService detectionRunService.IDetectionRunService
	pollInterval        time.Duration
}

func New(
	log *logrus.Logger,
	validate *validator.Validate,
	middleware middleware.Middleware,
	drs detectionRunService.IDetectionRunService,
) *DetectionRunHandler {
	return &DetectionRunHandler{
		log:                 log,
		validator:           validate,
		middleware:          middleware,
		detectionRunService: drs,
		pollInterval:        time.Second,
	}
}

func (h *DetectionRunHandler) Start(srv fiber.Router) {
	wsMiddleware := func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}

	guard := []fiber.Handler{h.middleware.NewRateLimiter, h.middleware.NewTokenMiddleware}
	route := func(handlers ...fiber.Handler) []fiber.Handler {
		return append(append([]fiber.Handler{}, guard...), handlers...)
	}

	srv.Post("/detection-runs", route(h.CreateRun)...)
	srv.Get("/detection-runs", route(h.ListRuns)...)
	srv.Get("/detection-runs/:id", route(h.GetRun)...)
	srv.Get("/detection-runs/:id/crops/:filename", route(h.GetCroppedImage)...)
	srv.Get("/detection-runs/:id/ws",
		h.middleware.NewRateLimiter,
		h.middleware.NewWebSocketTokenMiddleware,
		wsMiddleware,
		websocket.New(h.handleRunStatusWebSocket),
	)
}
