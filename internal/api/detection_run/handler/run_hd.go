package detectionRunHandler

import (
	"AppealRecognition/internal/api/detection_run"
	contextPkg "AppealRecognition/pkg/context"
	"AppealRecognition/pkg/handlerUtil"
	jwtPkg "AppealRecognition/pkg/jwt"
	"AppealRecognition/pkg/log"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/net/context"
)

const readTimeout = 10 * time.Second

// CreateRun holds the request until the run is terminal; the worker timeout
// bounds how long that takes.
func (h *DetectionRunHandler) CreateRun(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c := contextPkg.FromFiberCtx(ctx)

	errHandler := handlerUtil.New(h.log)

	h.log.WithFields(log.Fields{
		"request_id": requestID,
		"path":       ctx.Path(),
	}).Debug("Processing create detection run request")

	userData, err := jwtPkg.GetUserLoginData(ctx)
	if err != nil {
		return errHandler.HandleUnauthorized(ctx, requestID, "Unauthorized")
	}

	req := detection_run.CreateRunRequest{OwnerID: userData.ID}
	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	image, err := ctx.FormFile("image")
	if err != nil {
		return errHandler.Handle(ctx, requestID, detection_run.ErrNoImageUploaded, ctx.Path(), "read_image")
	}

	run, err := h.detectionRunService.CreateRun(c, req, image)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "create_detection_run")
	}

	return errHandler.HandleSuccess(ctx, fiber.StatusOK, toUploadResponse(run))
}

func (h *DetectionRunHandler) ListRuns(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), readTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	userData, err := jwtPkg.GetUserLoginData(ctx)
	if err != nil {
		return errHandler.HandleUnauthorized(ctx, requestID, "Unauthorized")
	}

	runs, err := h.detectionRunService.ListRuns(c, userData.ID)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "list_detection_runs")
	}

	response := detection_run.RunListResponse{
		Runs: make([]detection_run.RunResponse, 0, len(runs)),
	}
	for _, run := range runs {
		response.Runs = append(response.Runs, toRunResponse(run))
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, response)
	}
}

func (h *DetectionRunHandler) GetRun(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), readTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	userData, err := jwtPkg.GetUserLoginData(ctx)
	if err != nil {
		return errHandler.HandleUnauthorized(ctx, requestID, "Unauthorized")
	}

	req := detection_run.GetRunRequest{
		OwnerID: userData.ID,
		RunID:   ctx.Params("id"),
	}
	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	run, err := h.detectionRunService.GetRun(c, req.OwnerID, req.RunID)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_detection_run")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, toRunResponse(run))
	}
}

func (h *DetectionRunHandler) GetCroppedImage(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	c, cancel := context.WithTimeout(contextPkg.FromFiberCtx(ctx), readTimeout)
	defer cancel()

	errHandler := handlerUtil.New(h.log)

	userData, err := jwtPkg.GetUserLoginData(ctx)
	if err != nil {
		return errHandler.HandleUnauthorized(ctx, requestID, "Unauthorized")
	}

	// Route params arrive still percent-encoded.
	filename, err := url.PathUnescape(ctx.Params("filename"))
	if err != nil {
		return errHandler.Handle(ctx, requestID, detection_run.ErrCroppedImageNotFound, ctx.Path(), "get_cropped_image")
	}

	req := detection_run.GetCroppedImageRequest{
		OwnerID:  userData.ID,
		RunID:    ctx.Params("id"),
		Filename: filename,
	}
	if err := h.validator.Struct(req); err != nil {
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	ref, err := h.detectionRunService.GetCroppedArtifact(c, req.OwnerID, req.RunID, req.Filename)
	if err != nil {
		return errHandler.Handle(ctx, requestID, err, ctx.Path(), "get_cropped_image")
	}

	select {
	case <-c.Done():
		return errHandler.HandleRequestTimeout(ctx)
	default:
		return errHandler.HandleSuccess(ctx, fiber.StatusOK, detection_run.CroppedArtifactResponse{
			Key: ref.Key,
			URL: ref.URL,
		})
	}
}
