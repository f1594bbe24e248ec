package detectionRunService

import (
	"AppealRecognition/internal/api/detection_run"
	"AppealRecognition/internal/entity"
	contextPkg "AppealRecognition/pkg/context"
	"AppealRecognition/pkg/s3"
	"AppealRecognition/pkg/utils"
	"AppealRecognition/pkg/worker"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// CreateRun drives one upload through the worker and the artifact store and
// returns the run in its terminal state. Once the run has been persisted the
// pipeline no longer follows ctx cancellation.
func (s *detectionRunService) CreateRun(ctx context.Context, req detection_run.CreateRunRequest, file *multipart.FileHeader) (entity.DetectionRun, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if strings.TrimSpace(req.OwnerID) == "" {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
		}).Warn("Rejected upload without owner")
		return entity.DetectionRun{}, detection_run.ErrInvalidOwner
	}

	if err := s.utils.ValidateImageFile(file); err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Warn("Rejected upload")
		if errors.Is(err, utils.ErrNoFile) {
			return entity.DetectionRun{}, detection_run.ErrNoImageUploaded
		}
		return entity.DetectionRun{}, detection_run.ErrInvalidImageFile
	}

	now := time.Now()
	runID, err := s.utils.NewULIDFromTimestamp(now)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to generate ULID")
		return entity.DetectionRun{}, detection_run.ErrCreateRun
	}

	ctx = contextPkg.WithRunID(context.WithoutCancel(ctx), runID)
	fields := logrus.Fields{
		"request_id": requestID,
		"run_id":     runID,
	}

	scratchDir := filepath.Join(s.cfg.ScratchDir, runID)
	inputPath := filepath.Join(scratchDir, s3.SanitizeFileName(file.Filename))

	var result *worker.RawResult
	defer func() {
		s.cleanup(fields, scratchDir, result)
	}()

	if err := s.utils.SaveUploadedFile(file, inputPath); err != nil {
		s.log.WithFields(fields).WithField("error", err.Error()).Error("Failed to store upload in scratch dir")
		return entity.DetectionRun{}, detection_run.ErrStoreUpload
	}

	run := entity.DetectionRun{
		ID:         runID,
		OwnerID:    req.OwnerID,
		Status:     entity.RunStatusProcessing,
		Detections: []entity.Detection{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.createRun(ctx, run); err != nil {
		s.log.WithFields(fields).WithField("error", err.Error()).Error("Failed to persist run")
		return entity.DetectionRun{}, detection_run.ErrCreateRun
	}

	s.log.WithFields(fields).Info("Detection run started")

	raw, err := s.worker.Invoke(ctx, worker.Job{
		RunID:     runID,
		ImagePath: inputPath,
		WorkDir:   scratchDir,
	})
	if err != nil {
		reason, domainErr := workerFailure(err)
		return s.fail(ctx, fields, runID, reason, domainErr)
	}
	result = &raw

	artifacts, err := s.uploadArtifacts(ctx, fields, run, file.Filename, inputPath, raw)
	if err != nil {
		return s.fail(ctx, fields, runID, fmt.Sprintf("artifact upload failed: %v", err), detection_run.ErrArtifactUpload)
	}

	completed, err := s.markCompleted(ctx, runID, artifacts)
	if err != nil {
		s.log.WithFields(fields).WithField("error", err.Error()).Error("Failed to finalize run")
		if errors.Is(err, detection_run.ErrRunNotProcessing) {
			return entity.DetectionRun{}, detection_run.ErrFinalizeRun
		}
		return s.fail(ctx, fields, runID, fmt.Sprintf("failed to finalize run: %v", err), detection_run.ErrFinalizeRun)
	}

	s.cacheRun(ctx, fields, completed)

	s.log.WithFields(fields).WithField("detections", len(completed.Detections)).Info("Detection run completed")

	return s.present(ctx, completed), nil
}

type runArtifacts struct {
	original   entity.ArtifactRef
	detected   entity.ArtifactRef
	detections []entity.Detection
}

// uploadArtifacts uploads the original, the detected image and every crop in
// parallel. A crop that cannot be read locally is skipped; any other failure
// aborts the whole set. Objects already written are left in place.
func (s *detectionRunService) uploadArtifacts(ctx context.Context, fields logrus.Fields, run entity.DetectionRun, originalName, inputPath string, raw worker.RawResult) (runArtifacts, error) {
	var out runArtifacts
	crops := make([]*entity.ArtifactRef, len(raw.Detections))
	cropDir := cropDirOf(raw.ResultImagePath)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.UploadConcurrency)

	g.Go(func() error {
		ref, err := s.s3.Put(gctx, inputPath, s3.BuildKey(run.OwnerID, run.ID, originalName, s3.ArtifactOriginal))
		if err != nil {
			return fmt.Errorf("original image: %w", err)
		}
		out.original = ref
		return nil
	})

	g.Go(func() error {
		ref, err := s.s3.Put(gctx, raw.ResultImagePath, s3.BuildKey(run.OwnerID, run.ID, originalName, s3.ArtifactDetected))
		if err != nil {
			return fmt.Errorf("detected image: %w", err)
		}
		out.detected = ref
		return nil
	})

	names := make([]string, len(raw.Detections))
	for i, d := range raw.Detections {
		names[i] = cropName(d.CroppedImage)
	}
	keys := cropKeys(run.OwnerID, run.ID, names)

	for i, name := range names {
		if name == "" {
			s.log.WithFields(fields).WithField("index", i).Warn("Detection has no cropped image, skipping")
			continue
		}

		key := keys[i]
		g.Go(func() error {
			ref, err := s.s3.Put(gctx, filepath.Join(cropDir, name), key)
			if errors.Is(err, s3.ErrLocalRead) {
				s.log.WithFields(fields).WithFields(logrus.Fields{
					"crop":  name,
					"error": err.Error(),
				}).Warn("Cropped image missing, skipping detection")
				return nil
			}
			if err != nil {
				return fmt.Errorf("cropped image %s: %w", name, err)
			}
			crops[i] = &ref
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return runArtifacts{}, err
	}

	out.detections = make([]entity.Detection, 0, len(raw.Detections))
	for i, d := range raw.Detections {
		if crops[i] == nil {
			continue
		}
		out.detections = append(out.detections, entity.Detection{
			Label:           d.Label,
			Confidence:      d.Confidence,
			BoundingBox:     entity.BoundingBox{d.BoundingBox[0], d.BoundingBox[1], d.BoundingBox[2], d.BoundingBox[3]},
			SourceFilename:  cropName(d.CroppedImage),
			CroppedArtifact: crops[i],
		})
	}

	return out, nil
}

func (s *detectionRunService) createRun(ctx context.Context, run entity.DetectionRun) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LedgerTimeout)
	defer cancel()

	repo, err := s.runRepository.NewClient(false)
	if err != nil {
		return err
	}

	return repo.Run.CreateRun(ctx, run)
}

func (s *detectionRunService) markCompleted(ctx context.Context, runID string, a runArtifacts) (entity.DetectionRun, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LedgerTimeout)
	defer cancel()

	repo, err := s.runRepository.NewClient(false)
	if err != nil {
		return entity.DetectionRun{}, err
	}

	return repo.Run.MarkCompleted(ctx, runID, a.original, a.detected, a.detections)
}

// fail records reason on the ledger before handing domainErr back.
func (s *detectionRunService) fail(ctx context.Context, fields logrus.Fields, runID, reason string, domainErr error) (entity.DetectionRun, error) {
	s.log.WithFields(fields).WithField("reason", reason).Error("Detection run failed")

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.LedgerTimeout)
	defer cancel()

	repo, err := s.runRepository.NewClient(false)
	if err != nil {
		s.log.WithFields(fields).WithField("error", err.Error()).Error("Failed to create new client")
		return entity.DetectionRun{}, domainErr
	}

	failed, err := repo.Run.MarkFailed(ctx, runID, reason)
	if err != nil {
		s.log.WithFields(fields).WithField("error", err.Error()).Error("Failed to mark run as failed")
		return entity.DetectionRun{}, domainErr
	}

	s.cacheRun(ctx, fields, failed)

	return entity.DetectionRun{}, domainErr
}

// cleanup removes the scratch dir and the files the worker produced for this
// run. Errors are only logged.
func (s *detectionRunService) cleanup(fields logrus.Fields, scratchDir string, result *worker.RawResult) {
	var paths []string
	if result != nil {
		cropDir := cropDirOf(result.ResultImagePath)
		paths = append(paths, result.ResultImagePath)
		for _, d := range result.Detections {
			if name := cropName(d.CroppedImage); name != "" {
				paths = append(paths, filepath.Join(cropDir, name))
			}
		}

		defer func() {
			// The crop dir may be shared with other runs, so only drop it once empty.
			if err := os.Remove(cropDir); err != nil && !os.IsNotExist(err) {
				s.log.WithFields(fields).WithField("error", err.Error()).Debug("Crop dir not removed")
			}
		}()
	}

	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.log.WithFields(fields).WithFields(logrus.Fields{
				"path":  p,
				"error": err.Error(),
			}).Warn("Failed to remove worker artifact")
		}
	}

	if err := os.RemoveAll(scratchDir); err != nil {
		s.log.WithFields(fields).WithField("error", err.Error()).Warn("Failed to remove scratch dir")
	}
}

func workerFailure(err error) (string, error) {
	var (
		timeoutErr   *worker.TimeoutError
		exitErr      *worker.ExitError
		malformedErr *worker.MalformedOutputError
	)

	switch {
	case errors.As(err, &timeoutErr):
		return withOutput(timeoutErr.Error(), timeoutErr.Output), detection_run.ErrWorkerTimeout
	case errors.As(err, &exitErr):
		return withOutput(exitErr.Error(), exitErr.Output), detection_run.ErrWorkerFailed
	case errors.As(err, &malformedErr):
		return withOutput(malformedErr.Error(), malformedErr.Output), detection_run.ErrMalformedWorkerOutput
	case errors.Is(err, worker.ErrMissingDependency):
		return err.Error(), detection_run.ErrWorkerMissingDependency
	default:
		return err.Error(), detection_run.ErrWorkerFailed
	}
}

func withOutput(msg, output string) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return msg
	}
	return msg + ": " + output
}

// cropKeys gives every named crop its own object key. Names that sanitize to
// an already taken key get the detection index prepended.
func cropKeys(ownerID, runID string, names []string) []string {
	keys := make([]string, len(names))
	used := make(map[string]bool, len(names))

	for i, name := range names {
		if name == "" {
			continue
		}

		key := s3.BuildKey(ownerID, runID, name, s3.ArtifactCropped)
		for n := i; used[key]; n += len(names) {
			key = s3.BuildKey(ownerID, runID, fmt.Sprintf("%d_%s", n, name), s3.ArtifactCropped)
		}
		used[key] = true
		keys[i] = key
	}

	return keys
}

func cropDirOf(resultImagePath string) string {
	return filepath.Join(filepath.Dir(resultImagePath), "cropped")
}

func cropName(croppedImage string) string {
	name := filepath.Base(strings.TrimSpace(croppedImage))
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}
