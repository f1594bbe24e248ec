package detectionRunService

import (
	"AppealRecognition/internal/api/detection_run"
	detectionRunRepository "AppealRecognition/internal/api/detection_run/repository"
	"AppealRecognition/internal/entity"
	contextPkg "AppealRecognition/pkg/context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

func (s *detectionRunService) ListRuns(ctx context.Context, ownerID string) ([]entity.DetectionRun, error) {
	requestID := contextPkg.GetRequestID(ctx)

	if strings.TrimSpace(ownerID) == "" {
		return nil, detection_run.ErrInvalidOwner
	}

	repo, err := s.runRepository.NewClient(false)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to create new client")
		return nil, err
	}

	runs, err := repo.Run.GetRunsByOwner(ctx, ownerID, detectionRunRepository.DefaultListLimit)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"owner_id":   ownerID,
			"error":      err.Error(),
		}).Error("Failed to list runs")
		return nil, err
	}

	for i := range runs {
		runs[i] = s.present(ctx, runs[i])
	}

	return runs, nil
}

// GetRun never distinguishes a missing run from one owned by someone else.
func (s *detectionRunService) GetRun(ctx context.Context, ownerID string, runID string) (entity.DetectionRun, error) {
	run, err := s.getRun(ctx, ownerID, runID)
	if err != nil {
		return entity.DetectionRun{}, err
	}
	return s.present(ctx, run), nil
}

func (s *detectionRunService) GetCroppedArtifact(ctx context.Context, ownerID string, runID string, filename string) (entity.ArtifactRef, error) {
	run, err := s.getRun(ctx, ownerID, runID)
	if err != nil {
		return entity.ArtifactRef{}, err
	}

	detection, ok := run.FindCrop(filename)
	if !ok {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"run_id":     runID,
			"filename":   filename,
		}).Warn("Cropped image not found")
		return entity.ArtifactRef{}, detection_run.ErrCroppedImageNotFound
	}

	return s.presentRef(ctx, *detection.CroppedArtifact), nil
}

// ReconcileStaleRuns fails runs left in processing by a crashed process.
func (s *detectionRunService) ReconcileStaleRuns(ctx context.Context) (int, error) {
	requestID := contextPkg.GetRequestID(ctx)

	repo, err := s.runRepository.NewClient(false)
	if err != nil {
		return 0, err
	}

	stale, err := repo.Run.GetStaleRuns(ctx, time.Now().Add(-s.cfg.StaleAfter))
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to list stale runs")
		return 0, err
	}

	reason := fmt.Sprintf("abandoned: still processing after %s", s.cfg.StaleAfter)

	var (
		reconciled int
		errs       []error
	)
	for _, run := range stale {
		failed, err := repo.Run.MarkFailed(ctx, run.ID, reason)
		if errors.Is(err, detection_run.ErrRunNotProcessing) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("run %s: %w", run.ID, err))
			continue
		}

		s.cacheRun(ctx, logrus.Fields{"request_id": requestID, "run_id": run.ID}, failed)
		reconciled++
	}

	if reconciled > 0 {
		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"count":      reconciled,
		}).Warn("Marked abandoned runs as failed")
	}

	return reconciled, errors.Join(errs...)
}

func (s *detectionRunService) getRun(ctx context.Context, ownerID string, runID string) (entity.DetectionRun, error) {
	requestID := contextPkg.GetRequestID(ctx)
	fields := logrus.Fields{
		"request_id": requestID,
		"run_id":     runID,
	}

	if strings.TrimSpace(ownerID) == "" || strings.TrimSpace(runID) == "" {
		return entity.DetectionRun{}, detection_run.ErrRunNotFound
	}

	if s.cache != nil {
		cached, ok, err := s.cache.GetRun(ctx, runID)
		if err != nil {
			s.log.WithFields(fields).WithField("error", err.Error()).Warn("Run cache read failed, using ledger")
		} else if ok {
			if cached.OwnerID != ownerID {
				return entity.DetectionRun{}, detection_run.ErrRunNotFound
			}
			return cached, nil
		}
	}

	repo, err := s.runRepository.NewClient(false)
	if err != nil {
		s.log.WithFields(fields).WithField("error", err.Error()).Error("Failed to create new client")
		return entity.DetectionRun{}, err
	}

	run, err := repo.Run.GetRunByOwner(ctx, ownerID, runID)
	if err != nil {
		return entity.DetectionRun{}, err
	}

	s.cacheRun(ctx, fields, run)

	return run, nil
}

func (s *detectionRunService) cacheRun(ctx context.Context, fields logrus.Fields, run entity.DetectionRun) {
	if s.cache == nil || !run.Status.IsTerminal() {
		return
	}

	if err := s.cache.SetRun(ctx, run, s.cfg.CacheTTL); err != nil {
		s.log.WithFields(fields).WithField("error", err.Error()).Warn("Failed to cache run")
	}
}

// present swaps stored URLs for presigned ones when reads are presigned. The
// returned run shares nothing mutable with the input.
func (s *detectionRunService) present(ctx context.Context, run entity.DetectionRun) entity.DetectionRun {
	if run.OriginalArtifact != nil {
		ref := s.presentRef(ctx, *run.OriginalArtifact)
		run.OriginalArtifact = &ref
	}
	if run.DetectedArtifact != nil {
		ref := s.presentRef(ctx, *run.DetectedArtifact)
		run.DetectedArtifact = &ref
	}

	detections := make([]entity.Detection, len(run.Detections))
	for i, d := range run.Detections {
		if d.CroppedArtifact != nil {
			ref := s.presentRef(ctx, *d.CroppedArtifact)
			d.CroppedArtifact = &ref
		}
		detections[i] = d
	}
	run.Detections = detections

	return run
}

func (s *detectionRunService) presentRef(ctx context.Context, ref entity.ArtifactRef) entity.ArtifactRef {
	if !s.cfg.PresignReads || ref.Key == "" {
		return ref
	}

	url, err := s.s3.PresignUrl(ref.Key)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"request_id": contextPkg.GetRequestID(ctx),
			"key":        ref.Key,
			"error":      err.Error(),
		}).Warn("Failed to presign artifact, using stored URL")
		return ref
	}

	ref.URL = url
	return ref
}
