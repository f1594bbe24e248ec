package detectionRunHandler

import (
	"AppealRecognition/internal/api/detection_run"
	"AppealRecognition/internal/entity"
	"time"
)

func toCroppedImages(detections []entity.Detection) []detection_run.CroppedImageResponse {
	images := make([]detection_run.CroppedImageResponse, 0, len(detections))
	for _, d := range detections {
		if d.CroppedArtifact == nil {
			continue
		}
		images = append(images, detection_run.CroppedImageResponse{
			Class:      d.Label,
			Confidence: d.Confidence,
			BBox:       d.BoundingBox,
			ImageURL:   d.CroppedArtifact.URL,
			Filename:   d.SourceFilename,
		})
	}
	return images
}

func toUploadResponse(run entity.DetectionRun) detection_run.UploadResponse {
	resp := detection_run.UploadResponse{
		RunID:         run.ID,
		CroppedImages: toCroppedImages(run.Detections),
	}
	if run.OriginalArtifact != nil {
		resp.OriginalImageURL = run.OriginalArtifact.URL
	}
	if run.DetectedArtifact != nil {
		resp.DetectedImageURL = run.DetectedArtifact.URL
	}
	return resp
}

func toRunResponse(run entity.DetectionRun) detection_run.RunResponse {
	resp := detection_run.RunResponse{
		RunID:         run.ID,
		Status:        string(run.Status),
		CreatedAt:     run.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     run.UpdatedAt.UTC().Format(time.RFC3339),
		CroppedImages: toCroppedImages(run.Detections),
		Error:         run.FailureReason,
	}
	if run.OriginalArtifact != nil {
		resp.OriginalImageURL = run.OriginalArtifact.URL
	}
	if run.DetectedArtifact != nil {
		resp.DetectedImageURL = run.DetectedArtifact.URL
	}
	return resp
}
