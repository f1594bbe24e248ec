package entity

import (
	"errors"
	"time"
)

type RunStatus string

const (
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusProcessing, RunStatusCompleted, RunStatusFailed:
		return true
	default:
		return false
	}
}

// ArtifactRef points at bytes held by the artifact store.
type ArtifactRef struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// BoundingBox is left, top, right, bottom in source image pixels.
type BoundingBox [4]float64

type Detection struct {
	Label           string       `json:"label"`
	Confidence      float64      `json:"confidence"`
	BoundingBox     BoundingBox  `json:"bounding_box"`
	SourceFilename  string       `json:"source_filename"`
	CroppedArtifact *ArtifactRef `json:"cropped_artifact,omitempty"`
}

type DetectionRun struct {
	ID               string
	OwnerID          string
	Status           RunStatus
	OriginalArtifact *ArtifactRef
	DetectedArtifact *ArtifactRef
	Detections       []Detection
	FailureReason    string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

var (
	errRunMissingID        = errors.New("run id is required")
	errRunMissingOwner     = errors.New("run owner is required")
	errRunInvalidStatus    = errors.New("run status is invalid")
	errRunMissingArtifacts = errors.New("completed run must reference original and detected artifacts")
	errRunUnexpectedReason = errors.New("only failed runs carry a failure reason")
	errRunMissingReason    = errors.New("failed run must carry a failure reason")
	errRunFailedArtifacts  = errors.New("failed run must not reference artifacts")
	errDetectionConfidence = errors.New("detection confidence must be within [0,1]")
)

func (r DetectionRun) Validate() error {
	if r.ID == "" {
		return errRunMissingID
	}
	if r.OwnerID == "" {
		return errRunMissingOwner
	}
	if !r.Status.IsValid() {
		return errRunInvalidStatus
	}

	switch r.Status {
	case RunStatusCompleted:
		if r.OriginalArtifact == nil || r.DetectedArtifact == nil {
			return errRunMissingArtifacts
		}
		if r.FailureReason != "" {
			return errRunUnexpectedReason
		}
	case RunStatusFailed:
		if r.FailureReason == "" {
			return errRunMissingReason
		}
		if r.OriginalArtifact != nil || r.DetectedArtifact != nil {
			return errRunFailedArtifacts
		}
	case RunStatusProcessing:
		if r.FailureReason != "" {
			return errRunUnexpectedReason
		}
	}

	for _, d := range r.Detections {
		if d.Confidence < 0 || d.Confidence > 1 {
			return errDetectionConfidence
		}
	}

	return nil
}

// FindCrop returns the detection whose crop was produced from filename.
func (r DetectionRun) FindCrop(filename string) (Detection, bool) {
	for _, d := range r.Detections {
		if d.CroppedArtifact == nil {
			continue
		}
		if d.SourceFilename == filename {
			return d, true
		}
	}
	return Detection{}, false
}
