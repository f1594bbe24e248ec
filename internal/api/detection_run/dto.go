package detection_run

type CreateRunRequest struct {
	OwnerID string `json:"-" validate:"required"`
}

type GetRunRequest struct {
	OwnerID string `validate:"required"`
	RunID   string `validate:"required,max=64"`
}

type GetCroppedImageRequest struct {
	OwnerID  string `validate:"required"`
	RunID    string `validate:"required,max=64"`
	Filename string `validate:"required,max=255"`
}

type CroppedImageResponse struct {
	Class      string     `json:"class"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
	ImageURL   string     `json:"imageUrl"`
	Filename   string     `json:"filename,omitempty"`
}

type UploadResponse struct {
	RunID            string                 `json:"runId"`
	OriginalImageURL string                 `json:"originalImageUrl"`
	DetectedImageURL string                 `json:"detectedImageUrl"`
	CroppedImages    []CroppedImageResponse `json:"croppedImages"`
}

type RunResponse struct {
	RunID            string                 `json:"runId"`
	Status           string                 `json:"status"`
	CreatedAt        string                 `json:"createdAt"`
	UpdatedAt        string                 `json:"updatedAt"`
	OriginalImageURL string                 `json:"originalImageUrl,omitempty"`
	DetectedImageURL string                 `json:"detectedImageUrl,omitempty"`
	CroppedImages    []CroppedImageResponse `json:"croppedImages"`
	Error            string                 `json:"error,omitempty"`
}

type RunListResponse struct {
	Runs []RunResponse `json:"runs"`
}

type CroppedArtifactResponse struct {
	Key string `json:"key"`
	URL string `json:"url"`
}
