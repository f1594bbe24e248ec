package worker

// RawDetection is one finding as reported by the worker, before its crop is
// uploaded.
type RawDetection struct {
	Label        string    `json:"class"`
	Confidence   float64   `json:"confidence"`
	BoundingBox  []float64 `json:"bbox"`
	CroppedImage string    `json:"cropped_image"`
}

// RawResult is the decoded result block. It only lives between parsing and
// artifact upload.
type RawResult struct {
	ResultImagePath string         `json:"result_image_path"`
	Detections      []RawDetection `json:"detections"`
}

// Job binds one worker invocation to one run.
type Job struct {
	RunID     string
	ImagePath string
	WorkDir   string
}
