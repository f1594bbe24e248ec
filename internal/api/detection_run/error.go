package detection_run

import (
	"AppealRecognition/pkg/response"
	"net/http"
)

var (
	ErrNoImageUploaded      = response.NewError(http.StatusBadRequest, "no image file uploaded")
	ErrInvalidImageFile     = response.NewError(http.StatusBadRequest, "invalid image file")
	ErrInvalidOwner         = response.NewError(http.StatusBadRequest, "invalid owner")
	ErrRunNotFound          = response.NewError(http.StatusNotFound, "detection run not found")
	ErrCroppedImageNotFound = response.NewError(http.StatusNotFound, "cropped image not found")
	ErrRunNotProcessing     = response.NewError(http.StatusConflict, "detection run already finalized")

	ErrStoreUpload             = response.NewError(http.StatusInternalServerError, "failed to store uploaded image")
	ErrCreateRun               = response.NewError(http.StatusInternalServerError, "failed to create detection run")
	ErrWorkerMissingDependency = response.NewError(http.StatusInternalServerError, "detection worker is not available")
	ErrWorkerTimeout           = response.NewError(http.StatusInternalServerError, "detection worker timed out")
	ErrWorkerFailed            = response.NewError(http.StatusInternalServerError, "detection worker failed")
	ErrMalformedWorkerOutput   = response.NewError(http.StatusInternalServerError, "detection worker returned malformed output")
	ErrArtifactUpload          = response.NewError(http.StatusInternalServerError, "failed to upload detection artifacts")
	ErrFinalizeRun             = response.NewError(http.StatusInternalServerError, "failed to finalize detection run")
)
