package booth

import (
	"errors"
	"fmt"

	"github.com/algoverse/cartoonbooth/overlay"
)

var (
	// ErrCapture is returned when the captured photo cannot be decoded.
	ErrCapture = errors.New("capture error")
	// ErrTransform wraps any failure of the generative model.
	ErrTransform = errors.New("transform error")
	// ErrUpload matches every *UploadError.
	ErrUpload = errors.New("publish error")
	// ErrEncode is returned when the QR code cannot be generated.
	ErrEncode = errors.New("encode error")
)

// UploadError describes a failed publish attempt. StatusCode is zero when
// no response was received.
type UploadError struct {
	StatusCode int
	Status     string
	Reason     string
}

func (e *UploadError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("publish error: %s", e.Reason)
	}
	return fmt.Sprintf("publish error: %s: %s", e.Status, e.Reason)
}

// Is makes errors.Is(err, ErrUpload) true for every UploadError.
func (e *UploadError) Is(target error) bool {
	return target == ErrUpload
}

// FailureMessage converts a pipeline error into the text shown to the
// visitor.
func FailureMessage(err error) string {
	var uploadErr *UploadError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCapture):
		return "Could not read the photo. Please take it again."
	case errors.Is(err, ErrTransform):
		return "Error during cartoonization. Please try again."
	case errors.As(err, &uploadErr):
		return "Failed to upload image. Try again."
	case errors.Is(err, overlay.ErrRender):
		return "Branding fonts are missing. Please call staff."
	case errors.Is(err, ErrEncode):
		return "Could not create the QR code. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
