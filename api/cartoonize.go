package api

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"

	"github.com/algoverse/cartoonbooth/booth"
)

// maxPhotoBytes bounds an uploaded capture.
const maxPhotoBytes = 20 << 20

type cartoonizeResponse struct {
	Status   string `json:"status"`
	RunID    string `json:"run_id,omitempty"`
	FailedIn string `json:"failed_in,omitempty"`
	ImagePNG string `json:"image_png,omitempty"`
	URL      string `json:"url,omitempty"`
	QRPNG    string `json:"qr_png,omitempty"`
	Error    string `json:"error,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func (s *Server) handleCartoonize(w http.ResponseWriter, r *http.Request) {
	if !s.busy.TryLock() {
		writeError(w, http.StatusConflict, "busy: another photo is being cartoonized")
		return
	}
	defer s.busy.Unlock()

	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoBytes)
	if err := r.ParseMultipartForm(maxPhotoBytes); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "photo is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read photo")
		return
	}

	// A started run cannot be aborted by the browser going away.
	ctx := context.WithoutCancel(r.Context())
	res, err := s.Runner.RunBytes(ctx, data)

	resp := cartoonizeResponse{Status: string(booth.StateFailed)}
	if res != nil {
		resp.Status = string(res.State)
		resp.RunID = res.RunID
		resp.URL = res.URL
		if res.FailedIn != "" {
			resp.FailedIn = string(res.FailedIn)
		}
		if !res.Image.Empty() {
			png, encErr := res.Image.PNG()
			if encErr == nil {
				resp.ImagePNG = base64.StdEncoding.EncodeToString(png)
			}
		}
		if len(res.QR) > 0 {
			resp.QRPNG = base64.StdEncoding.EncodeToString(res.QR)
		}
	}
	if err != nil {
		resp.Error = booth.FailureMessage(err)
		if res != nil && res.Message != "" {
			resp.Error = res.Message
		}
		resp.Detail = err.Error()
	}

	writeJSON(w, statusFor(err), resp)
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, booth.ErrCapture):
		return http.StatusBadRequest
	case errors.Is(err, booth.ErrTransform), errors.Is(err, booth.ErrUpload):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
