package api

import (
	"net/http"
	"time"
)

type statusResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Model   string `json:"model"`
	Device  string `json:"device"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := "ready"
	if !s.busy.TryLock() {
		status = "busy"
	} else {
		s.busy.Unlock()
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:  status,
		Version: s.Version,
		Model:   s.Model,
		Device:  s.Device,
		Uptime:  time.Since(s.StartTime).Truncate(time.Second).String(),
	})
}
