package app

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/avvaruyasaswini/Echo/internal/echo/version"
)

// healthResponse is returned by GET /health.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// statusResponse is returned by GET /status.
type statusResponse struct {
	Status     string    `json:"status"`
	Version    string    `json:"version"`
	Commit     string    `json:"commit"`
	BuildTime  string    `json:"build_time"`
	StartedAt  time.Time `json:"started_at"`
	UptimeSecs float64   `json:"uptime_seconds"`
	UserCount  int       `json:"user_count"`
}

// handleHealth responds with a simple ok JSON payload.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:  "ok",
		Version: version.Version,
		Commit:  version.GitCommit,
	})
}

// handleStatus responds with runtime statistics.
func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	userCount := 0
	if n, err := a.store.UserCount(r.Context()); err == nil {
		userCount = n
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:     "ok",
		Version:    version.Version,
		Commit:     version.GitCommit,
		BuildTime:  version.BuildTime,
		StartedAt:  a.startedAt,
		UptimeSecs: time.Since(a.startedAt).Seconds(),
		UserCount:  userCount,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
