package api

import (
	"github.com/mattjoyce/watchit/internal/app"
	"github.com/mattjoyce/watchit/internal/history"
	"github.com/mattjoyce/watchit/internal/runner"
)

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Watches       int    `json:"watches"`
	Invalid       int    `json:"invalid"`
	Running       int    `json:"running"`
}

// WatchesResponse is returned by GET /watches.
type WatchesResponse struct {
	Watches []app.WatchStatus `json:"watches"`
}

// RunResponse is returned by POST /watches/{id}/run.
type RunResponse struct {
	WatchID string `json:"watch_id"`
	RunID   string `json:"run_id"`
}

// StopResponse is returned by POST /watches/{id}/stop.
type StopResponse struct {
	WatchID string `json:"watch_id"`
	Stopped bool   `json:"stopped"`
}

// RunsResponse is returned by GET /runs.
type RunsResponse struct {
	Runs []history.Run `json:"runs"`
}

// FailuresResponse is returned by GET /runs/{id}/failures.
type FailuresResponse struct {
	RunID    string           `json:"run_id"`
	Failures []runner.Failure `json:"failures"`
}
