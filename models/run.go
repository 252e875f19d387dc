package models

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusFailed    RunStatus = "failed"
)

// AcquisitionRun records one resolve → paginate → image pass over a region.
type AcquisitionRun struct {
	ID             int64      `json:"id" db:"id"`
	Keyword        string     `json:"keyword" db:"keyword"`
	RegionID       string     `json:"region_id" db:"region_id"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at" db:"finished_at"`
	Status         RunStatus  `json:"status" db:"status"`
	TotalEstimate  int        `json:"total_estimate" db:"total_estimate"`
	ListingsFound  int        `json:"listings_found" db:"listings_found"`
	ImagesResolved int        `json:"images_resolved" db:"images_resolved"`
	ErrorsCount    int        `json:"errors_count" db:"errors_count"`
	ErrorMessage   string     `json:"error_message" db:"error_message"`

	// Listings holds what this run collected, in server order. Not persisted.
	Listings []Listing `json:"-" db:"-"`
}

// LogLevel grades a run log line.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// RunLog is one persisted log line. RunID is nil for worker logs outside an acquisition.
type RunLog struct {
	ID        int64     `json:"id" db:"id"`
	RunID     *int64    `json:"run_id" db:"run_id"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	Level     LogLevel  `json:"level" db:"level"`
	Source    string    `json:"source" db:"source"`
	Message   string    `json:"message" db:"message"`
}
