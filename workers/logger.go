package workers

import (
	"log"

	"landscout/models"
)

// LogFunc records a worker log line in the run_logs table
type LogFunc func(level models.LogLevel, source, message string)

// NoOpLogger does nothing (default)
var NoOpLogger LogFunc = func(level models.LogLevel, source, message string) {}

// RunLogger is the subset of the SQLite store that records log lines.
type RunLogger interface {
	Log(runID *int64, level models.LogLevel, source, message string) error
}

// StoreLogger writes worker log lines to the store without a run id. Failures to record
// are reported on the standard logger only.
func StoreLogger(store RunLogger) LogFunc {
	return func(level models.LogLevel, source, message string) {
		if err := store.Log(nil, level, source, message); err != nil {
			log.Printf("Warning: failed to record %s log: %v", source, err)
		}
	}
}
