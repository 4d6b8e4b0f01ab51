package models

import "fmt"

// JobStatus is the lifecycle state of a DownloadJob.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusStarting    JobStatus = "starting"
	StatusDownloading JobStatus = "downloading"
	StatusProcessing  JobStatus = "processing"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
)

var allowedTransitions = map[JobStatus]map[JobStatus]bool{
	"": {
		StatusQueued:   true,
		StatusStarting: true,
	},
	StatusQueued: {
		StatusStarting: true,
		StatusFailed:   true, // discarded on shutdown
	},
	StatusStarting: {
		StatusDownloading: true,
		StatusProcessing:  true,
		StatusCompleted:   true,
		StatusFailed:      true,
	},
	StatusDownloading: {
		StatusDownloading: true,
		StatusProcessing:  true,
		StatusCompleted:   true,
		StatusFailed:      true,
	},
	StatusProcessing: {
		StatusProcessing: true,
		StatusCompleted:  true,
		StatusFailed:     true,
	},
	StatusCompleted: {},
	StatusFailed:    {},
}

func (s JobStatus) String() string {
	return string(s)
}

// IsActive reports whether the job occupies a worker slot.
func (s JobStatus) IsActive() bool {
	return s == StatusStarting || s == StatusDownloading || s == StatusProcessing
}

// IsTerminal reports whether the job reached a final state.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func IsKnownStatus(status JobStatus) bool {
	_, ok := allowedTransitions[status]
	return ok
}

// ValidateTransition returns an error when moving from one status to another is not allowed.
func ValidateTransition(from, to JobStatus) error {
	if !IsKnownStatus(to) || to == "" {
		return fmt.Errorf("unknown target status %q", to)
	}
	next, ok := allowedTransitions[from]
	if !ok {
		return fmt.Errorf("unknown source status %q", from)
	}
	if !next[to] {
		return fmt.Errorf("invalid status transition %q -> %q", from, to)
	}
	return nil
}
