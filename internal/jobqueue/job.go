// Package jobqueue is the in-memory bounded job manager the HTTP API
// drives: a UUID-keyed job map, a FIFO queue, and a worker pump
// bounded by configured concurrency.
package jobqueue

import "time"

// Status is a Job's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Active reports whether s is queued or running.
func (s Status) Active() bool {
	return s == StatusQueued || s == StatusRunning
}

// Terminal reports whether s is succeeded or failed.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Overrides carries per-job config overrides layered over the base
// RunConfig before the pipeline engine runs. Zero values mean "keep
// the base config's value" (empty string / nil slice / nil pointer).
type Overrides struct {
	Engine             string
	WitAiAPIKeys       []string
	Language           string
	ModelPath          string
	OutputFormats      []string
	EnhancementMode    string
	SourceClass        string
	DereverbMode       string
	AttenLimDb         *float64
	SNRSkipThresholdDb *float64
}

// Job is one queued or executed unit of work.
type Job struct {
	ID         string
	Kind       string // "url" | "file" | "batch"
	Input      string
	Force      bool
	Status     Status
	VideoID    string
	CreatedAt  time.Time
	StartedAt  *time.Time
	FinishedAt *time.Time
	Error      string
	Overrides  Overrides
}
