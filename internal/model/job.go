package model

import "time"

// JobStatus is the lifecycle state of an analysis job in the job store.
type JobStatus string

const (
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobSucceeded JobStatus = "SUCCEEDED"
	JobFailed    JobStatus = "FAILED"
)

// Terminal reports whether a status can no longer change through normal
// execution. A terminal job may only be rewritten by stale-job recovery,
// and then only to FAILED.
func (s JobStatus) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// PipelineVariant selects which analysis pipeline a job runs. Slow variants
// occupy a reserved concurrency lane in the runner.
type PipelineVariant string

const (
	VariantStandard PipelineVariant = "standard"
	VariantDeep     PipelineVariant = "deep"
)

// Slow reports whether the variant is scheduled on the slow lane.
func (v PipelineVariant) Slow() bool {
	return v == VariantDeep
}

// Job is one unit of orchestration work held in the external job store.
// Timestamps are RFC3339 strings as stored; UpdatedUtc may be unparsable
// when written by other tooling, so stale checks must tolerate bad values.
type Job struct {
	JobID      string          `json:"jobId"`
	Status     JobStatus       `json:"status"`
	Progress   int             `json:"progress"`
	Variant    PipelineVariant `json:"pipelineVariant"`
	InputText  string          `json:"inputText,omitempty"`
	CreatedUtc string          `json:"createdUtc"`
	UpdatedUtc string          `json:"updatedUtc"`
}

// CreatedAt parses the job's creation timestamp. Returns zero time when the
// stored value is unparsable.
func (j *Job) CreatedAt() time.Time {
	t, err := time.Parse(time.RFC3339, j.CreatedUtc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// UpdatedAt parses the job's last-update timestamp, with ok reporting
// whether the stored value parsed.
func (j *Job) UpdatedAt() (time.Time, bool) {
	t, err := time.Parse(time.RFC3339, j.UpdatedUtc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
