package model

import "time"

// RunStatus is the lifecycle state of a locally persisted verification run.
type RunStatus string

const (
	RunStatusQueued   RunStatus = "queued"
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// VerificationRun is one persisted analysis of a claim or article.
type VerificationRun struct {
	ID        string          `json:"id"`
	InputText string          `json:"input_text"`
	Variant   PipelineVariant `json:"variant"`
	Status    RunStatus       `json:"status"`
	Result    *AnalysisResult `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
