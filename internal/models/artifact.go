package models

import "time"

// Artifact is the stored long-form post produced by a completed job
type Artifact struct {
	ID        string        `json:"id" badgerhold:"key"`
	JobID     string        `json:"job_id"`
	Markdown  string        `json:"markdown"`
	HTML      string        `json:"html"`
	Metadata  *PostMetadata `json:"metadata,omitempty"`
	ImageID   string        `json:"image_id,omitempty"`
	CreatedBy string        `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
}

// UsageRecord captures the cost and provenance of one pipeline attempt.
// Written after the job reaches a terminal state; failures to write are
// logged and never affect the job.
type UsageRecord struct {
	ID         string        `json:"id" badgerhold:"key"`
	JobID      string        `json:"job_id"`
	Owner      string        `json:"owner"`
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	Cost       float64       `json:"cost"`
	Duration   time.Duration `json:"duration"`
	Succeeded  bool          `json:"succeeded"`
	FinalStage string        `json:"final_stage"`
	CreatedAt  time.Time     `json:"created_at"`
}
