package models

import "time"

// GeneratedAsset is a stored binary asset produced during pipeline execution,
// currently always the hero image. The job result and the artifact reference
// it by id.
type GeneratedAsset struct {
	ID        string    `json:"id" badgerhold:"key"`
	JobID     string    `json:"job_id"`
	MimeType  string    `json:"mime_type"`
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}
