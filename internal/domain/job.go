package domain

import "time"

// JobKind tags the operation a job tracks.
type JobKind string

const (
	JobKindStoryExpansion JobKind = "story_expansion"
	JobKindChapterScript  JobKind = "chapter_script_generation"
	JobKindChapterImages  JobKind = "chapter_image_generation"
	JobKindSceneImages    JobKind = "scene_image_generation"
	JobKindCharacterAsset JobKind = "character_asset_generation"
	JobKindLocationAsset  JobKind = "location_asset_generation"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether a job in this status will never transition again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job tracks one asynchronous orchestration run. StartedAt is set exactly
// when the job leaves pending; CompletedAt is set exactly when it reaches a
// terminal status.
type Job struct {
	ID          string         `json:"id"`
	Kind        JobKind        `json:"kind"`
	Status      JobStatus      `json:"status"`
	Progress    int            `json:"progress"`
	Total       int            `json:"total"`
	Result      any            `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
