package domain

import "time"

// VideoTaskStatus enumerates the pipeline-facing lifecycle states of a video
// generation task.
type VideoTaskStatus string

const (
	VideoTaskProcessing VideoTaskStatus = "processing"
	VideoTaskCompleted  VideoTaskStatus = "completed"
	VideoTaskFailed     VideoTaskStatus = "failed"
)

// Terminal reports whether no further transitions may occur.
func (s VideoTaskStatus) Terminal() bool {
	return s == VideoTaskCompleted || s == VideoTaskFailed
}

// VideoTask tracks one image-to-video job. It is created on submission and
// mutated only by polling; the lifecycle ends at completed or failed and the
// record is never deleted by the pipeline.
type VideoTask struct {
	ID             string          `json:"id"`
	ExternalTaskID string          `json:"external_task_id"`
	OwnerID        string          `json:"owner_id"`
	DiaryID        string          `json:"diary_id"`
	SceneID        string          `json:"scene_id,omitempty"`
	SelectedImages []string        `json:"selected_images"`
	Status         VideoTaskStatus `json:"status"`
	VideoURL       string          `json:"video_url,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
