package domain

import "time"

// Image is one candidate rendering of a scene prompt.
type Image struct {
	ID               string    `json:"id"`
	URL              string    `json:"url"`
	ThumbnailURL     string    `json:"thumbnail_url"`
	Width            int       `json:"width"`
	Height           int       `json:"height"`
	QualityScore     int       `json:"quality_score"`
	StyleConsistency int       `json:"style_consistency"`
	Seed             int64     `json:"seed"`
	IsFallback       bool      `json:"is_fallback,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// SceneImageSet holds the candidates for one scene, sorted by descending
// quality score. A set always contains at least one image, even when the
// upstream call failed on every attempt.
type SceneImageSet struct {
	SceneID int     `json:"scene_id"`
	Images  []Image `json:"images"`
	Success bool    `json:"success"`
}
