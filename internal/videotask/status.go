package videotask

import "storyreel/internal/domain"

// Provider status values returned by the poll endpoint.
const (
	providerStatusDone       = "done"
	providerStatusProcessing = "processing"
	providerStatusInQueue    = "in_queue"
	providerStatusFailed     = "failed"
)

// ApplyProviderStatus is the pure state transition of the task lifecycle.
// Terminal states are sticky. A "done" report without a video URL counts as
// failed; unknown provider statuses are treated as still in flight.
func ApplyProviderStatus(current domain.VideoTaskStatus, providerStatus, videoURL string) domain.VideoTaskStatus {
	if current.Terminal() {
		return current
	}
	switch providerStatus {
	case providerStatusDone:
		if videoURL == "" {
			return domain.VideoTaskFailed
		}
		return domain.VideoTaskCompleted
	case providerStatusFailed:
		return domain.VideoTaskFailed
	case providerStatusProcessing, providerStatusInQueue:
		return domain.VideoTaskProcessing
	default:
		return domain.VideoTaskProcessing
	}
}
