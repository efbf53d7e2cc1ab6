package model

// TaskStatus represents the status of a download or conversion task
type TaskStatus string

const (
	// TaskStatusPending means the task is queued and waiting for a slot
	TaskStatusPending TaskStatus = "Pending"

	// TaskStatusStarting means the task has claimed a slot and is starting
	TaskStatusStarting TaskStatus = "Starting"

	// TaskStatusDownloading means the transfer or conversion is in progress
	TaskStatusDownloading TaskStatus = "Downloading"

	// TaskStatusStopping means a stop was requested and is being honored
	TaskStatusStopping TaskStatus = "Stopping"

	// TaskStatusStopped means the task was stopped by user
	TaskStatusStopped TaskStatus = "Stopped"

	// TaskStatusCompleted means the task finished successfully
	TaskStatusCompleted TaskStatus = "Completed"

	// TaskStatusError means the task failed with an error
	TaskStatusError TaskStatus = "Error"
)

// String returns the string representation of TaskStatus
func (ts TaskStatus) String() string {
	return string(ts)
}

// IsActive returns true if the task occupies a concurrency slot
func (ts TaskStatus) IsActive() bool {
	return ts == TaskStatusStarting || ts == TaskStatusDownloading || ts == TaskStatusStopping
}

// IsFinished returns true if the task is in a terminal state
// (completed, stopped, or error)
func (ts TaskStatus) IsFinished() bool {
	return ts == TaskStatusCompleted || ts == TaskStatusStopped || ts == TaskStatusError
}

// IsResumable returns true if the task can be re-queued to continue over its
// partial file (stopped or failed, but not completed)
func (ts TaskStatus) IsResumable() bool {
	return ts == TaskStatusStopped || ts == TaskStatusError
}
