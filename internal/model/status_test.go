package model

import "testing"

func TestTaskStatus_Predicates(t *testing.T) {
	tests := []struct {
		status    TaskStatus
		active    bool
		finished  bool
		resumable bool
	}{
		{TaskStatusPending, false, false, false},
		{TaskStatusStarting, true, false, false},
		{TaskStatusDownloading, true, false, false},
		{TaskStatusStopping, true, false, false},
		{TaskStatusStopped, false, true, true},
		{TaskStatusCompleted, false, true, false},
		{TaskStatusError, false, true, true},
	}

	for _, test := range tests {
		if got := test.status.IsActive(); got != test.active {
			t.Errorf("TaskStatus(%s).IsActive() = %v, expected %v", test.status, got, test.active)
		}
		if got := test.status.IsFinished(); got != test.finished {
			t.Errorf("TaskStatus(%s).IsFinished() = %v, expected %v", test.status, got, test.finished)
		}
		if got := test.status.IsResumable(); got != test.resumable {
			t.Errorf("TaskStatus(%s).IsResumable() = %v, expected %v", test.status, got, test.resumable)
		}
	}
}

func TestTaskStatus_NoOverlap(t *testing.T) {
	// A status is never active and finished at the same time.
	all := []TaskStatus{
		TaskStatusPending, TaskStatusStarting, TaskStatusDownloading,
		TaskStatusStopping, TaskStatusStopped, TaskStatusCompleted, TaskStatusError,
	}
	for _, status := range all {
		if status.IsActive() && status.IsFinished() {
			t.Errorf("TaskStatus(%s) is both active and finished", status)
		}
	}
}

func TestTaskStatus_String(t *testing.T) {
	if got := TaskStatusDownloading.String(); got != "Downloading" {
		t.Errorf("TaskStatus.String() = %s, expected Downloading", got)
	}
}
