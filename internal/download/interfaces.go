package download

import (
	"github.com/rand-hawk/youtube-downloader/internal/model"
)

// Downloader defines the interface for the download service.
type Downloader interface {
	SetUpdateCallback(func(*model.DownloadTask))
	AddTask(url string, kind model.TaskKind, quality string) (*model.DownloadTask, error)
	AddPlaylist(playlist *model.Playlist, kind model.TaskKind, quality string) (int, error)
	GetTask(id string) (*model.DownloadTask, bool)
	GetAllTasks() []*model.DownloadTask

	// Snapshot returns value copies of all tasks, safe to serialize while
	// downloads are running.
	Snapshot() []*model.DownloadTask
	StopTask(id string) error
	StopAll()
	ResumeTask(id string) error
	RestartTask(id string) error
	RemoveTask(id string) error
	ClearFinished() int

	// Restore installs tasks recovered from the queue store without
	// starting them; StartPending fills the free download slots.
	Restore(tasks []*model.DownloadTask)
	StartPending()

	// Idle reports whether no task is active or pending.
	Idle() bool

	// SetMaxParallelDownloads sets the maximum number of parallel downloads
	SetMaxParallelDownloads(max int)

	// SetDownloadDirectory sets the download directory
	SetDownloadDirectory(dir string)
}
