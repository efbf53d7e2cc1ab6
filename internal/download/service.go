package download

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/go-ytdlp"

	"github.com/rand-hawk/youtube-downloader/internal/errs"
	"github.com/rand-hawk/youtube-downloader/internal/logger"
	"github.com/rand-hawk/youtube-downloader/internal/model"
	"github.com/rand-hawk/youtube-downloader/internal/platform"
	"github.com/rand-hawk/youtube-downloader/internal/queue"
	"github.com/rand-hawk/youtube-downloader/internal/sanitize"
)

// Engine tuning constants
const (
	TaskIDPrefix         = "task-"
	ProgressInterval     = 500 * time.Millisecond
	StopPollInterval     = 100 * time.Millisecond
	RetryBackoff         = 2 * time.Second
	MaxRetries           = 2
	FallbackOutputLayout = "%(title)s [%(id)s].%(ext)s"
)

// Service handles download operations
type Service struct {
	tasks       map[string]*model.DownloadTask
	order       []string // task IDs in enqueue order
	tasksMutex  sync.RWMutex
	maxParallel int
	activeCount int
	downloadDir string
	partialDir  string
	rateLimit   string
	mp3Bitrate  string
	ffmpegPath  string
	store       *queue.Store
	log         *logger.ComponentLogger
	onUpdate    func(*model.DownloadTask) // callback for progress consumers
}

// NewService creates a new download service. partialDir is the staging
// directory yt-dlp keeps .part files in between runs.
func NewService(downloadDir, partialDir string, maxParallel int) *Service {
	return &Service{
		tasks:       make(map[string]*model.DownloadTask),
		maxParallel: maxParallel,
		downloadDir: downloadDir,
		partialDir:  partialDir,
		log:         logger.WithComponent(logger.ComponentDownload),
	}
}

// SetUpdateCallback sets the callback function for task updates
func (s *Service) SetUpdateCallback(callback func(*model.DownloadTask)) {
	s.onUpdate = callback
}

// SetStore sets the queue store the service writes state changes through.
func (s *Service) SetStore(store *queue.Store) {
	s.store = store
}

// SetRateLimit sets the per-download rate limit as a yt-dlp rate string.
func (s *Service) SetRateLimit(limit string) {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()
	s.rateLimit = limit
}

// SetMP3Bitrate sets the bitrate for audio extraction (kbit/s).
func (s *Service) SetMP3Bitrate(bitrate string) {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()
	s.mp3Bitrate = bitrate
}

// SetFFmpegPath points yt-dlp at an explicit ffmpeg binary.
func (s *Service) SetFFmpegPath(path string) {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()
	s.ffmpegPath = path
}

// SetMaxParallelDownloads sets the maximum number of parallel downloads
func (s *Service) SetMaxParallelDownloads(max int) {
	if max < 1 {
		max = 1
	}
	s.tasksMutex.Lock()
	s.maxParallel = max
	s.tasksMutex.Unlock()
	s.StartPending()
}

// SetDownloadDirectory sets the download directory
func (s *Service) SetDownloadDirectory(dir string) {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()
	s.downloadDir = dir
}

// AddTask adds a new download task and starts it when a slot is free.
func (s *Service) AddTask(url string, kind model.TaskKind, quality string) (*model.DownloadTask, error) {
	s.tasksMutex.Lock()

	// Check for duplicate URLs
	for _, task := range s.tasks {
		if task.URL == url && !task.Status.IsFinished() {
			s.tasksMutex.Unlock()
			return nil, fmt.Errorf("task already exists for URL: %s", url)
		}
	}

	task := &model.DownloadTask{
		ID:        generateTaskID(),
		URL:       url,
		Kind:      kind,
		Quality:   quality,
		VideoID:   platform.ExtractVideoID(url),
		Status:    model.TaskStatusPending,
		ETASec:    -1,
		CreatedAt: time.Now(),
	}

	s.tasks[task.ID] = task
	s.order = append(s.order, task.ID)

	start := s.activeCount < s.maxParallel
	s.tasksMutex.Unlock()

	s.log.Info("task queued", map[string]interface{}{"id": task.ID, "url": url})
	s.persist()

	if start {
		go s.startTask(task)
	}
	return task, nil
}

// AddPlaylist enqueues every pending video of a parsed playlist. Videos whose
// URL is already queued are skipped. Returns the number of tasks added.
func (s *Service) AddPlaylist(playlist *model.Playlist, kind model.TaskKind, quality string) (int, error) {
	if !playlist.IsReadyForDownload() {
		return 0, fmt.Errorf("playlist is not ready for download: %s", playlist.Status)
	}

	added := 0
	for _, video := range playlist.GetPendingVideos() {
		task, err := s.AddTask(video.URL, kind, quality)
		if err != nil {
			continue
		}
		s.tasksMutex.Lock()
		task.Title = video.Title
		task.VideoID = video.ID
		s.tasksMutex.Unlock()
		added++
	}

	if added == 0 {
		return 0, fmt.Errorf("no new videos in playlist %s", playlist.ID)
	}
	s.persist()
	return added, nil
}

// GetTask returns a task by ID
func (s *Service) GetTask(id string) (*model.DownloadTask, bool) {
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()
	task, exists := s.tasks[id]
	return task, exists
}

// GetAllTasks returns all tasks in enqueue order.
func (s *Service) GetAllTasks() []*model.DownloadTask {
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()

	tasks := make([]*model.DownloadTask, 0, len(s.order))
	for _, id := range s.order {
		tasks = append(tasks, s.tasks[id])
	}
	return tasks
}

// StopTask requests a graceful stop of a running task. The partial file stays
// in the staging directory so the task can resume later.
func (s *Service) StopTask(id string) error {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()

	task, exists := s.tasks[id]
	if !exists {
		return fmt.Errorf("task not found: %s", id)
	}

	if task.Status == model.TaskStatusPending {
		task.Status = model.TaskStatusStopped
		s.notifyUpdate(task)
		return nil
	}
	if !task.Status.IsActive() {
		return fmt.Errorf("task is not active: %s", task.Status)
	}

	// The task goroutine observes the status and cancels its context.
	task.Status = model.TaskStatusStopping
	s.notifyUpdate(task)
	return nil
}

// StopAll requests a stop of every pending or active task.
func (s *Service) StopAll() {
	for _, task := range s.GetAllTasks() {
		if task.Status == model.TaskStatusPending || task.Status.IsActive() {
			_ = s.StopTask(task.ID)
		}
	}
	s.persist()
}

// ResumeTask re-queues a stopped or failed task. The yt-dlp continue flag
// picks up the .part file from the staging directory.
func (s *Service) ResumeTask(id string) error {
	s.tasksMutex.Lock()
	task, exists := s.tasks[id]
	if !exists {
		s.tasksMutex.Unlock()
		return fmt.Errorf("task not found: %s", id)
	}
	if !task.Status.IsResumable() {
		s.tasksMutex.Unlock()
		return fmt.Errorf("task cannot be resumed from status: %s", task.Status)
	}

	task.Status = model.TaskStatusPending
	task.LastError = ""
	task.Speed = ""
	task.ETASec = -1
	s.tasksMutex.Unlock()

	s.persist()
	s.StartPending()
	return nil
}

// RestartTask resets a finished task and downloads it again from scratch.
func (s *Service) RestartTask(id string) error {
	s.tasksMutex.Lock()
	task, exists := s.tasks[id]
	if !exists {
		s.tasksMutex.Unlock()
		return fmt.Errorf("task not found: %s", id)
	}
	if task.Status.IsActive() {
		s.tasksMutex.Unlock()
		return fmt.Errorf("task is still active: %s", task.Status)
	}

	task.Status = model.TaskStatusPending
	task.Progress = 0
	task.Percent = 0
	task.Speed = ""
	task.ETASec = -1
	task.LastError = ""
	task.OutputPath = ""
	task.StartedAt = time.Time{}
	task.FinishedAt = time.Time{}
	s.tasksMutex.Unlock()

	s.persist()
	s.StartPending()
	return nil
}

// RemoveTask removes a non-active task from the queue.
func (s *Service) RemoveTask(id string) error {
	s.tasksMutex.Lock()
	task, exists := s.tasks[id]
	if !exists {
		s.tasksMutex.Unlock()
		return fmt.Errorf("task not found: %s", id)
	}
	if task.Status.IsActive() {
		s.tasksMutex.Unlock()
		return fmt.Errorf("cannot remove active task: %s", task.Status)
	}

	delete(s.tasks, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.tasksMutex.Unlock()

	s.persist()
	return nil
}

// ClearFinished removes all completed, stopped and errored tasks and returns
// how many were removed.
func (s *Service) ClearFinished() int {
	s.tasksMutex.Lock()
	removed := 0
	kept := s.order[:0]
	for _, id := range s.order {
		if s.tasks[id].Status.IsFinished() {
			delete(s.tasks, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	s.tasksMutex.Unlock()

	if removed > 0 {
		s.persist()
	}
	return removed
}

// Restore installs tasks recovered from the queue store without starting them.
func (s *Service) Restore(tasks []*model.DownloadTask) {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()

	for _, task := range tasks {
		if _, exists := s.tasks[task.ID]; exists {
			continue
		}
		s.tasks[task.ID] = task
		s.order = append(s.order, task.ID)
	}
}

// Snapshot returns value copies of all tasks in enqueue order, safe to
// serialize while download goroutines keep mutating the originals.
func (s *Service) Snapshot() []*model.DownloadTask {
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()

	tasks := make([]*model.DownloadTask, 0, len(s.order))
	for _, id := range s.order {
		clone := *s.tasks[id]
		tasks = append(tasks, &clone)
	}
	return tasks
}

// StartPending fills the free download slots with pending tasks.
func (s *Service) StartPending() {
	for {
		s.tasksMutex.Lock()
		if s.activeCount >= s.maxParallel {
			s.tasksMutex.Unlock()
			return
		}
		var next *model.DownloadTask
		for _, id := range s.order {
			if s.tasks[id].Status == model.TaskStatusPending {
				next = s.tasks[id]
				break
			}
		}
		if next == nil {
			s.tasksMutex.Unlock()
			return
		}
		// Claim the slot before unlocking so concurrent callers don't
		// start the same task twice.
		next.Status = model.TaskStatusStarting
		s.activeCount++
		s.tasksMutex.Unlock()

		go s.runClaimedTask(next)
	}
}

// Idle reports whether no task is pending or active.
func (s *Service) Idle() bool {
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()

	if s.activeCount > 0 {
		return false
	}
	for _, task := range s.tasks {
		if task.Status == model.TaskStatusPending || task.Status.IsActive() {
			return false
		}
	}
	return true
}

// startTask claims a concurrency slot for the task and runs it.
func (s *Service) startTask(task *model.DownloadTask) {
	s.tasksMutex.Lock()
	if task.Status != model.TaskStatusPending || s.activeCount >= s.maxParallel {
		s.tasksMutex.Unlock()
		return
	}
	task.Status = model.TaskStatusStarting
	s.activeCount++
	s.tasksMutex.Unlock()

	s.runClaimedTask(task)
}

// runClaimedTask executes a task whose slot is already claimed and its status
// set to Starting.
func (s *Service) runClaimedTask(task *model.DownloadTask) {
	s.tasksMutex.Lock()
	task.StartedAt = time.Now()
	s.tasksMutex.Unlock()
	s.notifyUpdate(task)

	defer func() {
		s.tasksMutex.Lock()
		s.activeCount--
		s.tasksMutex.Unlock()

		// Pull the next pending task into the freed slot.
		s.StartPending()
	}()

	if !s.beginDownload(task) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Monitor for stop requests
	go func() {
		for {
			s.tasksMutex.RLock()
			status := task.Status
			s.tasksMutex.RUnlock()

			if status == model.TaskStatusStopping {
				cancel()
				return
			}
			if status.IsFinished() {
				return
			}
			time.Sleep(StopPollInterval)
		}
	}()

	dl := s.buildCommand(task)
	dl.ProgressFunc(ProgressInterval, func(update ytdlp.ProgressUpdate) {
		s.updateTaskProgress(task, &update)
	})

	result, err := s.downloadWithRetry(ctx, dl, task)

	s.tasksMutex.Lock()
	if err != nil {
		if ctx.Err() == context.Canceled {
			task.Status = model.TaskStatusStopped
			s.log.Info("task stopped", map[string]interface{}{"id": task.ID})
		} else {
			task.Status = model.TaskStatusError
			task.LastError = errs.Classify(err).Error()
			s.log.Error("task failed", map[string]interface{}{"id": task.ID, "error": task.LastError})
		}
	} else {
		task.Status = model.TaskStatusCompleted
		task.Progress = 1.0
		task.Percent = 100

		if result != nil {
			if info, infoErr := result.GetExtractedInfo(); infoErr == nil && len(info) > 0 {
				if info[0].Filename != nil {
					task.OutputPath = *info[0].Filename
				}
			}
		}
		s.log.Info("task completed", map[string]interface{}{"id": task.ID, "output": task.OutputPath})
	}
	task.FinishedAt = time.Now()
	s.tasksMutex.Unlock()

	s.notifyUpdate(task)
	s.persist()
}

// beginDownload moves a claimed task into Downloading. A stop request that
// landed between the slot claim and this point wins: the task goes straight
// to Stopped and the download never starts.
func (s *Service) beginDownload(task *model.DownloadTask) bool {
	s.tasksMutex.Lock()
	if task.Status == model.TaskStatusStopping {
		task.Status = model.TaskStatusStopped
		task.FinishedAt = time.Now()
		s.tasksMutex.Unlock()

		s.notifyUpdate(task)
		s.persist()
		return false
	}
	task.Status = model.TaskStatusDownloading
	s.tasksMutex.Unlock()

	s.notifyUpdate(task)
	s.persist()
	return true
}

// buildCommand assembles the yt-dlp invocation for a task.
func (s *Service) buildCommand(task *model.DownloadTask) *ytdlp.Command {
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()

	dl := ytdlp.New().
		Continue().
		RestrictFilenames().
		NoPlaylist().
		Format(FormatSelector(task.Kind, task.Quality)).
		Output(filepath.Join(s.downloadDir, s.outputTemplate(task))).
		Paths("temp:" + s.partialDir)

	if task.Kind == model.TaskKindAudio {
		bitrate := s.mp3Bitrate
		if bitrate == "" {
			bitrate = "192"
		}
		dl = dl.ExtractAudio().AudioFormat("mp3").AudioQuality(bitrate + "K")
	} else {
		dl = dl.RecodeVideo("mp4")
	}

	if s.rateLimit != "" {
		dl = dl.LimitRate(s.rateLimit)
	}
	if s.ffmpegPath != "" {
		dl = dl.FFmpegLocation(s.ffmpegPath)
	}
	return dl
}

// outputTemplate builds the output filename template. When the title is known
// up front (playlist items) the name is sanitized locally; otherwise yt-dlp
// fills its own restricted template.
func (s *Service) outputTemplate(task *model.DownloadTask) string {
	tag := QualityTag(task.Kind, task.Quality, s.mp3Bitrate)
	if task.Title != "" && task.VideoID != "" {
		return sanitize.BaseName(task.Title, tag, task.VideoID) + ".%(ext)s"
	}
	return FallbackOutputLayout
}

// downloadWithRetry attempts download with retry and backoff on transient
// failures.
func (s *Service) downloadWithRetry(ctx context.Context, dl *ytdlp.Command, task *model.DownloadTask) (*ytdlp.Result, error) {
	var lastErr error
	var result *ytdlp.Result

	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(RetryBackoff):
			case <-ctx.Done():
				return result, ctx.Err()
			}
			s.log.Warn("retrying download", map[string]interface{}{
				"id":      task.ID,
				"attempt": attempt + 1,
			})
		}

		res, err := dl.Run(ctx, task.URL)
		if err == nil {
			return res, nil
		}

		lastErr = err
		result = res // keep last result even on error

		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if !errs.IsRetryable(err) {
			break
		}
	}

	return result, lastErr
}

// updateTaskProgress updates task progress from yt-dlp progress info.
func (s *Service) updateTaskProgress(task *model.DownloadTask, update *ytdlp.ProgressUpdate) {
	s.tasksMutex.Lock()

	if update.TotalBytes > 0 {
		percent := float64(update.DownloadedBytes) / float64(update.TotalBytes) * 100
		task.Percent = int(percent)
		task.Progress = percent / 100.0
		task.FileSize = int64(update.TotalBytes)
	}

	if !update.Started.IsZero() {
		elapsed := time.Since(update.Started)
		if elapsed.Seconds() > 0 {
			bytesPerSecond := float64(update.DownloadedBytes) / elapsed.Seconds()
			task.Speed = fmt.Sprintf("%.1fMB/s", bytesPerSecond/1024/1024)
		}
	}

	if eta := update.ETA(); eta > 0 {
		task.ETASec = int(eta.Seconds())
	}

	if update.Info != nil && update.Info.Title != nil && *update.Info.Title != "" && task.Title == "" {
		task.Title = *update.Info.Title
	}
	s.tasksMutex.Unlock()

	s.notifyUpdate(task)
}

// persist writes the current queue snapshot through the store, when set.
func (s *Service) persist() {
	if s.store == nil {
		return
	}
	if err := s.store.Save(s.Snapshot()); err != nil {
		s.log.Warn("failed to persist queue", map[string]interface{}{"error": err.Error()})
	}
}

// notifyUpdate calls the update callback if set
func (s *Service) notifyUpdate(task *model.DownloadTask) {
	if s.onUpdate != nil {
		s.onUpdate(task)
	}
}

// generateTaskID generates a unique task ID using UUID v7 so IDs sort by
// creation time.
func generateTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to timestamp if UUID generation fails
		return fmt.Sprintf(TaskIDPrefix+"%d", time.Now().UnixNano())
	}
	return TaskIDPrefix + id.String()
}
