package download

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/rand-hawk/youtube-downloader/internal/model"
	"github.com/rand-hawk/youtube-downloader/internal/queue"
)

// newIdleService returns a service with no free slots so queued tasks stay
// Pending and tests stay deterministic.
func newIdleService() *Service {
	return NewService("/tmp/out", "/tmp/partial", 0)
}

func TestNewService(t *testing.T) {
	service := NewService("/tmp/out", "/tmp/partial", 2)

	if service.downloadDir != "/tmp/out" {
		t.Errorf("Expected downloadDir to be '/tmp/out', got '%s'", service.downloadDir)
	}
	if service.partialDir != "/tmp/partial" {
		t.Errorf("Expected partialDir to be '/tmp/partial', got '%s'", service.partialDir)
	}
	if service.maxParallel != 2 {
		t.Errorf("Expected maxParallel to be 2, got %d", service.maxParallel)
	}
	if len(service.tasks) != 0 {
		t.Errorf("Expected empty tasks map, got %d items", len(service.tasks))
	}
}

func TestAddTask(t *testing.T) {
	service := newIdleService()

	task1, err := service.AddTask("https://youtube.com/watch?v=test1test1a", model.TaskKindVideo, "720")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if task1.URL != "https://youtube.com/watch?v=test1test1a" {
		t.Errorf("Unexpected URL: %s", task1.URL)
	}
	if task1.Status != model.TaskStatusPending {
		t.Errorf("Expected status Pending, got %s", task1.Status)
	}
	if task1.Kind != model.TaskKindVideo {
		t.Errorf("Expected kind video, got %s", task1.Kind)
	}
	if task1.Quality != "720" {
		t.Errorf("Expected quality 720, got %s", task1.Quality)
	}
	if task1.VideoID != "test1test1a" {
		t.Errorf("Expected extracted video ID, got %q", task1.VideoID)
	}
	if task1.ETASec != -1 {
		t.Errorf("Expected ETA -1, got %d", task1.ETASec)
	}

	// Duplicate URL rejected while first task is not finished
	if _, err := service.AddTask("https://youtube.com/watch?v=test1test1a", model.TaskKindVideo, "720"); err == nil {
		t.Error("Expected error for duplicate URL, got nil")
	}

	// Different URL succeeds
	if _, err := service.AddTask("https://youtube.com/watch?v=test2test2b", model.TaskKindAudio, "best"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
}

func TestGetTask(t *testing.T) {
	service := newIdleService()

	task, err := service.AddTask("https://youtube.com/watch?v=abcdefghijk", model.TaskKindVideo, "best")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	retrieved, exists := service.GetTask(task.ID)
	if !exists {
		t.Fatal("Expected task to exist")
	}
	if retrieved.ID != task.ID {
		t.Errorf("Expected task ID '%s', got '%s'", task.ID, retrieved.ID)
	}

	if _, exists := service.GetTask("non-existing-id"); exists {
		t.Error("Expected task to not exist")
	}
}

func TestGetAllTasks_Order(t *testing.T) {
	service := newIdleService()

	urls := []string{
		"https://youtube.com/watch?v=aaaaaaaaaaa",
		"https://youtube.com/watch?v=bbbbbbbbbbb",
		"https://youtube.com/watch?v=ccccccccccc",
	}
	for _, url := range urls {
		if _, err := service.AddTask(url, model.TaskKindVideo, "best"); err != nil {
			t.Fatalf("AddTask(%s) failed: %v", url, err)
		}
	}

	tasks := service.GetAllTasks()
	if len(tasks) != 3 {
		t.Fatalf("Expected 3 tasks, got %d", len(tasks))
	}
	for i, url := range urls {
		if tasks[i].URL != url {
			t.Errorf("Task %d: expected URL %s, got %s", i, url, tasks[i].URL)
		}
	}
}

func TestStopTask_Pending(t *testing.T) {
	service := newIdleService()

	task, err := service.AddTask("https://youtube.com/watch?v=abcdefghijk", model.TaskKindVideo, "best")
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	if err := service.StopTask(task.ID); err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
	if task.Status != model.TaskStatusStopped {
		t.Errorf("Expected Stopped, got %s", task.Status)
	}

	// A stopped task is no longer active, stopping again fails
	if err := service.StopTask(task.ID); err == nil {
		t.Error("Expected error stopping a stopped task")
	}
}

func TestStopTask_NotFound(t *testing.T) {
	service := newIdleService()

	if err := service.StopTask("missing"); err == nil {
		t.Error("Expected error for unknown task")
	}
}

func TestResumeTask(t *testing.T) {
	service := newIdleService()

	task, err := service.AddTask("https://youtube.com/watch?v=abcdefghijk", model.TaskKindVideo, "best")
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	// Pending task cannot be resumed
	if err := service.ResumeTask(task.ID); err == nil {
		t.Error("Expected error resuming a pending task")
	}

	if err := service.StopTask(task.ID); err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}
	task.Speed = "1.0MB/s"
	task.LastError = "cancelled"

	if err := service.ResumeTask(task.ID); err != nil {
		t.Fatalf("ResumeTask failed: %v", err)
	}
	if task.Status != model.TaskStatusPending {
		t.Errorf("Expected Pending after resume, got %s", task.Status)
	}
	if task.Speed != "" || task.LastError != "" || task.ETASec != -1 {
		t.Error("Resume should reset telemetry and error")
	}
}

func TestRestartTask(t *testing.T) {
	service := newIdleService()

	task, err := service.AddTask("https://youtube.com/watch?v=abcdefghijk", model.TaskKindVideo, "best")
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	task.Status = model.TaskStatusCompleted
	task.Progress = 1.0
	task.Percent = 100
	task.OutputPath = "/tmp/out/video.mp4"

	if err := service.RestartTask(task.ID); err != nil {
		t.Fatalf("RestartTask failed: %v", err)
	}
	if task.Status != model.TaskStatusPending {
		t.Errorf("Expected Pending after restart, got %s", task.Status)
	}
	if task.Progress != 0 || task.Percent != 0 || task.OutputPath != "" {
		t.Error("Restart should reset progress and output path")
	}
}

func TestRemoveTask(t *testing.T) {
	service := newIdleService()

	task, err := service.AddTask("https://youtube.com/watch?v=abcdefghijk", model.TaskKindVideo, "best")
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	if err := service.RemoveTask(task.ID); err != nil {
		t.Fatalf("RemoveTask failed: %v", err)
	}
	if _, exists := service.GetTask(task.ID); exists {
		t.Error("Removed task should not exist")
	}
	if len(service.GetAllTasks()) != 0 {
		t.Error("Order list should be empty after remove")
	}

	if err := service.RemoveTask(task.ID); err == nil {
		t.Error("Expected error removing unknown task")
	}
}

func TestClearFinished(t *testing.T) {
	service := newIdleService()

	t1, _ := service.AddTask("https://youtube.com/watch?v=aaaaaaaaaaa", model.TaskKindVideo, "best")
	t2, _ := service.AddTask("https://youtube.com/watch?v=bbbbbbbbbbb", model.TaskKindVideo, "best")
	t3, _ := service.AddTask("https://youtube.com/watch?v=ccccccccccc", model.TaskKindVideo, "best")

	t1.Status = model.TaskStatusCompleted
	t2.Status = model.TaskStatusError

	removed := service.ClearFinished()
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}

	remaining := service.GetAllTasks()
	if len(remaining) != 1 || remaining[0].ID != t3.ID {
		t.Errorf("Expected only the pending task to remain, got %d tasks", len(remaining))
	}
}

func TestRestoreAndIdle(t *testing.T) {
	service := newIdleService()

	if !service.Idle() {
		t.Error("Empty service should be idle")
	}

	service.Restore([]*model.DownloadTask{
		{ID: "task-1", URL: "https://youtube.com/watch?v=aaaaaaaaaaa", Status: model.TaskStatusPending},
		{ID: "task-2", URL: "https://youtube.com/watch?v=bbbbbbbbbbb", Status: model.TaskStatusCompleted},
	})

	if len(service.GetAllTasks()) != 2 {
		t.Fatalf("Expected 2 restored tasks, got %d", len(service.GetAllTasks()))
	}
	if service.Idle() {
		t.Error("Service with a pending task should not be idle")
	}

	// Restoring the same ID again is a no-op
	service.Restore([]*model.DownloadTask{{ID: "task-1", Status: model.TaskStatusPending}})
	if len(service.GetAllTasks()) != 2 {
		t.Error("Duplicate restore should not add tasks")
	}
}

func TestPersistThroughStore(t *testing.T) {
	dir := t.TempDir()
	store := queue.NewStore(filepath.Join(dir, "queue.json"))

	service := newIdleService()
	service.SetStore(store)

	task, err := service.AddTask("https://youtube.com/watch?v=abcdefghijk", model.TaskKindVideo, "720")
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("Expected 1 persisted task, got %d", len(loaded))
	}
	if loaded[0].ID != task.ID || loaded[0].URL != task.URL {
		t.Error("Persisted task should match the queued task")
	}
}

func TestAddPlaylist(t *testing.T) {
	service := newIdleService()

	playlist := model.NewPlaylist("https://www.youtube.com/playlist?list=PLtest")
	playlist.ID = "PLtest"
	playlist.AddVideo(&model.PlaylistVideo{
		ID:     "aaaaaaaaaaa",
		Title:  "First Video",
		URL:    "https://www.youtube.com/watch?v=aaaaaaaaaaa",
		Status: model.VideoStatusPending,
	})
	playlist.AddVideo(&model.PlaylistVideo{
		ID:     "bbbbbbbbbbb",
		Title:  "Second Video",
		URL:    "https://www.youtube.com/watch?v=bbbbbbbbbbb",
		Status: model.VideoStatusPending,
	})

	// Not ready yet
	if _, err := service.AddPlaylist(playlist, model.TaskKindVideo, "720"); err == nil {
		t.Error("Expected error for playlist that is not ready")
	}

	playlist.UpdateStatus(model.PlaylistStatusReady)

	added, err := service.AddPlaylist(playlist, model.TaskKindVideo, "720")
	if err != nil {
		t.Fatalf("AddPlaylist failed: %v", err)
	}
	if added != 2 {
		t.Errorf("Expected 2 tasks added, got %d", added)
	}

	tasks := service.GetAllTasks()
	if tasks[0].Title != "First Video" || tasks[0].VideoID != "aaaaaaaaaaa" {
		t.Errorf("Playlist metadata should carry over, got title=%q id=%q",
			tasks[0].Title, tasks[0].VideoID)
	}

	// Re-adding the same playlist adds nothing
	if _, err := service.AddPlaylist(playlist, model.TaskKindVideo, "720"); err == nil {
		t.Error("Expected error when every playlist video is already queued")
	}
}

func TestOutputTemplate(t *testing.T) {
	service := newIdleService()
	service.SetMP3Bitrate("192")

	withTitle := &model.DownloadTask{
		Kind:    model.TaskKindVideo,
		Quality: "720",
		Title:   "Cool Song",
		VideoID: "dQw4w9WgXcQ",
	}
	got := service.outputTemplate(withTitle)
	want := "Cool Song [720p] [dQw4w9WgXcQ].%(ext)s"
	if got != want {
		t.Errorf("outputTemplate = %q, expected %q", got, want)
	}

	noTitle := &model.DownloadTask{Kind: model.TaskKindVideo, Quality: "best"}
	if got := service.outputTemplate(noTitle); got != FallbackOutputLayout {
		t.Errorf("outputTemplate without title = %q, expected fallback", got)
	}
}

func TestBuildCommand(t *testing.T) {
	service := newIdleService()
	service.SetRateLimit("500K")
	service.SetMP3Bitrate("192")
	service.SetFFmpegPath("/opt/ffmpeg/bin/ffmpeg")

	video := &model.DownloadTask{
		URL:     "https://youtube.com/watch?v=abcdefghijk",
		Kind:    model.TaskKindVideo,
		Quality: "720",
	}
	if dl := service.buildCommand(video); dl == nil {
		t.Fatal("buildCommand returned nil for video task")
	}

	audio := &model.DownloadTask{
		URL:  "https://youtube.com/watch?v=abcdefghijk",
		Kind: model.TaskKindAudio,
	}
	if dl := service.buildCommand(audio); dl == nil {
		t.Fatal("buildCommand returned nil for audio task")
	}
}

func TestUpdateTaskProgress(t *testing.T) {
	service := newIdleService()

	task := &model.DownloadTask{
		ID:     "task-progress",
		Status: model.TaskStatusDownloading,
		ETASec: -1,
	}
	update := ytdlp.ProgressUpdate{
		TotalBytes:      4096,
		DownloadedBytes: 1024,
		Started:         time.Now().Add(-2 * time.Second),
	}

	service.updateTaskProgress(task, &update)

	if task.Percent != 25 {
		t.Errorf("Expected 25%%, got %d", task.Percent)
	}
	if task.FileSize != 4096 {
		t.Errorf("Expected file size 4096, got %d", task.FileSize)
	}
	if task.Speed == "" {
		t.Error("Expected speed to be computed")
	}
}

func TestSnapshot_ReturnsCopies(t *testing.T) {
	service := newIdleService()

	task, err := service.AddTask("https://youtube.com/watch?v=abcdefghijk", model.TaskKindVideo, "best")
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	snapshot := service.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("Expected 1 task in snapshot, got %d", len(snapshot))
	}
	if snapshot[0] == task {
		t.Fatal("Snapshot should not hand out the live task pointer")
	}

	task.Percent = 50
	task.Status = model.TaskStatusDownloading

	if snapshot[0].Percent != 0 || snapshot[0].Status != model.TaskStatusPending {
		t.Error("Mutating the live task should not change the snapshot")
	}
}

func TestBeginDownload_StopWins(t *testing.T) {
	service := newIdleService()

	task, err := service.AddTask("https://youtube.com/watch?v=abcdefghijk", model.TaskKindVideo, "best")
	if err != nil {
		t.Fatalf("AddTask failed: %v", err)
	}

	// A stop request that arrives after the slot claim but before the
	// download starts must win.
	task.Status = model.TaskStatusStopping
	if service.beginDownload(task) {
		t.Error("beginDownload should refuse a task with a pending stop request")
	}
	if task.Status != model.TaskStatusStopped {
		t.Errorf("Expected Stopped, got %s", task.Status)
	}

	task.Status = model.TaskStatusStarting
	if !service.beginDownload(task) {
		t.Error("beginDownload should proceed without a stop request")
	}
	if task.Status != model.TaskStatusDownloading {
		t.Errorf("Expected Downloading, got %s", task.Status)
	}
}

func TestUpdateCallback(t *testing.T) {
	service := newIdleService()

	updateCalled := false
	var updatedTask *model.DownloadTask
	service.SetUpdateCallback(func(task *model.DownloadTask) {
		updateCalled = true
		updatedTask = task
	})

	task := &model.DownloadTask{
		ID:     "test-id",
		URL:    "https://youtube.com/watch?v=abcdefghijk",
		Status: model.TaskStatusDownloading,
	}
	service.notifyUpdate(task)

	if !updateCalled {
		t.Error("Expected update callback to be called")
	}
	if updatedTask != task {
		t.Error("Expected updated task to be the same as input task")
	}
}

func TestGenerateTaskID(t *testing.T) {
	id1 := generateTaskID()
	id2 := generateTaskID()

	if id1 == id2 {
		t.Error("Expected different task IDs")
	}
	if !strings.HasPrefix(id1, TaskIDPrefix) || !strings.HasPrefix(id2, TaskIDPrefix) {
		t.Errorf("Expected IDs with prefix %q, got %s / %s", TaskIDPrefix, id1, id2)
	}
	if len(id1) != len(TaskIDPrefix)+36 {
		t.Errorf("Expected ID length %d, got %d for ID: %s", len(TaskIDPrefix)+36, len(id1), id1)
	}
}
