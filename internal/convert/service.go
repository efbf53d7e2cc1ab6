package convert

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rand-hawk/youtube-downloader/internal/errs"
	"github.com/rand-hawk/youtube-downloader/internal/logger"
	"github.com/rand-hawk/youtube-downloader/internal/model"
)

// FFmpeg constants
const (
	// Video codec settings
	VideoCodec  = "libx264"
	VideoPreset = "medium"
	VideoCRF    = "23"

	// Audio codec settings
	AudioCodec        = "aac"
	AudioBitrate      = "128k"
	DefaultMP3Bitrate = "192"

	// Container flags
	FastStartFlag = "+faststart"

	// Output suffixes
	RecodedSuffix    = "-recoded"
	DownscaledFormat = "_%dp"

	// Executable and I/O constants
	FFmpegCommand       = "ffmpeg"
	FFprobeCommand      = "ffprobe"
	FFprobeLogLevel     = "error"
	FFprobeShowEntries  = "format=duration"
	FFprobeOutputFormat = "csv=p=0"
	ProgressPipeTarget  = "pipe:2"
	ProgressTimePrefix  = "out_time_us="
	TaskIDPrefix        = "convert-"
	OutputExtensionMP4  = ".mp4"
	OutputExtensionMP3  = ".mp3"
)

// mode selects the argument set for a conversion.
type mode int

const (
	modeRecode mode = iota
	modeExtractAudio
	modeDownscale
)

// job carries one conversion through the pipeline.
type job struct {
	task    *model.ConversionTask
	mode    mode
	bitrate string // mp3 bitrate in kbit/s for modeExtractAudio
	height  int    // target height for modeDownscale
}

// Service handles FFmpeg post-processing operations.
type Service struct {
	tasks      map[string]*job
	tasksMutex sync.RWMutex
	ffmpegPath string // explicit ffmpeg binary, empty resolves from PATH
	log        *logger.ComponentLogger
	onUpdate   func(*model.ConversionTask) // callback for progress consumers
}

// NewService creates a new conversion service.
func NewService() *Service {
	return &Service{
		tasks: make(map[string]*job),
		log:   logger.WithComponent(logger.ComponentConvert),
	}
}

// SetFFmpegPath points the service at an explicit ffmpeg binary. ffprobe is
// expected beside it.
func (s *Service) SetFFmpegPath(path string) {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()
	s.ffmpegPath = path
}

// SetUpdateCallback sets the callback function for task updates
func (s *Service) SetUpdateCallback(callback func(*model.ConversionTask)) {
	s.onUpdate = callback
}

// RecodeMP4 starts recoding a video file to an mp4 container.
func (s *Service) RecodeMP4(inputPath string) (*model.ConversionTask, error) {
	base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
	return s.start(&job{
		task: newTask(inputPath, base+RecodedSuffix+OutputExtensionMP4),
		mode: modeRecode,
	})
}

// ExtractAudio starts extracting the audio track to mp3 at the given bitrate
// (kbit/s, e.g. "192").
func (s *Service) ExtractAudio(inputPath, bitrate string) (*model.ConversionTask, error) {
	if bitrate == "" {
		bitrate = DefaultMP3Bitrate
	}
	base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
	return s.start(&job{
		task:    newTask(inputPath, base+OutputExtensionMP3),
		mode:    modeExtractAudio,
		bitrate: bitrate,
	})
}

// Downscale starts converting a video to the target height, keeping the
// audio track untouched.
func (s *Service) Downscale(inputPath string, height int) (*model.ConversionTask, error) {
	if height <= 0 {
		return nil, fmt.Errorf("invalid target height: %d", height)
	}
	base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
	out := base + fmt.Sprintf(DownscaledFormat, height) + OutputExtensionMP4
	return s.start(&job{
		task:   newTask(inputPath, out),
		mode:   modeDownscale,
		height: height,
	})
}

// start validates and registers a job, then runs it in the background.
func (s *Service) start(j *job) (*model.ConversionTask, error) {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()

	// Reject a second conversion of the same file while one is active
	for _, other := range s.tasks {
		if other.task.InputPath == j.task.InputPath && other.task.Status.IsActive() {
			return nil, fmt.Errorf("conversion already in progress for file: %s", j.task.InputPath)
		}
	}

	if _, err := os.Stat(j.task.InputPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("input file does not exist: %s", j.task.InputPath)
	}

	s.tasks[j.task.ID] = j
	go s.run(j)

	return j.task, nil
}

// StopConversion stops a running conversion task.
func (s *Service) StopConversion(taskID string) error {
	s.tasksMutex.Lock()
	defer s.tasksMutex.Unlock()

	j, exists := s.tasks[taskID]
	if !exists {
		return fmt.Errorf("conversion task not found: %s", taskID)
	}
	if !j.task.Status.IsActive() && j.task.Status != model.TaskStatusPending {
		return fmt.Errorf("conversion task is not active: %s", j.task.Status)
	}

	// The run goroutine observes the status and cancels the process.
	j.task.Status = model.TaskStatusStopping
	s.notifyUpdate(j.task)
	return nil
}

// GetTask returns a conversion task by ID
func (s *Service) GetTask(taskID string) (*model.ConversionTask, bool) {
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()
	j, exists := s.tasks[taskID]
	if !exists {
		return nil, false
	}
	return j.task, true
}

// run performs the actual conversion.
func (s *Service) run(j *job) {
	task := j.task

	s.tasksMutex.Lock()
	task.Status = model.TaskStatusStarting
	s.tasksMutex.Unlock()
	s.notifyUpdate(task)

	duration, err := s.probeDuration(task.InputPath)
	if err != nil {
		s.log.Error("duration probe failed", map[string]interface{}{
			"input": task.InputPath,
			"error": err.Error(),
		})
		s.setTaskError(task, err)
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
			time.Sleep(100 * time.Millisecond)
		}
	}()

	s.tasksMutex.Lock()
	task.Status = model.TaskStatusDownloading
	s.tasksMutex.Unlock()
	s.notifyUpdate(task)

	args := s.buildFFmpegArgs(j)
	cmd := exec.CommandContext(ctx, s.ffmpegBinary(), args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.setTaskError(task, fmt.Errorf("failed to create stderr pipe: %w", err))
		return
	}

	if err := cmd.Start(); err != nil {
		s.setTaskError(task, fmt.Errorf("failed to start ffmpeg: %w", err))
		return
	}

	go s.monitorProgress(stderr, task, duration)

	err = cmd.Wait()

	s.tasksMutex.Lock()
	if ctx.Err() == context.Canceled {
		task.Status = model.TaskStatusStopped
		os.Remove(task.OutputPath)
	} else if err != nil {
		task.Status = model.TaskStatusError
		task.LastError = fmt.Errorf("%w: %v", errs.ErrFFmpeg, err).Error()
		os.Remove(task.OutputPath)
	} else {
		task.Status = model.TaskStatusCompleted
		task.Progress = 1.0
		task.Percent = 100
	}
	task.FinishedAt = time.Now()
	s.tasksMutex.Unlock()

	s.notifyUpdate(task)
}

// buildFFmpegArgs builds the ffmpeg command arguments for a job.
func (s *Service) buildFFmpegArgs(j *job) []string {
	args := []string{
		"-y", // overwrite output file
		"-i", j.task.InputPath,
	}

	switch j.mode {
	case modeExtractAudio:
		args = append(args,
			"-vn",
			"-c:a", "libmp3lame",
			"-b:a", j.bitrate+"k",
		)
	case modeDownscale:
		args = append(args,
			"-vf", fmt.Sprintf("scale=-2:%d", j.height),
			"-c:v", VideoCodec,
			"-preset", VideoPreset,
			"-crf", VideoCRF,
			"-c:a", "copy",
			"-movflags", FastStartFlag,
		)
	default: // modeRecode
		args = append(args,
			"-c:v", VideoCodec,
			"-preset", VideoPreset,
			"-crf", VideoCRF,
			"-c:a", AudioCodec,
			"-b:a", AudioBitrate,
			"-movflags", FastStartFlag,
		)
	}

	args = append(args,
		"-progress", ProgressPipeTarget,
		"-nostats",
		j.task.OutputPath,
	)
	return args
}

// probeDuration gets the duration of a media file in seconds using ffprobe.
func (s *Service) probeDuration(filePath string) (float64, error) {
	cmd := exec.Command(s.ffprobeBinary(),
		"-v", FFprobeLogLevel,
		"-show_entries", FFprobeShowEntries,
		"-of", FFprobeOutputFormat,
		filePath)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to run ffprobe: %w", err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return duration, nil
}

// monitorProgress parses ffmpeg -progress output (out_time_us lines).
func (s *Service) monitorProgress(stderr io.ReadCloser, task *model.ConversionTask, totalDuration float64) {
	defer stderr.Close()
	scanner := bufio.NewScanner(stderr)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, ProgressTimePrefix) {
			continue
		}

		timeMicroseconds, err := strconv.ParseInt(strings.TrimPrefix(line, ProgressTimePrefix), 10, 64)
		if err != nil {
			continue
		}
		if totalDuration <= 0 {
			continue
		}

		progress := float64(timeMicroseconds) / 1e6 / totalDuration
		if progress > 1.0 {
			progress = 1.0
		}

		s.tasksMutex.Lock()
		task.Progress = progress
		task.Percent = int(progress * 100)
		s.tasksMutex.Unlock()

		s.notifyUpdate(task)
	}
}

// ffmpegBinary resolves the ffmpeg executable.
func (s *Service) ffmpegBinary() string {
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()
	if s.ffmpegPath != "" {
		return s.ffmpegPath
	}
	return FFmpegCommand
}

// ffprobeBinary resolves the ffprobe executable, looking beside an explicit
// ffmpeg binary first.
func (s *Service) ffprobeBinary() string {
	s.tasksMutex.RLock()
	defer s.tasksMutex.RUnlock()
	if s.ffmpegPath != "" {
		probe := filepath.Join(filepath.Dir(s.ffmpegPath), FFprobeCommand)
		if _, err := os.Stat(probe); err == nil {
			return probe
		}
	}
	return FFprobeCommand
}

// setTaskError sets an error state for a task
func (s *Service) setTaskError(task *model.ConversionTask, err error) {
	s.tasksMutex.Lock()
	task.Status = model.TaskStatusError
	task.LastError = err.Error()
	task.FinishedAt = time.Now()
	s.tasksMutex.Unlock()

	s.notifyUpdate(task)
}

// notifyUpdate calls the update callback if set
func (s *Service) notifyUpdate(task *model.ConversionTask) {
	if s.onUpdate != nil {
		s.onUpdate(task)
	}
}

// newTask builds a pending conversion task.
func newTask(inputPath, outputPath string) *model.ConversionTask {
	return &model.ConversionTask{
		ID:         generateTaskID(),
		InputPath:  inputPath,
		OutputPath: outputPath,
		Status:     model.TaskStatusPending,
		StartedAt:  time.Now(),
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
