package model

import (
	"fmt"
	"strings"
	"time"
)

// TaskKind selects what the engine produces for a task.
type TaskKind string

const (
	// TaskKindVideo downloads and muxes the best matching video+audio streams.
	TaskKindVideo TaskKind = "video"

	// TaskKindAudio downloads audio only and extracts it to mp3.
	TaskKindAudio TaskKind = "audio"
)

// DownloadTask represents a single download task. Fields carry JSON tags so the
// queue store can persist tasks across restarts.
type DownloadTask struct {
	ID         string     `json:"id"`
	URL        string     `json:"url"`
	Kind       TaskKind   `json:"kind"`
	Quality    string     `json:"quality"` // quality preset: best, 1080, 720, 480
	Status     TaskStatus `json:"status"`
	Progress   float64    `json:"progress"`        // 0.0 to 1.0
	Percent    int        `json:"percent"`         // 0 to 100
	Speed      string     `json:"speed,omitempty"` // human readable speed (e.g., "1.2MB/s")
	ETASec     int        `json:"eta_sec"`         // ETA in seconds, -1 if unknown
	LastError  string     `json:"last_error,omitempty"`
	OutputPath string     `json:"output_path,omitempty"` // path to downloaded file
	Title      string     `json:"title,omitempty"`
	VideoID    string     `json:"video_id,omitempty"` // 11-char YouTube video ID if known
	FileSize   int64      `json:"file_size,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  time.Time  `json:"started_at,omitempty"`
	FinishedAt time.Time  `json:"finished_at,omitempty"`
}

// ConversionTask represents a single FFmpeg post-processing task.
type ConversionTask struct {
	ID         string
	InputPath  string
	OutputPath string
	Status     TaskStatus
	Progress   float64 // 0.0 to 1.0
	Percent    int     // 0 to 100
	LastError  string  // last error message if any
	StartedAt  time.Time
	FinishedAt time.Time
}

// GetETAString returns ETA formatted as hh:mm:ss, or "—" if unknown
func (dt *DownloadTask) GetETAString() string {
	if dt.ETASec <= 0 {
		return "—"
	}

	hours := dt.ETASec / 3600
	minutes := (dt.ETASec % 3600) / 60
	seconds := dt.ETASec % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// GetDisplayTitle returns title, filename, or URL in order of preference
func (dt *DownloadTask) GetDisplayTitle() string {
	// First priority: video title (non-URL)
	if dt.Title != "" && !strings.HasPrefix(dt.Title, "http") {
		return dt.Title
	}

	// Second priority: filename from OutputPath
	if dt.OutputPath != "" {
		// Extract just the filename without path (support both / and \ separators)
		parts := strings.FieldsFunc(dt.OutputPath, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			filename := parts[len(parts)-1]
			// Remove file extension for cleaner display
			if idx := strings.LastIndex(filename, "."); idx > 0 {
				filename = filename[:idx]
			}
			return filename
		}
	}

	// Fallback: URL
	return dt.URL
}
