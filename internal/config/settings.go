package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// QualityPreset selects the yt-dlp format family for downloads.
type QualityPreset string

const (
	QualityBest  QualityPreset = "best"
	Quality1080p QualityPreset = "1080"
	Quality720p  QualityPreset = "720"
	Quality480p  QualityPreset = "480"
	QualityAudio QualityPreset = "audio"
)

// Default values
const (
	DefaultConfigFile  = "config.json"
	DefaultOutputDir   = "downloaded_media"
	DefaultPartialDir  = ".partial_downloads"
	DefaultMaxParallel = 3
	DefaultQuality     = QualityBest
	DefaultMP3Bitrate  = "192"

	MinParallel = 1
	MaxParallel = 10

	configFilePerm = 0644
)

// settingsData is the on-disk shape of config.json.
type settingsData struct {
	OutputDir              string `json:"output_dir"`
	PartialDir             string `json:"partial_dir"`
	MaxConcurrentDownloads int    `json:"max_concurrent_downloads"`
	DownloadSpeedLimit     string `json:"download_speed_limit,omitempty"`
	Quality                string `json:"quality"`
	MP3Bitrate             string `json:"mp3_bitrate"`
	FFmpegPath             string `json:"ffmpeg_path,omitempty"`
}

// Settings manages application configuration stored in a JSON file placed
// beside the executable (portable layout) or at an explicit path.
type Settings struct {
	path string
	mu   sync.Mutex
	data settingsData
}

// Load reads settings from path. A missing file is not an error: defaults are
// used and the file is created on the first Save.
func Load(path string) (*Settings, error) {
	s := &Settings{
		path: path,
		data: defaults(filepath.Dir(path)),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &s.data); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	s.fillDefaults(filepath.Dir(path))
	return s, nil
}

// Save writes settings to the config file atomically.
func (s *Settings) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, configFilePerm); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func defaults(baseDir string) settingsData {
	return settingsData{
		OutputDir:              filepath.Join(baseDir, DefaultOutputDir),
		PartialDir:             filepath.Join(baseDir, DefaultPartialDir),
		MaxConcurrentDownloads: DefaultMaxParallel,
		Quality:                string(DefaultQuality),
		MP3Bitrate:             DefaultMP3Bitrate,
	}
}

// fillDefaults replaces zero values left by a partial config file and clamps
// out-of-range values so a hand-edited file cannot drive the engine outside
// its limits.
func (s *Settings) fillDefaults(baseDir string) {
	def := defaults(baseDir)
	if s.data.OutputDir == "" {
		s.data.OutputDir = def.OutputDir
	}
	if s.data.PartialDir == "" {
		s.data.PartialDir = def.PartialDir
	}
	if s.data.MaxConcurrentDownloads <= 0 {
		s.data.MaxConcurrentDownloads = def.MaxConcurrentDownloads
	}
	if s.data.MaxConcurrentDownloads > MaxParallel {
		s.data.MaxConcurrentDownloads = MaxParallel
	}
	if !isValidPreset(QualityPreset(s.data.Quality)) {
		s.data.Quality = def.Quality
	}
	if s.data.MP3Bitrate == "" {
		s.data.MP3Bitrate = def.MP3Bitrate
	}
}

// Path returns the location of the config file.
func (s *Settings) Path() string {
	return s.path
}

// GetOutputDirectory returns the directory completed downloads land in.
func (s *Settings) GetOutputDirectory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.OutputDir
}

// SetOutputDirectory sets the download output directory.
func (s *Settings) SetOutputDirectory(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dir != "" {
		s.data.OutputDir = dir
	}
}

// GetPartialDirectory returns the staging directory for resumable .part files.
func (s *Settings) GetPartialDirectory() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.PartialDir
}

// GetMaxParallelDownloads returns the maximum number of parallel downloads.
func (s *Settings) GetMaxParallelDownloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.MaxConcurrentDownloads
}

// SetMaxParallelDownloads sets the maximum number of parallel downloads,
// clamped to [MinParallel, MaxParallel].
func (s *Settings) SetMaxParallelDownloads(count int) {
	if count < MinParallel {
		count = MinParallel
	}
	if count > MaxParallel {
		count = MaxParallel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.MaxConcurrentDownloads = count
}

// GetSpeedLimit returns the download rate limit as a yt-dlp rate string
// (e.g. "500K", "2M"), empty when unlimited.
func (s *Settings) GetSpeedLimit() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.DownloadSpeedLimit
}

// SetSpeedLimit sets the download rate limit, empty for unlimited.
func (s *Settings) SetSpeedLimit(limit string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.DownloadSpeedLimit = limit
}

// GetQualityPreset returns the configured quality preset.
func (s *Settings) GetQualityPreset() QualityPreset {
	s.mu.Lock()
	defer s.mu.Unlock()
	return QualityPreset(s.data.Quality)
}

// SetQualityPreset sets the quality preset; unknown values fall back to best.
func (s *Settings) SetQualityPreset(preset QualityPreset) {
	if !isValidPreset(preset) {
		preset = QualityBest
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.Quality = string(preset)
}

// GetMP3Bitrate returns the target bitrate in kbit/s for audio extraction.
func (s *Settings) GetMP3Bitrate() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.MP3Bitrate
}

// GetFFmpegPath returns the configured ffmpeg executable path, empty when
// ffmpeg should be resolved from PATH.
func (s *Settings) GetFFmpegPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.FFmpegPath
}

// SetFFmpegPath sets an explicit ffmpeg executable path.
func (s *Settings) SetFFmpegPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.FFmpegPath = path
}

// GetQualityPresetOptions returns the available quality preset options.
func (s *Settings) GetQualityPresetOptions() []QualityPreset {
	return []QualityPreset{QualityBest, Quality1080p, Quality720p, Quality480p, QualityAudio}
}

func isValidPreset(preset QualityPreset) bool {
	switch preset {
	case QualityBest, Quality1080p, Quality720p, Quality480p, QualityAudio:
		return true
	}
	return false
}
