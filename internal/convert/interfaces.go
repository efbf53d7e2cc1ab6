package convert

import (
	"github.com/rand-hawk/youtube-downloader/internal/model"
)

// Converter defines the interface for the FFmpeg post-processing service.
type Converter interface {
	SetUpdateCallback(func(*model.ConversionTask))
	RecodeMP4(inputPath string) (*model.ConversionTask, error)
	ExtractAudio(inputPath, bitrate string) (*model.ConversionTask, error)
	Downscale(inputPath string, height int) (*model.ConversionTask, error)
	StopConversion(taskID string) error
	GetTask(taskID string) (*model.ConversionTask, bool)
}
