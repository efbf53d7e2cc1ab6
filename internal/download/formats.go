package download

import (
	"fmt"

	"github.com/rand-hawk/youtube-downloader/internal/model"
)

// Format selector templates
const (
	FormatAudioOnly   = "bestaudio/best"
	FormatBest        = "bestvideo+bestaudio/best"
	FormatHeightLimit = "bestvideo[height<=%s]+bestaudio/best[height<=%s]"
)

// FormatSelector returns the yt-dlp format expression for a task.
func FormatSelector(kind model.TaskKind, quality string) string {
	if kind == model.TaskKindAudio {
		return FormatAudioOnly
	}
	switch quality {
	case "", "best":
		return FormatBest
	default:
		return fmt.Sprintf(FormatHeightLimit, quality, quality)
	}
}

// QualityTag returns the human-readable tag embedded in output filenames,
// e.g. "Best", "720p" or "192kbps".
func QualityTag(kind model.TaskKind, quality, mp3Bitrate string) string {
	if kind == model.TaskKindAudio {
		if mp3Bitrate == "" {
			mp3Bitrate = "192"
		}
		return mp3Bitrate + "kbps"
	}
	switch quality {
	case "", "best":
		return "Best"
	default:
		return quality + "p"
	}
}
