package platform

import (
	"regexp"
	"strings"
)

// URL parameters and separators
const (
	PlaylistParam  = "list="
	ParamSeparator = "&"
)

var (
	videoURLPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/watch\?v=[\w-]+`),
		regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtu\.be/[\w-]+`),
		regexp.MustCompile(`^(?:https?://)?(?:www\.)?youtube\.com/embed/[\w-]+`),
	}
	videoIDPattern = regexp.MustCompile(`(?:v=|/)([a-zA-Z0-9_-]{11})`)
)

// IsPlaylistURL checks if the URL references a YouTube playlist.
func IsPlaylistURL(url string) bool {
	return strings.Contains(url, PlaylistParam)
}

// IsVideoURL checks if the URL is a single YouTube video URL (not a playlist).
func IsVideoURL(url string) bool {
	url = strings.TrimSpace(url)
	if url == "" || IsPlaylistURL(url) {
		return false
	}
	for _, pattern := range videoURLPatterns {
		if pattern.MatchString(url) {
			return true
		}
	}
	return false
}

// ExtractVideoID extracts the 11-character video ID from a YouTube URL,
// empty string when none is found.
func ExtractVideoID(url string) string {
	m := videoIDPattern.FindStringSubmatch(url)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// ExtractPlaylistID extracts the playlist ID from various URL formats,
// empty string when none is found.
func ExtractPlaylistID(url string) string {
	if !strings.Contains(url, PlaylistParam) {
		return ""
	}
	parts := strings.Split(url, PlaylistParam)
	if len(parts) < 2 {
		return ""
	}
	id := parts[1]
	if strings.Contains(id, ParamSeparator) {
		id = strings.Split(id, ParamSeparator)[0]
	}
	return id
}
