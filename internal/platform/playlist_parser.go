package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ytget/ytdlp/v2"

	"github.com/rand-hawk/youtube-downloader/internal/model"
)

// Timeout constants
const (
	DefaultParseTimeout = 60 * time.Second
)

// Default values
const (
	DefaultDuration     = "Unknown"
	DefaultPlaylistName = "Unknown Playlist"
)

// URL templates
const (
	YouTubeVideoURLTemplate = "https://www.youtube.com/watch?v=%s"
)

// Playlist title constants
const (
	MinPrefixLength = 10
	PlaylistSuffix  = " Playlist"
)

// PlaylistParserService resolves YouTube playlist URLs into their videos.
type PlaylistParserService struct {
	timeout time.Duration
}

// NewPlaylistParserService creates a new parser service
func NewPlaylistParserService() *PlaylistParserService {
	return &PlaylistParserService{
		timeout: DefaultParseTimeout,
	}
}

// SetTimeout sets the timeout for parsing operations
func (p *PlaylistParserService) SetTimeout(timeout time.Duration) {
	p.timeout = timeout
}

// ParsePlaylist parses a YouTube playlist and returns video information
func (p *PlaylistParserService) ParsePlaylist(ctx context.Context, url string) (*model.Playlist, error) {
	if !IsPlaylistURL(url) {
		return nil, fmt.Errorf("invalid playlist URL: %s", url)
	}

	playlistID := ExtractPlaylistID(url)
	if playlistID == "" {
		return nil, fmt.Errorf("could not extract playlist ID from URL: %s", url)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	d := ytdlp.New()
	items, err := d.GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	now := time.Now()
	videos := make([]*model.PlaylistVideo, 0, len(items))
	for _, it := range items {
		videos = append(videos, &model.PlaylistVideo{
			ID:        it.VideoID,
			Title:     it.Title,
			Duration:  DefaultDuration,
			URL:       fmt.Sprintf(YouTubeVideoURLTemplate, it.VideoID),
			Status:    model.VideoStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	playlist := &model.Playlist{
		ID:          playlistID,
		Title:       p.extractPlaylistTitle(videos),
		URL:         url,
		Videos:      videos,
		Status:      model.PlaylistStatusReady,
		TotalVideos: len(videos),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return playlist, nil
}

// extractPlaylistTitle generates a title for the playlist based on videos
func (p *PlaylistParserService) extractPlaylistTitle(videos []*model.PlaylistVideo) string {
	if len(videos) == 0 {
		return DefaultPlaylistName
	}
	if len(videos) > 1 {
		commonPrefix := findCommonPrefix(videos[0].Title, videos[1].Title)
		if len(commonPrefix) > MinPrefixLength {
			return strings.TrimSpace(commonPrefix) + PlaylistSuffix
		}
	}
	return videos[0].Title + PlaylistSuffix
}

// findCommonPrefix finds the common prefix between two strings
func findCommonPrefix(s1, s2 string) string {
	minLen := min(len(s1), len(s2))
	for i := 0; i < minLen; i++ {
		if s1[i] != s2[i] {
			return s1[:i]
		}
	}
	return s1[:minLen]
}
