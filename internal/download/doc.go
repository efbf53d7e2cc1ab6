package download

// Package download implements the core download pipeline built on top of
// yt-dlp (via github.com/lrstanley/go-ytdlp). It manages task lifecycle,
// concurrency limits, resume over partial files, retry with backoff,
// progress propagation, and persistence of the queue between runs.
