package convert

// Package convert drives the external FFmpeg binary for post-processing:
// recoding to mp4, extracting mp3 audio, and downscaling to a target height.
// Progress is parsed from ffmpeg -progress output against the duration
// reported by ffprobe.
