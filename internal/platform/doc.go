package platform

// Package platform contains OS and filesystem glue for the portable layout:
// app directory discovery, directory creation, partial-download scanning,
// YouTube URL classification, and playlist parsing.
