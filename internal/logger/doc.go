// Package logger provides structured logging for the downloader.
//
// Features:
//   - Log levels (DEBUG, INFO, WARN, ERROR)
//   - Component-based filtering
//   - Text and JSON output formats
//   - Thread-safe operations
//
// Usage:
//
//	log := logger.WithComponent(logger.ComponentDownload)
//	log.Info("starting download", map[string]interface{}{
//		"url": "https://youtube.com/watch?v=abc",
//	})
package logger
