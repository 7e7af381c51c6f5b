package logger

import (
	"io"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig holds rotation settings for file log output.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxFiles   int
	MaxAgeDays int // zero keeps rotated files regardless of age
}

// NewFileWriter returns a lumberjack writer that rotates by size, keeps at
// most MaxFiles gzip-compressed backups and prunes backups older than
// MaxAgeDays. Backup names use local time so operators can match them to
// wall-clock incidents.
func NewFileWriter(cfg FileConfig) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxFiles,
		MaxAge:     cfg.MaxAgeDays,
		LocalTime:  true,
		Compress:   true,
	}
}
