package filelog

import (
	"time"

	"github.com/rs/zerolog"
)

// Config holds the file writer configuration.
//
// Example:
//
//	cfg := filelog.DefaultConfig()
//	cfg.Directory = "/var/log/orders"
//	cfg.MaxFilesToKeep = 7
//
//	w := filelog.New(cfg)
//	defer w.Close()
type Config struct {
	// Enabled turns writing on. A disabled Writer ignores every line.
	// Default: true
	Enabled bool

	// Directory is created on first write if missing.
	// Default: "Logs"
	Directory string

	// FileName is the base file name without extension.
	// Default: "telemetry"
	FileName string

	// Extension includes the leading dot.
	// Default: ".log"
	Extension string

	// RotateByDay names files by UTC date and starts a new file each day.
	// It takes precedence over MaxFileSizeBytes.
	// Default: true
	RotateByDay bool

	// MaxFileSizeBytes switches to sequenced files when RotateByDay is off.
	// Zero writes a single file.
	// Default: 10 MiB
	MaxFileSizeBytes int64

	// MaxFilesToKeep bounds the number of rotated files left on disk.
	// Zero keeps everything.
	// Default: 30
	MaxFilesToKeep int

	// Logger receives write failures, throttled.
	Logger zerolog.Logger

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default file writer configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		Directory:        "Logs",
		FileName:         "telemetry",
		Extension:        ".log",
		RotateByDay:      true,
		MaxFileSizeBytes: 10 << 20,
		MaxFilesToKeep:   30,
		Logger:           zerolog.Nop(),
		Now:              time.Now,
	}
}
