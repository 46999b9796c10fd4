package shim

import (
	"io"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/boxlite/boxlite/internal/logging"
)

// InitLogging points BoxLite's shared logger at a daily-rotating file under
// {home_dir}/logs/ (spec §4.7 step 2). The returned io.Closer flushes the
// rotator on shutdown; callers should close it once the shim is done (in
// practice: never, since StartEnter either hands off the process or the
// process exits).
func InitLogging(homeDir, boxID string) io.Closer {
	rotator := &lumberjack.Logger{
		Filename: filepath.Join(homeDir, "logs", boxID+"-shim.log"),
		MaxAge:   1, // days; rotated files older than this are removed
		Compress: true,
	}
	logging.Configure(rotator, zerolog.InfoLevel)
	go func() {
		for range time.Tick(24 * time.Hour) {
			_ = rotator.Rotate()
		}
	}()
	return rotator
}
