package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the rotating log file inside the log directory.
const FileName = "projection-mcp.log"

// Init points the global logger at stderr and a rotating file. The MCP
// protocol owns stdout, so nothing is ever logged there.
func Init(verbose bool) error {
	// Init runs before config.Load, so LOGS_FOLDER may only be in the
	// binary-relative .env at this point.
	exePath, exeErr := os.Executable()
	if exeErr == nil {
		_ = godotenv.Load(filepath.Join(filepath.Dir(exePath), ".env"))
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	isTerminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
		NoColor:    !isTerminal,
	}

	logDir := os.Getenv("LOGS_FOLDER")
	if logDir == "" {
		if exeErr == nil {
			logDir = filepath.Join(filepath.Dir(exePath), "logs")
		} else {
			logDir = "logs"
		}
	}
	file, err := fileWriter(logDir)
	if err != nil {
		return err
	}

	log.Logger = zerolog.New(zerolog.MultiLevelWriter(io.Writer(console), file)).
		With().
		Timestamp().
		Logger()
	return nil
}

// fileWriter checks that dir is writable and returns a rotating writer in it.
func fileWriter(dir string) (*lumberjack.Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %q: %w", dir, err)
	}
	probe := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(probe, []byte("test"), 0644); err != nil {
		return nil, fmt.Errorf("log directory %q is not writable: %w", dir, err)
	}
	_ = os.Remove(probe)

	return &lumberjack.Logger{
		Filename:   filepath.Join(dir, FileName),
		MaxSize:    16, // megabytes
		MaxBackups: 8,
		MaxAge:     90, // days
		Compress:   true,
	}, nil
}
