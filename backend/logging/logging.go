// Package logging creates named zap loggers on top of the IPFS go-log registry,
// so every subsystem's level can be changed at runtime by name.
package logging

import (
	"os"
	"slices"
	"strings"
	"time"

	"github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

func init() {
	envfmt := strings.TrimSpace(strings.ToLower(os.Getenv("LISTDELTA_LOG_FMT")))

	cfg := zap.NewProductionEncoderConfig()
	cfg.MessageKey = "msg"
	cfg.LevelKey = "lvl"
	cfg.TimeKey = "ts"
	cfg.NameKey = "log"
	cfg.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}

	var enc zapcore.Encoder

	// JSON when stderr is not a terminal.
	if !term.IsTerminal(int(os.Stderr.Fd())) || envfmt == "json" {
		enc = zapcore.NewJSONEncoder(cfg)
	} else {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(cfg)
	}

	log.SetPrimaryCore(zapcore.NewCore(enc, os.Stderr, zap.NewAtomicLevelAt(zapcore.DebugLevel)))
}

// New creates a named logger with the given level.
// Calling it again with the same name only changes the level.
func New(subsystem, level string) *zap.Logger {
	l := log.Logger(subsystem).Desugar()

	if err := log.SetLogLevel(subsystem, level); err != nil {
		panic(err)
	}

	return l
}

// SetLogLevel changes the level of a named logger.
func SetLogLevel(subsystem, level string) error {
	return log.SetLogLevel(subsystem, level)
}

// ListLogNames returns the names of all the loggers in order.
func ListLogNames() []string {
	logs := log.GetSubsystems()
	slices.Sort(logs)
	return logs
}

// GetLogLevel returns the current level of a named logger.
func GetLogLevel(subsystem string) zapcore.Level {
	return log.Logger(subsystem).Level()
}
