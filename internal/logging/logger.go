// Package logging configures the global zerolog logger and emits the
// structured cold-start summary.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnv names the variable holding the log level.
const LevelEnv = "WALLPAPER_LOG_LEVEL"

// Init initializes the global logger. WALLPAPER_LOG_LEVEL controls the log
// level: debug, info, warn, error (default: info). Inside Lambda the output
// is JSON on stdout for CloudWatch; elsewhere it is a console writer on
// stderr.
func Init() {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv(LevelEnv)))
	log.Logger = zerolog.New(output()).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// InLambda reports whether the process runs inside the Lambda runtime.
func InLambda() bool {
	return os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""
}

func output() io.Writer {
	if InLambda() {
		return os.Stdout
	}
	return zerolog.ConsoleWriter{Out: os.Stderr}
}
