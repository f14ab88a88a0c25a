package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLogFormat selects the log encoding: "json" for one object per line,
// anything else for the console layout.
const EnvLogFormat = "STREAMIX_LOG_FORMAT"

func SetupLogger() {
	log.Logger = newLogger(os.Stderr, os.Getenv(EnvLogFormat))
}

func newLogger(w io.Writer, format string) zerolog.Logger {
	if strings.EqualFold(format, "json") {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		return zerolog.New(w).With().Timestamp().Logger()
	}
	// Colour stays off so log shippers don't see ANSI escape codes
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	output.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}
	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("[ %s ]", i)
	}
	return zerolog.New(output).With().Timestamp().Logger()
}

func GetLogger() zerolog.Logger {
	return log.Logger
}

// ForConn tags a logger with the backend connection it talks through.
func ForConn(id int, name string) zerolog.Logger {
	return log.Logger.With().Int("conn_id", id).Str("conn", name).Logger()
}
