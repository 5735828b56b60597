package main

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// newLogger maps verbosity_level onto logrus levels:
// 0 error, 1 warn, 2 info, 3 debug, 4 and above trace.
func newLogger(verbosity int, out io.Writer) *log.Logger {
	if out == nil {
		out = os.Stderr
	}
	logger := log.New()
	logger.SetOutput(out)
	logger.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	logger.SetLevel(verbosityLevel(verbosity))
	return logger
}

func verbosityLevel(verbosity int) log.Level {
	switch {
	case verbosity <= 0:
		return log.ErrorLevel
	case verbosity == 1:
		return log.WarnLevel
	case verbosity == 2:
		return log.InfoLevel
	case verbosity == 3:
		return log.DebugLevel
	default:
		return log.TraceLevel
	}
}
