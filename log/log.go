// Package log provides loggers for gthread components.
package log

import (
	"os"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

// DebugEnv is the environment variable which enables debug output.
const DebugEnv = "GTHREAD_DEBUG"

var (
	debug bool

	once   sync.Once
	shared *logrus.Logger
)

// Logger is the interface gthread components log through.
type Logger = logrus.FieldLogger

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv(DebugEnv))
	if err != nil {
		debug = false
	}
}

// GetLogger returns a new logger instance.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}

// Default returns the logger shared by components which were not given
// one explicitly.
func Default() *logrus.Logger {
	once.Do(func() {
		shared = GetLogger()
	})
	return shared
}

// SetDebug switches debug output of the shared logger.
func SetDebug(enabled bool) {
	l := Default()
	if enabled {
		l.SetLevel(logrus.DebugLevel)
		return
	}
	l.SetLevel(logrus.InfoLevel)
}
