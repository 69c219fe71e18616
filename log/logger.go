package log

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is shared by every package. Verbosity comes from the LOG_LEVEL
// environment variable and defaults to info.
var Logger logrus.FieldLogger

func init() {
	Logger = newLogger(os.Getenv("LOG_LEVEL"))
}

func newLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)

	if level == "" {
		return l
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		l.Warnf("unrecognised LOG_LEVEL %q, keeping the info level", level)
		return l
	}
	l.SetLevel(lvl)

	return l
}
