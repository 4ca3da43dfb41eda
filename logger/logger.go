package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Defaulted to plain stdout loggers so packages can log before (or
// without) InitLoggers wiring up file rotation, e.g. under go test.
var (
	InfoLogger  = logrus.New()
	WarnLogger  = logrus.New()
	ErrorLogger = logrus.New()
)

func newLogger(level logrus.Level, filename string) *logrus.Logger {
	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join("logs", filename),
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}
	l.SetOutput(io.MultiWriter(os.Stdout, rotator))

	return l
}

// InitLoggers sets up the shared loggers. Call once at startup before
// anything logs.
func InitLoggers() {
	InfoLogger = newLogger(logrus.InfoLevel, "info.log")
	WarnLogger = newLogger(logrus.WarnLevel, "warn.log")
	ErrorLogger = newLogger(logrus.ErrorLevel, "error.log")
}
