package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the process-wide log instance. Nil until Init runs; the
// package-level helpers tolerate that so early startup code can log.
var Logger *logrus.Logger

var initMu sync.Mutex

// Config controls log output.
type Config struct {
	Level      string `yaml:"level" json:"level"`           // debug, info, warn, error
	OutputFile string `yaml:"outputFile" json:"outputFile"` // optional; empty means console only
	MaxSize    int    `yaml:"maxSize" json:"maxSize"`       // max file size in MB before rotation
	MaxBackups int    `yaml:"maxBackups" json:"maxBackups"` // rotated files to keep
	MaxAge     int    `yaml:"maxAge" json:"maxAge"`         // days to keep rotated files
	Compress   bool   `yaml:"compress" json:"compress"`
}

// Init sets up the process logger. Output goes to stdout and, when
// OutputFile is set, to a size-rotated file as well.
func Init(config Config) error {
	initMu.Lock()
	defer initMu.Unlock()

	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
	})

	writers := []io.Writer{os.Stdout}
	if config.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(config.OutputFile), 0o755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   config.OutputFile,
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		})
	}

	out := io.MultiWriter(writers...)
	logger.SetOutput(out)

	// Route the global logrus instance through the same output so code
	// using logrus.WithField directly lands in the file too.
	logrus.SetOutput(out)
	logrus.SetLevel(level)

	Logger = logger
	return nil
}

// InitDefault initializes console-only logging at info level.
func InitDefault() error {
	return Init(Config{Level: "info"})
}

func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Debugf(format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}

// WithField returns an entry carrying a single context field.
func WithField(key string, value interface{}) *logrus.Entry {
	if Logger != nil {
		return Logger.WithField(key, value)
	}
	return logrus.WithField(key, value)
}

// WithFields returns an entry carrying several context fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	if Logger != nil {
		return Logger.WithFields(fields)
	}
	return logrus.WithFields(fields)
}
