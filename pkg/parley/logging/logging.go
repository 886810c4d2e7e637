package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// Options configures the process-wide logger
type Options struct {
	Level     string
	Format    string
	ErrorFile string
	SentryDSN string
	Env       string
}

var sentryEnabled bool

// Setup configures the standard logrus logger. It returns a cleanup function
// that flushes Sentry and closes the error file.
func Setup(opts Options) (func(), error) {
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if opts.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var closers []func()

	if opts.ErrorFile != "" {
		hook, err := NewErrorFileHook(opts.ErrorFile)
		if err != nil {
			return nil, err
		}
		logrus.AddHook(hook)
		closers = append(closers, func() { hook.Close() })
	}

	if opts.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         opts.SentryDSN,
			Environment: opts.Env,
		}); err != nil {
			return nil, fmt.Errorf("init sentry: %w", err)
		}
		sentryEnabled = true
		closers = append(closers, func() { sentry.Flush(2 * time.Second) })
	}

	return func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

// Error logs an error with structured context to the console, the error file
// and Sentry when configured.
func Error(errorType string, err error, context map[string]interface{}) {
	fields := logrus.Fields{"error_type": errorType}
	for k, v := range context {
		fields[k] = v
	}
	logrus.WithFields(fields).WithError(err).Error("Error occurred")

	if sentryEnabled {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("error_type", errorType)
			for k, v := range context {
				scope.SetExtra(k, v)
			}
			sentry.CaptureException(err)
		})
	}
}

// Event logs a domain event with structured context
func Event(eventType string, data map[string]interface{}) {
	logrus.WithField("event_type", eventType).WithFields(data).Info("Event occurred")

	if sentryEnabled {
		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Type:      "info",
			Category:  eventType,
			Data:      data,
			Timestamp: time.Now(),
		})
	}
}

// ErrorFileHook appends error-level entries, stack included, to a local file
type ErrorFileHook struct {
	file      *os.File
	formatter logrus.Formatter
}

// NewErrorFileHook opens (or creates) the error log file
func NewErrorFileHook(path string) (*ErrorFileHook, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create error log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	return &ErrorFileHook{file: f, formatter: &logrus.JSONFormatter{TimestampFormat: time.RFC3339}}, nil
}

func (h *ErrorFileHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel}
}

// Fire persists the entry with the stack of the logging goroutine. The stack
// only goes to the file, never to the console or to clients.
func (h *ErrorFileHook) Fire(entry *logrus.Entry) error {
	withStack := entry.WithField("stack", string(debug.Stack()))
	withStack.Level = entry.Level
	withStack.Message = entry.Message
	withStack.Time = entry.Time
	line, err := h.formatter.Format(withStack)
	if err != nil {
		return err
	}
	_, err = h.file.Write(line)
	return err
}

func (h *ErrorFileHook) Close() error {
	return h.file.Close()
}
