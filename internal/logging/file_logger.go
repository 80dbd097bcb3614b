package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// FileLogger implements Logger interface for file-based logging
type FileLogger struct {
	sink            *rotatingFile
	base            *logrus.Logger
	level           *LogLevel
	traceID         string
	redactSensitive bool
}

// FileLoggerConfig contains configuration for file logger
type FileLoggerConfig struct {
	FilePath        string
	Level           LogLevel
	MaxFileSize     int64 // in bytes, 0 means no rotation
	RotateEnabled   bool
	RedactSensitive bool
}

// rotatingFile is the io.Writer behind the logrus logger. It rolls the file
// over once maxFileSize bytes have been written.
type rotatingFile struct {
	mu            sync.Mutex
	file          *os.File
	filePath      string
	maxFileSize   int64
	currentSize   int64
	rotateEnabled bool
}

// NewFileLogger creates a new file logger
func NewFileLogger(config FileLoggerConfig) (*FileLogger, error) {
	dir := filepath.Dir(config.FilePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		if closeErr := file.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to close log file after stat error: %w", closeErr)
		}
		return nil, fmt.Errorf("failed to stat log file: %w", err)
	}

	sink := &rotatingFile{
		file:          file,
		filePath:      config.FilePath,
		maxFileSize:   config.MaxFileSize,
		currentSize:   info.Size(),
		rotateEnabled: config.RotateEnabled && config.MaxFileSize > 0,
	}

	base := logrus.New()
	base.SetOutput(sink)
	base.SetLevel(logrus.DebugLevel)
	base.SetFormatter(entryFormatter{})

	level := config.Level
	return &FileLogger{
		sink:            sink,
		base:            base,
		level:           &level,
		redactSensitive: config.RedactSensitive,
	}, nil
}

// entryFormatter renders logrus entries as one LogEntry JSON object per line
type entryFormatter struct{}

func (entryFormatter) Format(e *logrus.Entry) ([]byte, error) {
	entry := LogEntry{
		Timestamp: e.Time.UTC(),
		Level:     levelName(e.Level),
		Message:   e.Message,
	}
	if len(e.Data) > 0 {
		entry.Fields = make(map[string]interface{}, len(e.Data))
		for k, v := range e.Data {
			if k == traceField {
				entry.TraceID, _ = v.(string)
				continue
			}
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			entry.Fields[k] = v
		}
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal log entry: %w", err)
	}
	return append(data, '\n'), nil
}

func levelName(level logrus.Level) string {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return DEBUG.String()
	case logrus.WarnLevel:
		return WARN.String()
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return ERROR.String()
	default:
		return INFO.String()
	}
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return 0, os.ErrClosed
	}
	if r.rotateEnabled && r.currentSize >= r.maxFileSize {
		if err := r.rotate(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to rotate log file: %v\n", err)
		}
	}

	n, err := r.file.Write(p)
	r.currentSize += int64(n)
	return n, err
}

func (r *rotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}

	timestamp := time.Now().UTC().Format("20060102-150405.000000")
	rotatedPath := fmt.Sprintf("%s.%s", r.filePath, timestamp)
	if err := os.Rename(r.filePath, rotatedPath); err != nil {
		file, _ := os.OpenFile(r.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		r.file = file
		return fmt.Errorf("failed to rename log file: %w", err)
	}

	file, err := os.OpenFile(r.filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to create new log file: %w", err)
	}

	r.file = file
	r.currentSize = 0
	return nil
}

func (r *rotatingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

func (l *FileLogger) enabled(level LogLevel) bool {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	return level >= *l.level
}

func (l *FileLogger) log(level LogLevel, msg string, fields ...Field) {
	if !l.enabled(level) {
		return
	}
	if l.redactSensitive {
		msg = redactSensitiveData(msg)
	}
	l.base.WithFields(toLogrusFields(l.traceID, l.redactSensitive, fields)).Log(level.logrus(), msg)
}

// Debug logs a debug-level message
func (l *FileLogger) Debug(msg string, fields ...Field) {
	l.log(DEBUG, msg, fields...)
}

// Info logs an info-level message
func (l *FileLogger) Info(msg string, fields ...Field) {
	l.log(INFO, msg, fields...)
}

// Warn logs a warning-level message
func (l *FileLogger) Warn(msg string, fields ...Field) {
	l.log(WARN, msg, fields...)
}

// Error logs an error-level message
func (l *FileLogger) Error(msg string, fields ...Field) {
	l.log(ERROR, msg, fields...)
}

// WithTraceID returns a logger writing to the same file with the trace ID set
func (l *FileLogger) WithTraceID(traceID string) Logger {
	return &FileLogger{
		sink:            l.sink,
		base:            l.base,
		level:           l.level,
		traceID:         traceID,
		redactSensitive: l.redactSensitive,
	}
}

// WithContext returns a new logger that extracts trace ID from context
func (l *FileLogger) WithContext(ctx context.Context) Logger {
	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		return l
	}
	return l.WithTraceID(traceID)
}

// SetLevel sets the minimum log level
func (l *FileLogger) SetLevel(level LogLevel) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	*l.level = level
}

// Close closes the log file
func (l *FileLogger) Close() error {
	return l.sink.Close()
}
