package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewLogger_Selection(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		config LogConfig
		check  func(Logger) bool
	}{
		{
			name:   "nothing enabled",
			config: LogConfig{Level: INFO},
			check:  func(l Logger) bool { _, ok := l.(*NoOpLogger); return ok },
		},
		{
			name:   "console",
			config: LogConfig{Level: INFO, EnableConsole: true},
			check:  func(l Logger) bool { _, ok := l.(*ConsoleLogger); return ok },
		},
		{
			name:   "file",
			config: LogConfig{Level: INFO, OutputFile: filepath.Join(dir, "file.log")},
			check:  func(l Logger) bool { _, ok := l.(*FileLogger); return ok },
		},
		{
			name:   "console and file",
			config: LogConfig{Level: INFO, EnableConsole: true, OutputFile: filepath.Join(dir, "both.log")},
			check: func(l Logger) bool {
				m, ok := l.(*MultiLogger)
				return ok && len(m.loggers) == 2
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.config)
			if err != nil {
				t.Fatalf("NewLogger() error = %v", err)
			}
			t.Cleanup(func() { _ = logger.Close() })
			if !tt.check(logger) {
				t.Errorf("NewLogger() = %T", logger)
			}
		})
	}
}

func TestNewLogger_FileRotationFollowsMaxSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docsync.log")
	logger, err := NewLogger(LogConfig{Level: INFO, OutputFile: path, MaxFileSize: 4096})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	defer logger.Close()

	file := logger.(*FileLogger)
	if !file.sink.rotateEnabled || file.sink.maxFileSize != 4096 {
		t.Errorf("rotation = %v at %d bytes", file.sink.rotateEnabled, file.sink.maxFileSize)
	}
}

func TestNewLogger_UnwritableLogPath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := NewLogger(LogConfig{OutputFile: filepath.Join(blocker, "docsync.log")}); err == nil {
		t.Error("NewLogger() should fail when the log directory cannot be created")
	}
}

func TestDefaultLogConfig(t *testing.T) {
	config := DefaultLogConfig()
	if config.Level != INFO || !config.EnableConsole || !config.RedactSensitive {
		t.Errorf("DefaultLogConfig() = %+v", config)
	}
	if config.MaxFileSize != 100*1024*1024 {
		t.Errorf("MaxFileSize = %d", config.MaxFileSize)
	}
}

func TestNewDebugLoggerWithTransport(t *testing.T) {
	logger, transport, err := NewDebugLoggerWithTransport(LogConfig{Level: ERROR})
	if err != nil {
		t.Fatalf("NewDebugLoggerWithTransport() error = %v", err)
	}
	if transport != nil {
		t.Error("transport should only be built in debug mode")
	}
	_ = logger.Close()

	path := filepath.Join(t.TempDir(), "debug.log")
	logger, transport, err = NewDebugLoggerWithTransport(LogConfig{Level: ERROR, EnableDebug: true, OutputFile: path})
	if err != nil {
		t.Fatalf("NewDebugLoggerWithTransport() error = %v", err)
	}
	if transport == nil {
		t.Fatal("debug mode should return a transport")
	}
	logger.Debug("remote request")
	entries := readEntries(t, logger.(*FileLogger))
	if len(entries) != 1 {
		t.Errorf("debug mode should lower the level to DEBUG, got %d entries", len(entries))
	}
}
