package logging

import "context"

// NoOpLogger discards everything
type NoOpLogger struct{}

func NewNoOpLogger() *NoOpLogger { return &NoOpLogger{} }

func (*NoOpLogger) Debug(string, ...Field)               {}
func (*NoOpLogger) Info(string, ...Field)                {}
func (*NoOpLogger) Warn(string, ...Field)                {}
func (*NoOpLogger) Error(string, ...Field)               {}
func (n *NoOpLogger) WithTraceID(string) Logger          { return n }
func (n *NoOpLogger) WithContext(context.Context) Logger { return n }
func (*NoOpLogger) SetLevel(LogLevel)                    {}
func (*NoOpLogger) Close() error                         { return nil }
