package logger

import (
	"sync"

	"github.com/mstgnz/gopos/infra/config"
)

const (
	serviceName    = "gopos"
	serviceVersion = "1.0.0"
)

var (
	globalLogger *SystemLogger
	globalMu     sync.RWMutex
	once         sync.Once
)

// InitGlobalLogger initializes the global system logger. A nil sink keeps
// logging on the console only.
func InitGlobalLogger(sink Sink) {
	once.Do(func() {
		cfg := config.GetAppConfig()
		lc := SystemLoggerConfig{
			EnableConsole: true,
			EnableSink:    sink != nil,
			MinLevel:      ParseLevel(cfg.LoggingLevel),
			Service:       serviceName,
			Version:       serviceVersion,
			Environment:   cfg.Environment,
		}
		if lc.Environment == "development" {
			lc.MinLevel = LevelDebug
		}

		globalMu.Lock()
		globalLogger = NewSystemLogger(sink, lc)
		globalMu.Unlock()
	})
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *SystemLogger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		// console-only until InitGlobalLogger runs
		globalLogger = NewSystemLogger(nil, SystemLoggerConfig{
			EnableConsole: true,
			MinLevel:      LevelInfo,
			Service:       serviceName,
			Version:       serviceVersion,
			Environment:   "development",
		})
	}
	return globalLogger
}

// Debug logs a debug message using the global logger
func Debug(message string, ctx ...LogContext) {
	GetGlobalLogger().Debug(message, ctx...)
}

// Info logs an info message using the global logger
func Info(message string, ctx ...LogContext) {
	GetGlobalLogger().Info(message, ctx...)
}

// Warn logs a warning message using the global logger
func Warn(message string, ctx ...LogContext) {
	GetGlobalLogger().Warn(message, ctx...)
}

// Error logs an error message using the global logger
func Error(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Error(message, err, ctx...)
}

// Fatal logs a fatal message using the global logger and exits
func Fatal(message string, err error, ctx ...LogContext) {
	GetGlobalLogger().Fatal(message, err, ctx...)
}

// WithContext creates a context logger from the global logger
func WithContext(ctx LogContext) *ContextLogger {
	return GetGlobalLogger().WithContext(ctx)
}

// WithMerchant creates a context logger for one merchant.
func WithMerchant(merchantKey string) *ContextLogger {
	return WithContext(LogContext{MerchantKey: merchantKey})
}

// WithProvider creates a context logger for one gateway.
func WithProvider(provider string) *ContextLogger {
	return WithContext(LogContext{Provider: provider})
}
