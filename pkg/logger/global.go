package logger

import (
	"sync"

	"tikresearch/pkg/config"
)

var (
	globalLogger Logger
	globalMu     sync.RWMutex
)

// Initialize sets up the global logger from configuration. Must be called
// before GetLogger for configured output; otherwise a default console
// logger is used.
func Initialize(cfg *config.LoggingConfig) error {
	log, err := New(cfg)
	if err != nil {
		return err
	}

	globalMu.Lock()
	globalLogger = log
	globalMu.Unlock()
	return nil
}

// GetLogger returns the global logger instance
func GetLogger() Logger {
	globalMu.RLock()
	log := globalLogger
	globalMu.RUnlock()
	if log != nil {
		return log
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		log, err := New(&config.LoggingConfig{Level: "info"})
		if err != nil {
			log = NewNop()
		}
		globalLogger = log
	}
	return globalLogger
}

// Convenience wrappers around the global logger.

func Debug(msg string) { GetLogger().Debug(msg) }
func Info(msg string)  { GetLogger().Info(msg) }
func Warn(msg string)  { GetLogger().Warn(msg) }
func Error(msg string) { GetLogger().Error(msg) }

func WithField(key string, value interface{}) Logger { return GetLogger().WithField(key, value) }

func WithFields(fields map[string]interface{}) Logger { return GetLogger().WithFields(fields) }

func WithError(err error) Logger { return GetLogger().WithError(err) }
