package logging

import (
	"fmt"
	"sync"
)

// LoggerManager управляет множественными логгерами для разных компонентов
type LoggerManager struct {
	mu      sync.RWMutex
	loggers map[string]*Logger
}

var (
	globalManager *LoggerManager
	managerOnce   sync.Once
)

// GetLoggerManager возвращает глобальный менеджер логгеров
func GetLoggerManager() *LoggerManager {
	managerOnce.Do(func() {
		globalManager = &LoggerManager{
			loggers: make(map[string]*Logger),
		}
	})
	return globalManager
}

// GetLogger возвращает логгер для компонента, создавая его при необходимости
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.RLock()
	if logger, exists := lm.loggers[component]; exists {
		lm.mu.RUnlock()
		return logger, nil
	}
	lm.mu.RUnlock()

	lm.mu.Lock()
	defer lm.mu.Unlock()

	// Проверяем еще раз на случай race condition
	if logger, exists := lm.loggers[component]; exists {
		return logger, nil
	}

	logger, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger for %s: %w", component, err)
	}

	lm.loggers[component] = logger
	return logger, nil
}

// CloseAll закрывает все логгеры
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	var lastErr error
	for component, logger := range lm.loggers {
		if err := logger.Close(); err != nil {
			lastErr = fmt.Errorf("failed to close logger for %s: %w", component, err)
		}
	}

	lm.loggers = make(map[string]*Logger)
	return lastErr
}

// setConsoleLevel переносит уровень консоли на уже созданные логгеры
func (lm *LoggerManager) setConsoleLevel(level LogLevel) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for _, logger := range lm.loggers {
		logger.minConsoleLevel = level
	}
}

// GetComponentLogger возвращает логгер компонента; при ошибке файла пишет только в консоль
func GetComponentLogger(component string) *Logger {
	logger, err := GetLoggerManager().GetLogger(component)
	if err != nil {
		return &Logger{
			component:       component,
			consoleLogger:   defaultLogger.consoleLogger,
			minConsoleLevel: defaultLogger.minConsoleLevel,
			minFileLevel:    ERROR,
		}
	}
	return logger
}

func GetNetworkLogger() *Logger {
	return GetComponentLogger("network")
}

func GetServerLogger() *Logger {
	return GetComponentLogger("server")
}

func GetMultipartLogger() *Logger {
	return GetComponentLogger("multipart")
}

func GetSyncLogger() *Logger {
	return GetComponentLogger("sync")
}

func GetStorageLogger() *Logger {
	return GetComponentLogger("storage")
}
