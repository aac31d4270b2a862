package logging

import (
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel определяет уровни логирования
type LogLevel int

const (
	TRACE LogLevel = iota
	DEBUG
	INFO
	WARN
	ERROR
)

// String возвращает строковое представление уровня логирования
func (l LogLevel) String() string {
	switch l {
	case TRACE:
		return "TRACE"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel разбирает уровень из строки конфигурации ("debug", "INFO", ...)
func ParseLevel(s string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return TRACE, true
	case "DEBUG":
		return DEBUG, true
	case "INFO":
		return INFO, true
	case "WARN", "WARNING":
		return WARN, true
	case "ERROR":
		return ERROR, true
	}
	return INFO, false
}

// Logger представляет систему логирования компонента
type Logger struct {
	component       string
	consoleLogger   *log.Logger
	fileLogger      *log.Logger
	file            *os.File
	minConsoleLevel LogLevel
	minFileLevel    LogLevel
}

var (
	// logDir задаётся InitDefaultLoggerIn; пока пусто, логгеры пишут только в консоль
	logDir   string
	logDirMu sync.RWMutex

	defaultLogger = &Logger{
		consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
		minConsoleLevel: INFO,
		minFileLevel:    DEBUG,
	}
)

// NewLogger создаёт логгер компонента. Файл создаётся только после InitDefaultLoggerIn.
func NewLogger(component string) (*Logger, error) {
	logger := &Logger{
		component:       component,
		consoleLogger:   log.New(os.Stdout, "", log.LstdFlags),
		minConsoleLevel: defaultLogger.minConsoleLevel,
		minFileLevel:    defaultLogger.minFileLevel,
	}

	logDirMu.RLock()
	dir := logDir
	logDirMu.RUnlock()
	if dir == "" {
		return logger, nil
	}

	file, err := openLogFile(dir, component)
	if err != nil {
		return nil, err
	}
	logger.file = file
	logger.fileLogger = log.New(file, "", log.LstdFlags)
	return logger, nil
}

// NewWriterLogger создаёт логгер поверх произвольного writer (используется в тестах)
func NewWriterLogger(component string, w io.Writer, level LogLevel) *Logger {
	return &Logger{
		component:       component,
		consoleLogger:   log.New(w, "", 0),
		minConsoleLevel: level,
		minFileLevel:    ERROR,
	}
}

func openLogFile(dir, component string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("ошибка создания директории %s: %w", dir, err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(dir, fmt.Sprintf("%s_%s.log", component, timestamp))

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания файла логов: %w", err)
	}
	return file, nil
}

// InitDefaultLoggerIn инициализирует глобальный логгер с записью в указанную директорию
func InitDefaultLoggerIn(dir, component string) error {
	logDirMu.Lock()
	logDir = dir
	logDirMu.Unlock()

	file, err := openLogFile(dir, component)
	if err != nil {
		return err
	}

	defaultLogger.component = component
	defaultLogger.file = file
	defaultLogger.fileLogger = log.New(file, "", log.LstdFlags)
	return nil
}

// SetDefaultLevel задаёт минимальный уровень вывода в консоль для всех логгеров
func SetDefaultLevel(level LogLevel) {
	defaultLogger.minConsoleLevel = level
	GetLoggerManager().setConsoleLevel(level)
}

// CloseDefaultLogger закрывает глобальный логгер и логгеры компонентов
func CloseDefaultLogger() {
	_ = GetLoggerManager().CloseAll()
	_ = defaultLogger.Close()
}

// Close закрывает файл логгера
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.fileLogger = nil
	return err
}

// Trace логирует сообщение уровня TRACE
func (l *Logger) Trace(format string, args ...interface{}) { l.logMessage(TRACE, format, args...) }

// Debug логирует сообщение уровня DEBUG
func (l *Logger) Debug(format string, args ...interface{}) { l.logMessage(DEBUG, format, args...) }

// Info логирует сообщение уровня INFO
func (l *Logger) Info(format string, args ...interface{}) { l.logMessage(INFO, format, args...) }

// Warn логирует сообщение уровня WARN
func (l *Logger) Warn(format string, args ...interface{}) { l.logMessage(WARN, format, args...) }

// Error логирует сообщение уровня ERROR
func (l *Logger) Error(format string, args ...interface{}) { l.logMessage(ERROR, format, args...) }

// logMessage внутренняя функция для логирования
func (l *Logger) logMessage(level LogLevel, format string, args ...interface{}) {
	if l == nil {
		return
	}

	prefix := fmt.Sprintf("[%s]", level.String())
	if l.component != "" {
		prefix = fmt.Sprintf("[%s][%s]", level.String(), l.component)
	}
	message := prefix + " " + fmt.Sprintf(format, args...)

	if l.fileLogger != nil && level >= l.minFileLevel {
		l.fileLogger.Println(message)
	}
	if l.consoleLogger != nil && level >= l.minConsoleLevel {
		l.consoleLogger.Println(message)
	}
}

// Trace логирует через глобальный логгер
func Trace(format string, args ...interface{}) { defaultLogger.logMessage(TRACE, format, args...) }

// Debug логирует через глобальный логгер
func Debug(format string, args ...interface{}) { defaultLogger.logMessage(DEBUG, format, args...) }

// Info логирует через глобальный логгер
func Info(format string, args ...interface{}) { defaultLogger.logMessage(INFO, format, args...) }

// Warn логирует через глобальный логгер
func Warn(format string, args ...interface{}) { defaultLogger.logMessage(WARN, format, args...) }

// Error логирует через глобальный логгер
func Error(format string, args ...interface{}) { defaultLogger.logMessage(ERROR, format, args...) }

// HexDump создает hex дамп данных
func HexDump(data []byte) string {
	if len(data) == 0 {
		return "No data"
	}

	// Ограничиваем размер дампа до 256 байт
	size := len(data)
	if size > 256 {
		size = 256
	}

	return hex.Dump(data[:size])
}

// LogProtocolError логирует ошибки декодирования кадра
func LogProtocolError(peer string, err error, data []byte) {
	Error("Protocol error from %s: %v", peer, err)
	if len(data) > 0 {
		Debug("Raw data (%d bytes):\n%s", len(data), HexDump(data))
	}
}
