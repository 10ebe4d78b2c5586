package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger represents a leveled logger for paper trading sessions
type Logger struct {
	name    string
	logFile *os.File
	logger  *log.Logger
	mu      sync.Mutex
	logDir  string
	now     func() time.Time
}

// LogLevel represents different types of log entries
type LogLevel string

const (
	LogLevelInfo     LogLevel = "INFO"
	LogLevelWarning  LogLevel = "WARN"
	LogLevelError    LogLevel = "ERROR"
	LogLevelCritical LogLevel = "CRITICAL"
	LogLevelTrade    LogLevel = "TRADE"
	LogLevelStatus   LogLevel = "STATUS"
)

// NewLogger creates a new file logger for the named session under dir
func NewLogger(name, dir string) (*Logger, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", name, timestamp)
	logPath := filepath.Join(dir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	l := &Logger{
		name:    name,
		logFile: file,
		logger:  log.New(file, "", 0),
		logDir:  dir,
		now:     time.Now,
	}

	l.writeSessionHeader()

	return l, nil
}

// NewWriterLogger creates a logger writing to w without a session header
func NewWriterLogger(w io.Writer, name string) *Logger {
	return &Logger{
		name:   name,
		logger: log.New(w, "", 0),
		now:    time.Now,
	}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return NewWriterLogger(io.Discard, "nop")
}

// writeSessionHeader writes a session start header to the log
func (l *Logger) writeSessionHeader() {
	l.mu.Lock()
	defer l.mu.Unlock()

	header := fmt.Sprintf(`
================================================================================
PAPER TRADING SESSION STARTED
================================================================================
Session: %s
Started: %s
================================================================================
`, l.name, l.now().Format("2006-01-02 15:04:05"))

	l.logger.Print(header)
}

// Log writes a formatted log entry with the specified level
func (l *Logger) Log(level LogLevel, format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := l.now().Format("2006-01-02 15:04:05")
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] [%s] [%s] %s", timestamp, level, l.name, message)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...interface{}) {
	l.Log(LogLevelInfo, format, args...)
}

// Warning logs a warning message
func (l *Logger) Warning(format string, args ...interface{}) {
	l.Log(LogLevelWarning, format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LogLevelError, format, args...)
}

// Critical logs a broken invariant or an emergency condition
func (l *Logger) Critical(format string, args ...interface{}) {
	l.Log(LogLevelCritical, format, args...)
}

// Trade logs a fill or a position transition
func (l *Logger) Trade(format string, args ...interface{}) {
	l.Log(LogLevelTrade, format, args...)
}

// Status logs account status information
func (l *Logger) Status(format string, args ...interface{}) {
	l.Log(LogLevelStatus, format, args...)
}

// LogAccountStatus logs a compact balance summary
func (l *Logger) LogAccountStatus(cash, locked, equity, realized, unrealized float64, openPositions int) {
	l.Status("cash=$%.2f locked=$%.2f equity=$%.2f realized=$%.2f unrealized=$%.2f open=%d",
		cash, locked, equity, realized, unrealized, openPositions)
}

// LogTradeExecution logs fill details
func (l *Logger) LogTradeExecution(side, orderID, symbol string, quantity, price, fees float64, closing bool) {
	action := "OPEN"
	if closing {
		action = "CLOSE"
	}
	l.Trade("%s %s %.8f %s @ $%.8f fee=$%.8f order=%s", action, side, quantity, symbol, price, fees, orderID)
}

// LogError logs error with context
func (l *Logger) LogError(context string, err error) {
	l.Error("%s: %v", context, err)
}

// LogWarning logs warning with context
func (l *Logger) LogWarning(context string, message string, args ...interface{}) {
	fullMessage := fmt.Sprintf(context+": "+message, args...)
	l.Warning("%s", fullMessage)
}

// Close closes the log file
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.logFile != nil {
		footer := fmt.Sprintf(`
================================================================================
PAPER TRADING SESSION ENDED
================================================================================
Ended: %s
================================================================================

`, l.now().Format("2006-01-02 15:04:05"))
		l.logger.Print(footer)

		err := l.logFile.Close()
		l.logFile = nil
		return err
	}
	return nil
}

// GetLogPath returns the current log file path, or "" for writer loggers
func (l *Logger) GetLogPath() string {
	if l.logDir == "" {
		return ""
	}
	timestamp := l.now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", l.name, timestamp)
	return filepath.Join(l.logDir, filename)
}
