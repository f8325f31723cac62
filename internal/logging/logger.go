// Package logging provides unified logging infrastructure for remotetriage
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
)

const logFileName = "remotetriage.log"

// Logger wraps the standard logger with optional file output
type Logger struct {
	*log.Logger
	file *os.File
	mu   sync.Mutex
}

var (
	defaultLogger *Logger
	loggerMu      sync.RWMutex
	debugEnabled  = os.Getenv("DEBUG") == "true"
)

// Initialize sets up logging to stdout and <logDir>/remotetriage.log
func Initialize(logDir string) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logPath := filepath.Join(logDir, logFileName)
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stderr, file)

	loggerMu.Lock()
	if defaultLogger != nil && defaultLogger.file != nil {
		_ = defaultLogger.file.Close()
	}
	defaultLogger = &Logger{
		Logger: log.New(multiWriter, "", log.LstdFlags),
		file:   file,
	}
	loggerMu.Unlock()

	log.SetOutput(multiWriter)
	Printf("Logging initialized: %s", logPath)
	return nil
}

// SetOutput redirects logging to w, mainly for tests and the CLI
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	defaultLogger = &Logger{Logger: log.New(w, "", log.LstdFlags)}
}

// SetDebug toggles Debug output
func SetDebug(enabled bool) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	debugEnabled = enabled
}

// Close closes the log file
func Close() error {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if defaultLogger != nil && defaultLogger.file != nil {
		err := defaultLogger.file.Close()
		defaultLogger.file = nil
		return err
	}
	return nil
}

// Printf logs a formatted message
func Printf(format string, v ...interface{}) {
	output(fmt.Sprintf(format, v...))
}

// Error logs an error message
func Error(format string, v ...interface{}) {
	output(fmt.Sprintf("[ERROR] "+format, v...))
}

// Warning logs a warning message
func Warning(format string, v ...interface{}) {
	output(fmt.Sprintf("[WARN] "+format, v...))
}

// Info logs an info message
func Info(format string, v ...interface{}) {
	output(fmt.Sprintf("[INFO] "+format, v...))
}

// Debug logs a debug message when DEBUG=true or SetDebug(true)
func Debug(format string, v ...interface{}) {
	loggerMu.RLock()
	enabled := debugEnabled
	loggerMu.RUnlock()
	if enabled {
		output(fmt.Sprintf("[DEBUG] "+format, v...))
	}
}

func output(msg string) {
	loggerMu.RLock()
	l := defaultLogger
	loggerMu.RUnlock()

	if l == nil {
		log.Println(msg)
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Println(msg)
}
