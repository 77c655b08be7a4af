// Package logger provides the leveled, file-backed logging used across the
// pulith packages. A library embedded in a host CLI should not fight that
// host's own logging setup, so output is off by default and only activated
// by an explicit call to Init, and a host can redirect everything through
// SetLogger instead.
package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Logger is the minimal leveled sink pulith writes through. Host
// applications can supply their own implementation via SetLogger to route
// pulith's diagnostics into their own logging stack.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

var (
	mu sync.RWMutex

	DebugEnabled = false

	stdLogger *log.Logger
	logFile   *os.File
	active    Logger
)

// Init sets up file-backed logging. Passing an empty logPath disables the
// file sink.
func Init(debugMode bool, logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	DebugEnabled = debugMode

	if !debugMode || logPath == "" {
		return nil
	}

	logDir := filepath.Dir(logPath)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logFile = f
	stdLogger = log.New(f, "", log.Ldate|log.Ltime|log.Lshortfile)

	return nil
}

// SetLogger installs a host-supplied Logger. When set, it receives every
// call regardless of DebugEnabled/file-sink state; pass nil to revert to
// the built-in file sink.
func SetLogger(l Logger) {
	mu.Lock()
	defer mu.Unlock()

	active = l
}

// Close closes the log file if one is open.
func Close() {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

func Infof(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()

	if active != nil {
		active.Infof(format, v...)
		return
	}
	if DebugEnabled && stdLogger != nil {
		stdLogger.Printf("[INFO] "+format, v...)
	}
}

// Errorf logs an error message.
func Errorf(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()

	if active != nil {
		active.Errorf(format, v...)
		return
	}
	if DebugEnabled && stdLogger != nil {
		stdLogger.Printf("[ERROR] "+format, v...)
	}
}

func Debugf(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()

	if active != nil {
		active.Debugf(format, v...)
		return
	}
	if DebugEnabled && stdLogger != nil {
		stdLogger.Printf("[DEBUG] "+format, v...)
	}
}

func Warnf(format string, v ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()

	if active != nil {
		active.Warnf(format, v...)
		return
	}
	if DebugEnabled && stdLogger != nil {
		stdLogger.Printf("[WARNING] "+format, v...)
	}
}
