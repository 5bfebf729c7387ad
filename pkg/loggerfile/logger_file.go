package loggerfile

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	globalLogDir   = "logs"
	globalLogDirMu sync.RWMutex
)

// SetGlobalLogDir sets the directory new file loggers are created under.
func SetGlobalLogDir(logDir string) {
	globalLogDirMu.Lock()
	defer globalLogDirMu.Unlock()
	globalLogDir = logDir
}

func GetGlobalLogDir() string {
	globalLogDirMu.RLock()
	defer globalLogDirMu.RUnlock()
	return globalLogDir
}

// FileLogger appends timestamped lines to one file. A nil *FileLogger is
// valid and discards everything.
type FileLogger struct {
	file  *os.File
	path  string
	mutex sync.Mutex
}

// NewFileLogger opens (or creates) filePath relative to the global log dir.
func NewFileLogger(filePath string) (*FileLogger, error) {
	full := filepath.Join(GetGlobalLogDir(), filePath)
	if err := os.MkdirAll(filepath.Dir(full), os.ModePerm); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	file, err := os.OpenFile(full, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &FileLogger{file: file, path: full}, nil
}

// NodeLogFile is the file name used for a node's round trace.
func NodeLogFile(nodeID int) string {
	return fmt.Sprintf("node_%d.log", nodeID)
}

func (fl *FileLogger) Path() string {
	if fl == nil {
		return ""
	}
	return fl.path
}

// Info writes a formatted line.
func (fl *FileLogger) Info(message interface{}, a ...interface{}) {
	if fl == nil {
		return
	}
	var text string
	if str, ok := message.(string); ok {
		text = fmt.Sprintf(str, a...)
	} else {
		text = fmt.Sprint(append([]interface{}{message}, a...)...)
	}
	fl.write(text)
}

func (fl *FileLogger) write(text string) {
	fl.mutex.Lock()
	defer fl.mutex.Unlock()

	if fl.file == nil {
		return
	}
	line := fmt.Sprintf("%s: %s\n", time.Now().Format(time.RFC3339Nano), text)
	if _, err := fl.file.WriteString(line); err != nil {
		log.Printf("Failed to write log message: %v", err)
	}
}

// Close flushes and closes the underlying file. Later writes are dropped.
func (fl *FileLogger) Close() error {
	if fl == nil {
		return nil
	}
	fl.mutex.Lock()
	defer fl.mutex.Unlock()

	if fl.file == nil {
		return nil
	}
	err := fl.file.Close()
	fl.file = nil
	return err
}
