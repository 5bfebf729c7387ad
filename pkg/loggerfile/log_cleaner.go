package loggerfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/meta-node-blockchain/benor/pkg/logger"
)

// LogCleaner wipes a log directory so a new simulation run starts with
// empty trace files.
type LogCleaner struct {
	logDir string
}

func NewLogCleaner(logDir string) *LogCleaner {
	return &LogCleaner{logDir: logDir}
}

// CleanLogs removes everything inside the log directory but keeps the
// directory itself. A missing directory is not an error.
func (lc *LogCleaner) CleanLogs() error {
	entries, err := os.ReadDir(lc.logDir)
	if os.IsNotExist(err) {
		logger.Debug("Log directory %s does not exist, nothing to clean", lc.logDir)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read log dir %s: %w", lc.logDir, err)
	}

	for _, entry := range entries {
		path := filepath.Join(lc.logDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}
	logger.Debug("Cleaned %d entries from %s", len(entries), lc.logDir)
	return nil
}
