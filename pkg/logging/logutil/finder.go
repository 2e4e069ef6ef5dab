package logutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grovetools/cncctl/logging"
)

// FindLogFile determines the log file a component writes to. An explicitly
// configured file wins; otherwise the newest dated file next to the default
// location is returned. The logs directory is returned alongside.
func FindLogFile(component string, cfg logging.Config) (logFile string, logsDir string, err error) {
	if cfg.File.Enabled && cfg.File.Path != "" {
		path := logging.FilePath(component, cfg)
		return path, filepath.Dir(path), nil
	}

	logsDir = filepath.Dir(logging.FilePath(component, cfg))
	logFile, err = FindLatestLogFile(logsDir, component+"-")
	return logFile, logsDir, err
}

// FindLatestLogFile finds the most recently modified .log file in a directory
// whose name starts with prefix. Prefers files with content over empty files.
func FindLatestLogFile(dir, prefix string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("could not read log directory %s: %w", dir, err)
	}

	var latestFile os.FileInfo
	var latestPath string
	var latestNonEmptyFile os.FileInfo
	var latestNonEmptyPath string

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latestFile == nil || info.ModTime().After(latestFile.ModTime()) {
			latestFile = info
			latestPath = filepath.Join(dir, entry.Name())
		}
		if info.Size() > 0 {
			if latestNonEmptyFile == nil || info.ModTime().After(latestNonEmptyFile.ModTime()) {
				latestNonEmptyFile = info
				latestNonEmptyPath = filepath.Join(dir, entry.Name())
			}
		}
	}

	// Prefer non-empty files
	if latestNonEmptyFile != nil {
		return latestNonEmptyPath, nil
	}

	if latestFile == nil {
		return "", fmt.Errorf("no log files found in %s", dir)
	}

	return latestPath, nil
}
