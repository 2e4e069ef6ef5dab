// Package pathutil expands user-supplied paths.
package pathutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Expand expands the home directory (~) and environment variables in a path
// and returns it absolute.
func Expand(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not get user home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}

	path = os.ExpandEnv(path)

	return filepath.Abs(path)
}
