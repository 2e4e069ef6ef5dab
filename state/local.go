package state

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Local is client-side state persisted between invocations (MDI history,
// last selected units) as a generic map of key-value pairs.
type Local map[string]interface{}

// localFilePath returns the path to the local state file.
// The file is located in .cncctl/state.yml in the current working directory,
// next to the logs, so each shop directory keeps its own history.
func localFilePath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current directory: %w", err)
	}
	return filepath.Join(cwd, ".cncctl", "state.yml"), nil
}

// LoadLocal loads the local state file.
// Returns an empty state if the file doesn't exist.
func LoadLocal() (Local, error) {
	path, err := localFilePath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(Local), nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	var local Local
	if err := yaml.Unmarshal(data, &local); err != nil {
		return nil, fmt.Errorf("parse state file: %w", err)
	}

	if local == nil {
		local = make(Local)
	}

	return local, nil
}

// SaveLocal writes the local state file.
func SaveLocal(local Local) error {
	path, err := localFilePath()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := yaml.Marshal(local)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}

	return nil
}

// Strings returns the string list stored under key, skipping non-string items.
func (l Local) Strings(key string) []string {
	raw, ok := l[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// SetStrings stores a string list under key.
func (l Local) SetStrings(key string, values []string) {
	raw := make([]interface{}, len(values))
	for i, v := range values {
		raw[i] = v
	}
	l[key] = raw
}

// GetLocalString is a convenience function to get a string value from the
// local state file. Returns "" if the key doesn't exist or is not a string.
func GetLocalString(key string) (string, error) {
	local, err := LoadLocal()
	if err != nil {
		return "", err
	}

	str, _ := local[key].(string)
	return str, nil
}

// SetLocal sets a value in the local state file.
func SetLocal(key string, value interface{}) error {
	local, err := LoadLocal()
	if err != nil {
		return err
	}

	local[key] = value
	return SaveLocal(local)
}
