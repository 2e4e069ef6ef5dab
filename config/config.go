package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/grovetools/cncctl/errors"
	"github.com/grovetools/cncctl/pkg/paths"
	"github.com/grovetools/cncctl/pkg/tree"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

var configNames = []string{
	"cncctl.yml",
	"cncctl.yaml",
	"cncctl.toml",
	".cncctl.yml",
	".cncctl.yaml",
}

var overrideNames = []string{
	"cncctl.override.yml",
	"cncctl.override.yaml",
	".cncctl.override.yml",
}

// Load reads a single configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	layer, err := readLayer(path)
	if err != nil {
		return nil, err
	}

	merged := tree.Map{}
	mergeLayer(merged, Defaults())
	mergeLayer(merged, layer)

	cfg, err := finalize(merged)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	return cfg, nil
}

// LoadDefault finds and loads the configuration with hierarchical merging:
// 1. Built-in defaults
// 2. Global config (~/.config/cncctl/cncctl.yml)
// 3. Project config (cncctl.yml, searched upward from the working directory)
// 4. Local override (cncctl.override.yml)
// 5. CNCCTL_HOST / CNCCTL_PORT
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}

	return LoadFrom(cwd)
}

// LoadFrom loads configuration with hierarchical merging starting from the given directory
func LoadFrom(startDir string) (*Config, error) {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return LoadFromWithLogger(startDir, logger)
}

// LoadFromWithLogger loads configuration with hierarchical merging and logging.
// A missing project file is not an error: the client can run from defaults
// and environment alone.
func LoadFromWithLogger(startDir string, logger *logrus.Logger) (*Config, error) {
	merged := tree.Map{}
	mergeLayer(merged, Defaults())

	// 1. Global config (optional)
	if globalPath := getXDGConfigPath(); globalPath != "" {
		if _, err := os.Stat(globalPath); err == nil {
			logger.WithField("path", globalPath).Debug("Loading global configuration")
			layer, err := readLayer(globalPath)
			if err != nil {
				logger.WithError(err).Warn("Failed to parse global configuration, continuing without it")
			} else {
				mergeLayer(merged, layer)
			}
		}
	}

	// 2. Project config
	projectPath, err := FindConfigFile(startDir)
	if err != nil && !errors.Is(err, errors.ErrCodeConfigNotFound) {
		return nil, err
	}
	if projectPath != "" {
		logger.WithField("path", projectPath).Debug("Loading project configuration")
		loadDotEnv(filepath.Dir(projectPath), logger)

		layer, err := readLayer(projectPath)
		if err != nil {
			return nil, err
		}
		mergeLayer(merged, layer)

		// 3. Overrides next to the project file
		projectDir := filepath.Dir(projectPath)
		for _, name := range overrideNames {
			overridePath := filepath.Join(projectDir, name)
			if _, err := os.Stat(overridePath); err != nil {
				continue
			}
			logger.WithField("path", overridePath).Debug("Loading local override configuration")
			layer, err := readLayer(overridePath)
			if err != nil {
				logger.WithError(err).Warn("Failed to parse override file, skipping")
				continue
			}
			mergeLayer(merged, layer)
		}
	} else {
		loadDotEnv(startDir, logger)
	}

	cfg, err := finalize(merged)
	if err != nil {
		return nil, err
	}
	cfg.Path = projectPath

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		if data, err := yaml.Marshal(cfg); err == nil {
			logger.Debugf("Merged configuration:\n%s", string(data))
		}
	}

	return cfg, nil
}

// LoadFromBytes parses YAML configuration on top of the defaults.
func LoadFromBytes(data []byte) (*Config, error) {
	layer, err := parseLayer(data, ".yml")
	if err != nil {
		return nil, err
	}

	merged := tree.Map{}
	mergeLayer(merged, Defaults())
	mergeLayer(merged, layer)
	return finalize(merged)
}

// finalize validates the merged raw layers against the schema, decodes them,
// applies environment overrides and runs semantic validation.
func finalize(merged tree.Map) (*Config, error) {
	raw := merged.ToAny()

	validator, err := NewSchemaValidator()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create validator")
	}
	if err := validator.Validate(raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigValidation, "schema validation failed")
	}

	var cfg Config
	if err := decode(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to decode configuration")
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func decode(raw map[string]interface{}, cfg *Config) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return err
	}
	return decoder.Decode(raw)
}

func applyEnvOverrides(cfg *Config) {
	if host := os.Getenv("CNCCTL_HOST"); host != "" {
		cfg.Controller.Host = host
	}
	if port := os.Getenv("CNCCTL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Controller.Port = p
		}
	}
}

// readLayer reads, expands and parses one configuration file.
func readLayer(path string) (map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	layer, err := parseLayer(data, filepath.Ext(path))
	if err != nil {
		if ctlErr, ok := err.(*errors.CtlError); ok {
			return nil, ctlErr.WithDetail("path", path)
		}
		return nil, err
	}
	return layer, nil
}

func parseLayer(data []byte, ext string) (map[string]interface{}, error) {
	expanded := []byte(expandEnvVars(string(data)))

	layer := make(map[string]interface{})
	switch strings.ToLower(ext) {
	case ".toml":
		if err := toml.Unmarshal(expanded, &layer); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse TOML configuration")
		}
	default:
		if err := yaml.Unmarshal(expanded, &layer); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse YAML configuration")
		}
	}
	return layer, nil
}

// loadDotEnv loads a .env file next to the project config so ${VAR}
// references can be satisfied without exporting them. Existing environment
// variables win.
func loadDotEnv(dir string, logger *logrus.Logger) {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		logger.WithError(err).Warn("Failed to load .env file")
		return
	}
	logger.WithField("path", path).Debug("Loaded environment file")
}

// FindConfigFile searches for cncctl configuration files from the current
// directory up to the filesystem root.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// expandEnvVars replaces ${VAR} with environment variable values
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		// Handle default values: ${VAR:-default}
		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// getXDGConfigPath returns the global cncctl.yml location.
func getXDGConfigPath() string {
	return paths.ConfigFile()
}
