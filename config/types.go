package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Config is the client configuration loaded from cncctl.yml.
type Config struct {
	Controller ControllerConfig `yaml:"controller" toml:"controller" mapstructure:"controller" json:"controller" jsonschema:"description=Connection settings for the machine controller"`
	Toolpath   ToolpathConfig   `yaml:"toolpath" toml:"toolpath" mapstructure:"toolpath" json:"toolpath" jsonschema:"description=Toolpath plan retrieval"`
	Alerts     AlertsConfig     `yaml:"alerts" toml:"alerts" mapstructure:"alerts" json:"alerts" jsonschema:"description=Error alert suppression"`
	Upgrade    UpgradeConfig    `yaml:"upgrade" toml:"upgrade" mapstructure:"upgrade" json:"upgrade" jsonschema:"description=Firmware upgrade checks"`

	// Extensions captures all other top-level keys (logging, ...).
	Extensions map[string]interface{} `yaml:",inline" toml:"-" mapstructure:",remain" json:"-" jsonschema:"-"`

	// Path is the project file the configuration was loaded from, empty
	// when only defaults, the global file and the environment applied.
	Path string `yaml:"-" toml:"-" mapstructure:"-" json:"-" jsonschema:"-"`
}

// ControllerConfig locates the controller's HTTP API and delta channel.
type ControllerConfig struct {
	Host              string        `yaml:"host" toml:"host" mapstructure:"host" json:"host" jsonschema:"description=Controller hostname or IP address"`
	Port              int           `yaml:"port,omitempty" toml:"port,omitempty" mapstructure:"port" json:"port,omitempty" jsonschema:"description=Controller port (0 uses the scheme default),minimum=0,maximum=65535"`
	Secure            bool          `yaml:"secure,omitempty" toml:"secure,omitempty" mapstructure:"secure" json:"secure,omitempty" jsonschema:"description=Use https and wss"`
	WebsocketPath     string        `yaml:"websocket_path" toml:"websocket_path" mapstructure:"websocket_path" json:"websocket_path" jsonschema:"description=Path of the delta channel endpoint"`
	APIPath           string        `yaml:"api_path" toml:"api_path" mapstructure:"api_path" json:"api_path" jsonschema:"description=Prefix of the command API"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval" toml:"reconnect_interval" mapstructure:"reconnect_interval" json:"reconnect_interval" jsonschema:"type=string,description=Delay between reconnect attempts (e.g. 2s)"`
	RequestTimeout    time.Duration `yaml:"request_timeout" toml:"request_timeout" mapstructure:"request_timeout" json:"request_timeout" jsonschema:"type=string,description=Timeout for a single command API request"`
	PingInterval      time.Duration `yaml:"ping_interval" toml:"ping_interval" mapstructure:"ping_interval" json:"ping_interval" jsonschema:"type=string,description=Websocket keepalive interval"`
}

// ToolpathConfig controls re-requests while the controller computes a plan.
type ToolpathConfig struct {
	RetryInitial time.Duration `yaml:"retry_initial" toml:"retry_initial" mapstructure:"retry_initial" json:"retry_initial" jsonschema:"type=string,description=First delay before re-requesting an in-progress plan (0 retries immediately)"`
	RetryMax     time.Duration `yaml:"retry_max" toml:"retry_max" mapstructure:"retry_max" json:"retry_max" jsonschema:"type=string,description=Upper bound of the re-request delay"`
	MaxAttempts  int           `yaml:"max_attempts" toml:"max_attempts" mapstructure:"max_attempts" json:"max_attempts" jsonschema:"description=Maximum re-requests per file (0 is unbounded),minimum=0"`
}

// AlertsConfig controls repeated-error suppression.
type AlertsConfig struct {
	ErrorTimeout time.Duration `yaml:"error_timeout" toml:"error_timeout" mapstructure:"error_timeout" json:"error_timeout" jsonschema:"type=string,description=How long a blocked error class stays suppressed"`
}

// UpgradeConfig points at the latest-version service.
type UpgradeConfig struct {
	URL       string `yaml:"url" toml:"url" mapstructure:"url" json:"url" jsonschema:"description=URL returning the latest firmware version"`
	AutoCheck bool   `yaml:"auto_check" toml:"auto_check" mapstructure:"auto_check" json:"auto_check" jsonschema:"description=Check for upgrades after the device configuration loads"`
}

// Defaults returns the configuration used when no file sets a value.
func Defaults() map[string]interface{} {
	return map[string]interface{}{
		"controller": map[string]interface{}{
			"host":               "bbctrl.local",
			"port":               0,
			"secure":             false,
			"websocket_path":     "/websocket",
			"api_path":           "/api",
			"reconnect_interval": "2s",
			"request_timeout":    "30s",
			"ping_interval":      "20s",
		},
		"toolpath": map[string]interface{}{
			"retry_initial": "250ms",
			"retry_max":     "5s",
			"max_attempts":  0,
		},
		"alerts": map[string]interface{}{
			"error_timeout": "30s",
		},
		"upgrade": map[string]interface{}{
			"url":        "https://buildbotics.com/bbctrl/latest.txt",
			"auto_check": true,
		},
	}
}

// Address returns host[:port].
func (c ControllerConfig) Address() string {
	if c.Port == 0 {
		return c.Host
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// WithHost returns a copy pointing at another host, keeping the port.
func (c ControllerConfig) WithHost(host string) ControllerConfig {
	c.Host = host
	return c
}

// BaseURL returns the scheme and address of the controller.
func (c ControllerConfig) BaseURL() string {
	scheme := "http"
	if c.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, c.Address())
}

// APIURL returns the command API prefix.
func (c ControllerConfig) APIURL() string {
	return c.BaseURL() + "/" + strings.Trim(c.APIPath, "/")
}

// WebsocketURL returns the delta channel endpoint.
func (c ControllerConfig) WebsocketURL() string {
	scheme := "ws"
	if c.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, c.Address(), strings.TrimLeft(c.WebsocketPath, "/"))
}

// UnmarshalExtension decodes a specific extension's configuration from the
// loaded cncctl.yml into the provided target struct. The target must be a pointer.
//
// Example:
//
//	var logCfg logging.Config
//	err := cfg.UnmarshalExtension("logging", &logCfg)
func (c *Config) UnmarshalExtension(key string, target interface{}) error {
	extensionConfig, ok := c.Extensions[key]
	if !ok {
		// It's not an error if the key doesn't exist.
		// The target struct will simply remain zero-valued.
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return fmt.Errorf("failed to create mapstructure decoder: %w", err)
	}

	if err := decoder.Decode(extensionConfig); err != nil {
		return fmt.Errorf("failed to decode extension config for '%s': %w", key, err)
	}

	return nil
}
