package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/grovetools/cncctl/errors"
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validateController(&c.Controller); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid controller configuration")
	}

	if err := validateToolpath(&c.Toolpath); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "invalid toolpath configuration")
	}

	if c.Alerts.ErrorTimeout < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "alerts.error_timeout cannot be negative").
			WithDetail("error_timeout", c.Alerts.ErrorTimeout.String())
	}

	if c.Upgrade.URL != "" {
		u, err := url.Parse(c.Upgrade.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("invalid upgrade.url: %s", c.Upgrade.URL)).
				WithDetail("url", c.Upgrade.URL)
		}
	}

	return nil
}

func validateController(c *ControllerConfig) error {
	if strings.TrimSpace(c.Host) == "" {
		return errors.New(errors.ErrCodeConfigValidation, "controller.host cannot be empty")
	}
	if strings.ContainsAny(c.Host, " /") {
		return errors.New(errors.ErrCodeConfigValidation, "controller.host must be a bare hostname").
			WithDetail("host", c.Host)
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("controller.port out of range: %d", c.Port)).
			WithDetail("port", c.Port)
	}
	for field, path := range map[string]string{
		"controller.websocket_path": c.WebsocketPath,
		"controller.api_path":       c.APIPath,
	} {
		if !strings.HasPrefix(path, "/") {
			return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("%s must start with '/'", field)).
				WithDetail("path", path)
		}
	}
	if err := positive("controller.reconnect_interval", c.ReconnectInterval); err != nil {
		return err
	}
	if err := positive("controller.request_timeout", c.RequestTimeout); err != nil {
		return err
	}
	return nil
}

func validateToolpath(t *ToolpathConfig) error {
	if t.RetryInitial < 0 || t.RetryMax < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "toolpath retry delays cannot be negative")
	}
	if t.RetryInitial > 0 && t.RetryMax > 0 && t.RetryMax < t.RetryInitial {
		return errors.New(errors.ErrCodeConfigValidation, "toolpath.retry_max must not be lower than toolpath.retry_initial").
			WithDetail("retry_initial", t.RetryInitial.String()).
			WithDetail("retry_max", t.RetryMax.String())
	}
	if t.MaxAttempts < 0 {
		return errors.New(errors.ErrCodeConfigValidation, "toolpath.max_attempts cannot be negative")
	}
	return nil
}

func positive(field string, d time.Duration) error {
	if d <= 0 {
		return errors.New(errors.ErrCodeConfigValidation, fmt.Sprintf("%s must be positive", field)).
			WithDetail(field, d.String())
	}
	return nil
}
