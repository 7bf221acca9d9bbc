package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	validLogFormats = []string{"text", "json"}
	validOutputs    = []string{"auto", "text", "markdown", "json"}
)

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	if c.FlowsDir == "" {
		errs = append(errs, errors.New("flows_dir is required"))
	}
	if c.StatePath == "" {
		errs = append(errs, errors.New("state_path is required"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if !oneOf(c.Log.Format, validLogFormats) {
		errs = append(errs, fmt.Errorf("log.format must be one of %s, got %q", strings.Join(validLogFormats, "|"), c.Log.Format))
	}
	if !oneOf(c.Output, validOutputs) {
		errs = append(errs, fmt.Errorf("output must be one of %s, got %q", strings.Join(validOutputs, "|"), c.Output))
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		errs = append(errs, fmt.Errorf("web.port out of range: %d", c.Web.Port))
	}
	if c.Twitter.RateLimit < 0 {
		errs = append(errs, errors.New("twitter.rate_limit must not be negative"))
	}
	if c.Geo.RateLimit < 0 {
		errs = append(errs, errors.New("geo.rate_limit must not be negative"))
	}
	return errors.Join(errs...)
}

// ParseLevel maps a log.level value to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log.level %q", s)
	}
	return level, nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}
