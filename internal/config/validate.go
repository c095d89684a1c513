package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

const (
	DefaultListenerErrorInterval = 10 * time.Second
	DefaultCountdownInterval     = time.Second
	DefaultBusyTimeout           = 5 * time.Second
)

var (
	ErrUnknownSourceDriver  = errors.New("config: unknown source driver")
	ErrUnknownStorageDriver = errors.New("config: unknown storage driver")
	ErrSourcePathRequired   = errors.New("config: source.path required")
	ErrStorageRequired      = errors.New("config: source driver \"storage\" needs an enabled storage section")
)

// Validate checks the fields that can be checked without touching the filesystem.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config: nil")
	}
	var errs []error

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	if cfg.Scheduler.PreviewSize < 0 {
		errs = append(errs, errors.New("scheduler.preview_size: must be >= 0"))
	}
	if _, err := ParseDurationField("scheduler.listener_error_interval", cfg.Scheduler.ListenerErrorInterval); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("countdown.interval", cfg.Countdown.Interval); err != nil {
		errs = append(errs, err)
	}

	switch d := strings.TrimSpace(cfg.Source.Driver); d {
	case SourceFile, SourceICal:
		if strings.TrimSpace(cfg.Source.Path) == "" {
			errs = append(errs, ErrSourcePathRequired)
		}
	case SourceStorage:
		if !cfg.StorageEnabled() {
			errs = append(errs, ErrStorageRequired)
		}
	default:
		errs = append(errs, fmt.Errorf("%w %q", ErrUnknownSourceDriver, d))
	}

	if s := cfg.Storage; s != nil {
		switch strings.ToLower(strings.TrimSpace(s.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			errs = append(errs, fmt.Errorf("%w %q", ErrUnknownStorageDriver, s.Driver))
		}
		if _, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout); err != nil {
			errs = append(errs, err)
		}
	}
	if d := cfg.Diagnostics; d.Enabled && strings.TrimSpace(d.Addr) != "" {
		if _, _, err := net.SplitHostPort(strings.TrimSpace(d.Addr)); err != nil {
			errs = append(errs, fmt.Errorf("diagnostics.addr: %w", err))
		}
	}
	return errors.Join(errs...)
}

// StorageEnabled reports whether a storage driver other than none is configured.
func (c *Config) StorageEnabled() bool {
	if c == nil || c.Storage == nil {
		return false
	}
	d := strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	return d != "" && d != "none"
}

// ListenerErrorIntervalOrDefault returns the effective throttle interval.
func (c SchedulerConfig) ListenerErrorIntervalOrDefault() time.Duration {
	d, err := ParseDurationOrDefault("scheduler.listener_error_interval", c.ListenerErrorInterval, DefaultListenerErrorInterval)
	if err != nil {
		return DefaultListenerErrorInterval
	}
	return d
}

// IntervalOrDefault returns the effective countdown tick cadence.
func (c CountdownConfig) IntervalOrDefault() time.Duration {
	d, err := ParseDurationOrDefault("countdown.interval", c.Interval, DefaultCountdownInterval)
	if err != nil {
		return DefaultCountdownInterval
	}
	return d
}
