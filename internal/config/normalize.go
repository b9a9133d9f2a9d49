package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeServer(); err != nil {
		return err
	}
	c.normalizeScheduler()
	c.normalizeFederation()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizeServer() error {
	var err error
	c.Server.Domain = strings.ToLower(strings.TrimSpace(c.Server.Domain))
	if c.Server.DataDir, err = expandPath(c.Server.DataDir); err != nil {
		return fmt.Errorf("server.data_dir: %w", err)
	}
	if c.Server.LogDir, err = expandPath(c.Server.LogDir); err != nil {
		return fmt.Errorf("server.log_dir: %w", err)
	}
	c.Server.APIBind = strings.TrimSpace(c.Server.APIBind)
	if c.Server.APIBind == "" {
		c.Server.APIBind = defaultAPIBind
	}
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if c.Server.APIToken == "" {
		if value, ok := os.LookupEnv("ROOST_API_TOKEN"); ok {
			c.Server.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeScheduler() {
	if c.Scheduler.PollInterval <= 0 {
		c.Scheduler.PollInterval = defaultPollInterval
	}
	if c.Scheduler.ErrorRetryInterval <= 0 {
		c.Scheduler.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Scheduler.LockDuration <= 0 {
		c.Scheduler.LockDuration = defaultLockDuration
	}
	if c.Scheduler.HandlerBudget <= 0 {
		c.Scheduler.HandlerBudget = defaultHandlerBudget
	}
	if c.Scheduler.Concurrency <= 0 {
		c.Scheduler.Concurrency = defaultConcurrency
	}
	if c.Scheduler.BatchSize <= 0 {
		c.Scheduler.BatchSize = defaultBatchSize
	}
	if c.Scheduler.MaxAttempts < 0 {
		c.Scheduler.MaxAttempts = 0
	}
}

func (c *Config) normalizeFederation() {
	if c.Federation.RequestTimeout <= 0 {
		c.Federation.RequestTimeout = defaultFetchTimeout
	}
	if c.Federation.DeliveryTimeout <= 0 {
		c.Federation.DeliveryTimeout = defaultDeliveryTimeout
	}
	c.Federation.UserAgent = strings.TrimSpace(c.Federation.UserAgent)
	if c.Federation.UserAgent == "" {
		c.Federation.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
