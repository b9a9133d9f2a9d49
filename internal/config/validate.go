package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateFederation(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Domain == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/roost/config.toml"
		}
		return fmt.Errorf("server.domain is required. Set ROOST_DOMAIN-style config in %s (create with 'roost config init')", defaultPath)
	}
	if strings.ContainsAny(c.Server.Domain, "/ \t") {
		return fmt.Errorf("server.domain %q must be a bare hostname", c.Server.Domain)
	}
	if c.Server.DataDir == "" {
		return errors.New("server.data_dir must be set")
	}
	if c.Server.LogDir == "" {
		return errors.New("server.log_dir must be set")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.LockDuration <= c.Scheduler.HandlerBudget {
		return fmt.Errorf("scheduler.lock_duration (%ds) must exceed scheduler.handler_budget (%ds)",
			c.Scheduler.LockDuration, c.Scheduler.HandlerBudget)
	}
	if c.Scheduler.Concurrency > 256 {
		return errors.New("scheduler.concurrency must be 256 or less")
	}
	return nil
}

func (c *Config) validateFederation() error {
	if c.Federation.UserAgent == "" {
		return errors.New("federation.user_agent must be set")
	}
	return nil
}
