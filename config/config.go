// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package config provides configuration management for the haptic bridge.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soothill/haptic-bridge/pkg/util"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Intiface      IntifaceConfig      `yaml:"intiface"`
	Device        DeviceConfig        `yaml:"device"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// IntifaceConfig holds the connection settings for the Intiface server
type IntifaceConfig struct {
	URL             string        `yaml:"url"`
	ClientName      string        `yaml:"client_name"`
	ScanTimeout     time.Duration `yaml:"scan_timeout"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
	Discover        bool          `yaml:"discover"`
	DiscoverTimeout time.Duration `yaml:"discover_timeout"`
}

// DeviceConfig holds default command parameters
type DeviceConfig struct {
	DefaultSpeed    float64       `yaml:"default_speed"`
	DefaultPosition float64       `yaml:"default_position"`
	DefaultDuration time.Duration `yaml:"default_duration"`
}

// NotificationsConfig holds alerting settings
type NotificationsConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides. A missing file is not an error; defaults apply.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := util.ReadFileSafely(path)
	if err == nil {
		if unmarshalErr := yaml.Unmarshal(data, &cfg); unmarshalErr != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", unmarshalErr)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.setDefaults()

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvironmentOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvironmentOverrides() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		p, parseErr := strconv.Atoi(port)
		if parseErr == nil {
			c.Server.Port = p
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse SERVER_PORT '%s': %v\n", port, parseErr)
		}
	}
	if wsURL := os.Getenv("INTIFACE_URL"); wsURL != "" {
		c.Intiface.URL = wsURL
	}
	if name := os.Getenv("INTIFACE_CLIENT_NAME"); name != "" {
		c.Intiface.ClientName = name
	}
	if timeout := os.Getenv("INTIFACE_SCAN_TIMEOUT"); timeout != "" {
		duration, parseErr := time.ParseDuration(timeout)
		if parseErr == nil {
			c.Intiface.ScanTimeout = duration
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse INTIFACE_SCAN_TIMEOUT '%s': %v\n", timeout, parseErr)
		}
	}
	if delay := os.Getenv("INTIFACE_RETRY_DELAY"); delay != "" {
		duration, parseErr := time.ParseDuration(delay)
		if parseErr == nil {
			c.Intiface.RetryDelay = duration
		} else {
			fmt.Fprintf(os.Stderr, "Warning: Failed to parse INTIFACE_RETRY_DELAY '%s': %v\n", delay, parseErr)
		}
	}
	if webhook := os.Getenv("SLACK_WEBHOOK_URL"); webhook != "" {
		c.Notifications.SlackWebhookURL = webhook
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// setDefaults sets default values for configuration fields if not provided
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3069
	}
	if c.Intiface.URL == "" && !c.Intiface.Discover {
		c.Intiface.URL = "ws://127.0.0.1:12345"
	}
	if c.Intiface.ClientName == "" {
		c.Intiface.ClientName = "haptic-bridge"
	}
	if c.Intiface.ScanTimeout == 0 {
		c.Intiface.ScanTimeout = 2 * time.Second
	}
	if c.Intiface.ConnectTimeout == 0 {
		c.Intiface.ConnectTimeout = 5 * time.Second
	}
	if c.Intiface.RetryDelay == 0 {
		c.Intiface.RetryDelay = 5 * time.Second
	}
	if c.Intiface.DiscoverTimeout == 0 {
		c.Intiface.DiscoverTimeout = 5 * time.Second
	}
	if c.Device.DefaultSpeed == 0 {
		c.Device.DefaultSpeed = 0.5
	}
	if c.Device.DefaultPosition == 0 {
		c.Device.DefaultPosition = 0.5
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if validateErr := c.validateServer(); validateErr != nil {
		return validateErr
	}

	if validateErr := c.validateIntiface(); validateErr != nil {
		return validateErr
	}

	if validateErr := c.validateDevice(); validateErr != nil {
		return validateErr
	}

	if validateErr := c.validateLogging(); validateErr != nil {
		return validateErr
	}

	return nil
}

// validateServer validates the HTTP listener configuration
func (c *Config) validateServer() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	return nil
}

// validateIntiface validates the Intiface connection configuration
func (c *Config) validateIntiface() error {
	if c.Intiface.URL == "" {
		if !c.Intiface.Discover {
			return fmt.Errorf("intiface.url is required when intiface.discover is disabled")
		}
	} else {
		parsedURL, parseErr := url.Parse(c.Intiface.URL)
		if parseErr != nil {
			return fmt.Errorf("intiface.url is not a valid URL: %w", parseErr)
		}
		if parsedURL.Scheme != "ws" && parsedURL.Scheme != "wss" {
			return fmt.Errorf("intiface.url must use the ws or wss scheme (got %s)", parsedURL.Scheme)
		}
	}

	if c.Intiface.ScanTimeout < 100*time.Millisecond {
		return fmt.Errorf("intiface.scan_timeout must be at least 100ms")
	}
	if c.Intiface.ScanTimeout > time.Minute {
		return fmt.Errorf("intiface.scan_timeout must not exceed 1 minute")
	}
	if c.Intiface.RetryDelay < time.Second {
		return fmt.Errorf("intiface.retry_delay must be at least 1 second")
	}
	if c.Intiface.ConnectTimeout < time.Second {
		return fmt.Errorf("intiface.connect_timeout must be at least 1 second")
	}

	return nil
}

// validateDevice validates the default command parameters
func (c *Config) validateDevice() error {
	if c.Device.DefaultSpeed < 0 || c.Device.DefaultSpeed > 1 {
		return fmt.Errorf("device.default_speed must be between 0.0 and 1.0")
	}
	if c.Device.DefaultPosition < 0 || c.Device.DefaultPosition > 1 {
		return fmt.Errorf("device.default_position must be between 0.0 and 1.0")
	}
	if c.Device.DefaultDuration < 0 {
		return fmt.Errorf("device.default_duration must not be negative")
	}
	return nil
}

// validateLogging validates the logging configuration
func (c *Config) validateLogging() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true,
		"warning": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error, fatal, panic")
	}

	return nil
}
