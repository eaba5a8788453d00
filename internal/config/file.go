// CLAUDE:SUMMARY Defines formwatch config structs and parses YAML configuration files with defaults.
// Package config handles formwatch configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default selectors for the product listing's comment form.
const (
	DefaultFormSelector    = `[data-test="comment-form"]`
	DefaultInputSelector   = `textarea[placeholder]:not([placeholder=""])`
	DefaultProductSelector = "main"
	DefaultContainerID     = "PH-Copilot-Container"
)

// Config is the top-level formwatch configuration.
type Config struct {
	Env     string        `yaml:"env"` // production | development
	Browser BrowserConfig `yaml:"browser"`
	Pages   []PageConfig  `yaml:"pages"`
	Sinks   []SinkConfig  `yaml:"sinks"`
	Store   StoreConfig   `yaml:"store"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	MemoryLimit      int64         `yaml:"memory_limit"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          string        `yaml:"stealth"` // headless | headful
	XvfbDisplay      string        `yaml:"xvfb_display"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
}

// PageConfig defines a page to keep the mount attached to.
type PageConfig struct {
	ID              string      `yaml:"id"`
	URL             string      `yaml:"url"`
	StealthLevel    string      `yaml:"stealth_level"` // 1 | 2
	FormSelector    string      `yaml:"form_selector"`
	InputSelector   string      `yaml:"input_selector"`
	ProductSelector string      `yaml:"product_selector"`
	Mount           MountConfig `yaml:"mount"`
}

// MountConfig describes the injected container.
type MountConfig struct {
	ContainerID string `yaml:"container_id"`
	Template    string `yaml:"template"`
	Style       string `yaml:"style"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook | sqlite
	URL  string `yaml:"url"`  // for webhook
}

// StoreConfig locates the SQLite detection log.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig enables the status API.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Production reports whether the configuration targets production.
func (c *Config) Production() bool { return c.Env == "production" }

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Browser.MemoryLimit <= 0 {
		c.Browser.MemoryLimit = 1 << 30
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	for i := range c.Pages {
		c.Pages[i].ApplyDefaults()
	}
}

// ApplyDefaults fills zero values of a page.
func (p *PageConfig) ApplyDefaults() {
	if p.ID == "" {
		p.ID = p.URL
	}
	if p.StealthLevel == "" {
		p.StealthLevel = "1"
	}
	if p.FormSelector == "" {
		p.FormSelector = DefaultFormSelector
	}
	if p.InputSelector == "" {
		p.InputSelector = DefaultInputSelector
	}
	if p.ProductSelector == "" {
		p.ProductSelector = DefaultProductSelector
	}
	if p.Mount.ContainerID == "" {
		p.Mount.ContainerID = DefaultContainerID
	}
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Pages))
	for _, p := range c.Pages {
		if p.URL == "" {
			return fmt.Errorf("config: page %q has no url", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("config: duplicate page id %q", p.ID)
		}
		seen[p.ID] = true
	}
	for _, s := range c.Sinks {
		switch s.Type {
		case "stdout", "sqlite":
		case "webhook":
			if s.URL == "" {
				return fmt.Errorf("config: webhook sink has no url")
			}
		default:
			return fmt.Errorf("config: unknown sink type %q", s.Type)
		}
	}
	return nil
}
