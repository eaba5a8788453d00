package formwatch

import "github.com/hazyhaar/formwatch/internal/config"

// Config is the top-level formwatch configuration.
type Config = config.Config

// PageConfig defines one page kept under watch.
type PageConfig = config.PageConfig

// MountConfig describes the injected container.
type MountConfig = config.MountConfig

// LoadConfig reads a YAML configuration file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	return config.LoadFile(path)
}
