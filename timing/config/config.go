// Package config holds the configuration document of a simulation: the
// parameters of every cache and of the memory controller.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sarchlab/gpucachesim/timing/mem"
	"github.com/sarchlab/gpucachesim/timing/rop"
	"github.com/sarchlab/gpucachesim/timing/texture"
)

// Config is the root configuration document.
type Config struct {
	// ColorCache configures the color write unit cache.
	ColorCache rop.Config `json:"color_cache"`

	// ZCache configures the depth/stencil test unit cache.
	ZCache rop.Config `json:"z_cache"`

	// TextureCache configures the texture unit cache.
	TextureCache texture.Config `json:"texture_cache"`

	// Memory configures the memory controller.
	Memory mem.ControllerConfig `json:"memory"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ColorCache:   rop.DefaultColorConfig(),
		ZCache:       rop.DefaultZConfig(),
		TextureCache: texture.DefaultConfig(),
		Memory:       mem.DefaultControllerConfig(),
	}
}

// Load reads a configuration from a JSON file. Fields missing from the file
// keep their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks every section of the configuration.
func (c *Config) Validate() error {
	if err := c.ColorCache.Validate(); err != nil {
		return fmt.Errorf("color_cache: %w", err)
	}
	if err := c.ZCache.Validate(); err != nil {
		return fmt.Errorf("z_cache: %w", err)
	}
	if err := c.TextureCache.Validate(); err != nil {
		return fmt.Errorf("texture_cache: %w", err)
	}
	if err := c.Memory.Validate(); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
