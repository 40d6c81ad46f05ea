// Package config loads the optional defaults file the CLI consults
// before flags are applied: appliance address and identity, the scan
// job shape, and logging verbosity.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk defaults file. Every field is optional; the CLI
// falls back to its own built-in defaults for anything left unset.
type Config struct {
	Appliance ApplianceConfig `yaml:"appliance"`
	Scan      ScanConfig      `yaml:"scan"`
	Runtime   RuntimeConfig   `yaml:"runtime"`
}

// ApplianceConfig addresses and authenticates against a specific
// appliance.
type ApplianceConfig struct {
	IP             string `yaml:"ip"`
	Identity       string `yaml:"identity"`
	TimeoutSeconds *int   `yaml:"timeout_seconds"`
}

// ScanConfig mirrors the job shape accepted by the scan subcommand.
type ScanConfig struct {
	OutputDir        string `yaml:"output_dir"`
	Color            string `yaml:"color"`
	Quality          string `yaml:"quality"`
	Duplex           *bool  `yaml:"duplex"`
	PaperSize        string `yaml:"paper_size"`
	BleedThrough     *bool  `yaml:"bleed_through"`
	BWDensity        *int   `yaml:"bw_density"`
	MultiFeed        *bool  `yaml:"multi_feed"`
	BlankPageRemoval *bool  `yaml:"blank_page_removal"`
	WaitButton       *bool  `yaml:"wait_button"`
}

// RuntimeConfig holds process-wide defaults.
type RuntimeConfig struct {
	Verbose *bool `yaml:"verbose"`
}

// Load reads, parses, resolves relative paths in, and validates the
// defaults file at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	// An empty file holds no YAML document; Decode reports that as io.EOF.
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	cfg.resolvePaths(path)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the fields that are present for internal consistency.
// It does not require any field to be set.
func (c *Config) Validate() error {
	if c.Appliance.IP != "" && net.ParseIP(c.Appliance.IP) == nil {
		return fmt.Errorf("config.appliance.ip is not a valid IP address: %q", c.Appliance.IP)
	}
	if c.Appliance.TimeoutSeconds != nil && *c.Appliance.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.appliance.timeout_seconds must be > 0")
	}
	if c.Scan.BWDensity != nil && (*c.Scan.BWDensity < 0 || *c.Scan.BWDensity > 10) {
		return fmt.Errorf("config.scan.bw_density must be 0..10")
	}
	return nil
}

// resolvePaths rewrites relative paths in the config to be relative to
// the config file's own directory rather than the process cwd.
func (c *Config) resolvePaths(configPath string) {
	configDir := filepath.Dir(configPath)
	c.Scan.OutputDir = resolvePath(configDir, c.Scan.OutputDir)
}

func resolvePath(baseDir, path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Clean(filepath.Join(baseDir, trimmed))
}
