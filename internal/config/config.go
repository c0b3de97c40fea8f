// Package config resolves the sentinel's configuration from defaults,
// an optional YAML file and HOSTSENTINEL_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/edgecli/hostsentinel/internal/logging"
)

const (
	// ConfigDirName is the name of the config directory
	ConfigDirName = ".hostsentinel"
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.yaml"
	// EnvPrefix prefixes every environment variable
	EnvPrefix = "HOSTSENTINEL_"
)

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// SamplerConfig holds the cadence and threshold of one sampler
type SamplerConfig struct {
	Interval  time.Duration `yaml:"interval" env:"INTERVAL"`
	Threshold float64       `yaml:"threshold" env:"THRESHOLD"`
}

// CPUConfig adds the measurement window to the processor sampler
type CPUConfig struct {
	Interval  time.Duration `yaml:"interval" env:"INTERVAL"`
	Threshold float64       `yaml:"threshold" env:"THRESHOLD"`
	// Window is how long each load measurement averages over.
	// Zero means the same as Interval.
	Window time.Duration `yaml:"window,omitempty" env:"WINDOW"`
}

// EffectiveWindow returns the measurement window to use
func (c CPUConfig) EffectiveWindow() time.Duration {
	if c.Window == 0 {
		return c.Interval
	}
	return c.Window
}

// Config holds the fully resolved sentinel configuration
type Config struct {
	CPU     CPUConfig     `yaml:"cpu" envPrefix:"CPU_"`
	Memory  SamplerConfig `yaml:"memory" envPrefix:"MEMORY_"`
	Disk    SamplerConfig `yaml:"disk" envPrefix:"DISK_"`
	Process SamplerConfig `yaml:"process" envPrefix:"PROCESS_"`

	// IgnoreList excludes mount points containing any of these substrings
	IgnoreList []string `yaml:"ignore_list" env:"IGNORE_LIST" envSeparator:","`

	LogFile     string `yaml:"log_file" env:"LOG_FILE"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
	MetricsAddr string `yaml:"metrics_addr,omitempty" env:"METRICS_ADDR"`
	NoColor     bool   `yaml:"no_color" env:"NO_COLOR"`
}

// Default returns the configuration the sentinel runs with when nothing
// is overridden
func Default() *Config {
	return &Config{
		CPU:        CPUConfig{Interval: 5 * time.Second, Threshold: 10},
		Memory:     SamplerConfig{Interval: 5 * time.Second, Threshold: 1},
		Disk:       SamplerConfig{Interval: 5 * time.Second, Threshold: 1},
		Process:    SamplerConfig{Interval: 5 * time.Second, Threshold: 100},
		IgnoreList: []string{"snap"},
		LogFile:    "system_health.log",
		LogLevel:   "info",
	}
}

// Paths holds commonly used paths
type Paths struct {
	// ConfigDir is ~/.hostsentinel
	ConfigDir string
	// ConfigFile is ~/.hostsentinel/config.yaml
	ConfigFile string
}

// GetPaths returns the standard paths
func GetPaths() (*Paths, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ConfigDirName)
	return &Paths{
		ConfigDir:  configDir,
		ConfigFile: filepath.Join(configDir, ConfigFileName),
	}, nil
}

// Load layers defaults, the YAML file at path and the environment.
// An empty path falls back to ~/.hostsentinel/config.yaml when it exists.
// The result is not validated; callers apply flag overrides first.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if paths, err := GetPaths(); err == nil {
			if _, err := os.Stat(paths.ConfigFile); err == nil {
				path = paths.ConfigFile
			}
		}
	}

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate reports every problem at once, wrapped in ErrInvalidConfig
func (c *Config) Validate() error {
	var errs []error

	checkInterval := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s.interval must be positive, got %s", name, d))
		}
	}
	checkPercent := func(name string, v float64) {
		if math.IsNaN(v) || v < 0 || v > 100 {
			errs = append(errs, fmt.Errorf("%s.threshold must be a percentage between 0 and 100, got %v", name, v))
		}
	}

	checkInterval("cpu", c.CPU.Interval)
	checkInterval("memory", c.Memory.Interval)
	checkInterval("disk", c.Disk.Interval)
	checkInterval("process", c.Process.Interval)

	checkPercent("cpu", c.CPU.Threshold)
	checkPercent("memory", c.Memory.Threshold)
	checkPercent("disk", c.Disk.Threshold)
	if math.IsNaN(c.Process.Threshold) || math.IsInf(c.Process.Threshold, 0) || c.Process.Threshold < 0 {
		errs = append(errs, fmt.Errorf("process.threshold must be a non-negative count, got %v", c.Process.Threshold))
	}

	if c.CPU.Window < 0 {
		errs = append(errs, fmt.Errorf("cpu.window must not be negative, got %s", c.CPU.Window))
	} else if c.CPU.Interval > 0 && c.CPU.EffectiveWindow() > c.CPU.Interval {
		errs = append(errs, fmt.Errorf("cpu.window %s exceeds cpu.interval %s", c.CPU.Window, c.CPU.Interval))
	}

	for i, s := range c.IgnoreList {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, fmt.Errorf("ignore_list[%d] is empty and would ignore every mount point", i))
		}
	}

	if strings.TrimSpace(c.LogFile) == "" {
		errs = append(errs, errors.New("log_file is required"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// YAML renders the configuration in config file form
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal config: %w", err)
	}
	return string(data), nil
}
