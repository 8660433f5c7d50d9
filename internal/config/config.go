// Package config handles Lectern configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./lectern.yaml, ~/.config/lectern/lectern.yaml, /etc/lectern/lectern.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"lectern.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "lectern", "lectern.yaml"))
	}

	paths = append(paths, "/etc/lectern/lectern.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Lectern configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Sheet     SheetConfig     `yaml:"sheet"`
	Subtitles SubtitlesConfig `yaml:"subtitles"`
	DataDir   string          `yaml:"data_dir"`
	DBPath    string          `yaml:"db_path"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`    // Default: 8321
}

// SheetConfig defines where the lecture spreadsheet comes from.
type SheetConfig struct {
	// CSVPath is the local path of the lectures CSV file.
	CSVPath string `yaml:"csv_path"`
	// CSVURL, when set, is fetched on startup and on reload and written
	// to CSVPath. Leave empty to use a purely local CSV.
	CSVURL string `yaml:"csv_url"`
	// InsecureSkipVerify disables TLS verification for the CSV fetch.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// SubtitlesConfig defines subtitle acquisition settings.
type SubtitlesConfig struct {
	// YtDlpPath is the path to the yt-dlp binary. If empty, the binary
	// is located via exec.LookPath.
	YtDlpPath string `yaml:"yt_dlp_path"`
	// CookiesFile is an optional path to a Netscape-format cookie file
	// for accessing auth-required content.
	CookiesFile string `yaml:"cookies_file"`
	// Languages is the subtitle language priority order.
	// Default: en, en-US, en-GB.
	Languages []string `yaml:"languages"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8321
	}
	if c.DataDir == "" {
		c.DataDir = "."
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "lecture_subtitles.db")
	}
	if c.Sheet.CSVPath == "" {
		c.Sheet.CSVPath = filepath.Join(c.DataDir, "lectures.csv")
	}
	if len(c.Subtitles.Languages) == 0 {
		c.Subtitles.Languages = []string{"en", "en-US", "en-GB"}
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		return fmt.Errorf("listen.port %d out of range", c.Listen.Port)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}
