package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const appName = "section-outliner"

// Defaults, matching the autosave and edit-mode packages
const (
	DefaultLeaveDelay        = 300 * time.Millisecond
	DefaultTypingDelay       = 1500 * time.Millisecond
	DefaultRetryDelay        = 5 * time.Second
	DefaultStaleVersionHours = 24
	DefaultConfirmWindow     = 1200 * time.Millisecond
	DefaultHintInterval      = 3 * time.Second
	DefaultCacheBackend      = "file"
)

// Duration is a time.Duration written as "300ms" or "1.5s" in TOML
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// AutosaveConfig controls when and how edits are saved
type AutosaveConfig struct {
	LeaveDelay        Duration `toml:"leave_delay"`
	TypingDelay       Duration `toml:"typing_delay"`
	RetryDelay        Duration `toml:"retry_delay"`
	StaleVersionHours int      `toml:"stale_version_hours"`
}

// EditorConfig controls edit-mode behaviour
type EditorConfig struct {
	MergeConfirmWindow Duration `toml:"merge_confirm_window"`
	HintInterval       Duration `toml:"hint_interval"`
}

// CacheConfig selects where drafts and queued saves are kept
type CacheConfig struct {
	Backend string `toml:"backend"`
	// Dir defaults to ~/.local/share/section-outliner/cache
	Dir string `toml:"dir"`
}

// RemoteConfig is the document server
type RemoteConfig struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
}

// Config holds application configuration
type Config struct {
	Autosave AutosaveConfig    `toml:"autosave"`
	Editor   EditorConfig      `toml:"editor"`
	Cache    CacheConfig       `toml:"cache"`
	Remote   RemoteConfig      `toml:"remote"`
	Settings map[string]string `toml:"settings"`

	// Session settings (not persisted to TOML, overrides persisted settings)
	sessionSettings map[string]string
}

// Load loads the config file from the standard location
func Load() (*Config, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return defaultConfig(), nil // Return default if can't find config path
	}

	return LoadFromFile(configPath)
}

// LoadFromFile loads config from a specific file
func LoadFromFile(filePath string) (*Config, error) {
	// If file doesn't exist, return default config
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return defaultConfig(), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filePath, err)
	}

	// Initialize persisted settings if not present
	if config.Settings == nil {
		config.Settings = make(map[string]string)
	}

	return config, nil
}

// Validate checks values that would otherwise fail much later
func (c *Config) Validate() error {
	durations := map[string]Duration{
		"autosave.leave_delay":        c.Autosave.LeaveDelay,
		"autosave.typing_delay":       c.Autosave.TypingDelay,
		"autosave.retry_delay":        c.Autosave.RetryDelay,
		"editor.merge_confirm_window": c.Editor.MergeConfirmWindow,
		"editor.hint_interval":        c.Editor.HintInterval,
	}
	for key, d := range durations {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}
	if c.Autosave.StaleVersionHours < 0 {
		return fmt.Errorf("autosave.stale_version_hours must not be negative")
	}
	switch c.Cache.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}
	return nil
}

// getConfigPath returns the path to the config file
func getConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

// defaultConfig returns the default configuration
func defaultConfig() *Config {
	return &Config{
		Autosave: AutosaveConfig{
			LeaveDelay:        Duration(DefaultLeaveDelay),
			TypingDelay:       Duration(DefaultTypingDelay),
			RetryDelay:        Duration(DefaultRetryDelay),
			StaleVersionHours: DefaultStaleVersionHours,
		},
		Editor: EditorConfig{
			MergeConfirmWindow: Duration(DefaultConfirmWindow),
			HintInterval:       Duration(DefaultHintInterval),
		},
		Cache:           CacheConfig{Backend: DefaultCacheBackend},
		Settings:        make(map[string]string),
		sessionSettings: make(map[string]string),
	}
}

// GetConfigDir returns the config directory
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	configDir := filepath.Join(home, ".config", appName)
	return configDir, nil
}

// Set sets a session configuration value
func (c *Config) Set(key, value string) {
	if c.sessionSettings == nil {
		c.sessionSettings = make(map[string]string)
	}
	c.sessionSettings[key] = value
}

// Get retrieves a configuration value, checking session settings first (which override persisted settings)
// Returns empty string if not found in either source
func (c *Config) Get(key string) string {
	if c.sessionSettings != nil {
		if val, ok := c.sessionSettings[key]; ok {
			return val
		}
	}

	if c.Settings != nil {
		if val, ok := c.Settings[key]; ok {
			return val
		}
	}

	return ""
}

// GetAll returns all configuration values (both persisted and session)
// Session settings override persisted settings with the same key
func (c *Config) GetAll() map[string]string {
	result := make(map[string]string)

	for k, v := range c.Settings {
		result[k] = v
	}
	for k, v := range c.sessionSettings {
		result[k] = v
	}

	return result
}

// Save persists the configuration to the standard location
// Note: This only persists the Settings map, not session settings
func (c *Config) Save() error {
	configPath, err := getConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}
	return c.SaveToFile(configPath)
}

// SaveToFile persists the configuration to filePath
func (c *Config) SaveToFile(filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
