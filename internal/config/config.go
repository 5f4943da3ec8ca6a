package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// CameraConfig selects and parameterizes the capture device
type CameraConfig struct {
	// Backend names the capture backend; "sim" is the built-in synthetic
	// device used when no real sensor is attached.
	Backend    string  `json:"backend" yaml:"backend"`
	Width      int     `json:"width" yaml:"width"`
	Height     int     `json:"height" yaml:"height"`
	Rate       float64 `json:"rate" yaml:"rate"`
	ExposureMS float64 `json:"exposure_ms" yaml:"exposure_ms"`
	Gain       float64 `json:"gain" yaml:"gain"`
}

// PipelineConfig tunes the acquisition/dispatch stages
type PipelineConfig struct {
	QueueCapacity     int     `json:"queue_capacity" yaml:"queue_capacity"`
	FPSWindow         int     `json:"fps_window" yaml:"fps_window"`
	TargetDisplayRate float64 `json:"target_display_rate" yaml:"target_display_rate"`
	ReadTimeoutSec    float64 `json:"read_timeout_sec" yaml:"read_timeout_sec"`
	DisplayWaitMS     int     `json:"display_wait_ms" yaml:"display_wait_ms"`
}

// PreviewConfig tunes the MJPEG preview output
type PreviewConfig struct {
	Width   int `json:"width" yaml:"width"`
	Quality int `json:"quality" yaml:"quality"`
}

// Config represents the application configuration
type Config struct {
	Camera     CameraConfig   `json:"camera" yaml:"camera"`
	Pipeline   PipelineConfig `json:"pipeline" yaml:"pipeline"`
	Preview    PreviewConfig  `json:"preview" yaml:"preview"`
	ServerPort int            `json:"server_port" yaml:"server_port"`
	LogLevel   string         `json:"log_level" yaml:"log_level"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Camera: CameraConfig{
			Backend:    "sim",
			Width:      640,
			Height:     480,
			Rate:       100,
			ExposureMS: 1,
			Gain:       0,
		},
		Pipeline: PipelineConfig{
			QueueCapacity:     64,
			FPSWindow:         10,
			TargetDisplayRate: 30,
			ReadTimeoutSec:    5,
			DisplayWaitMS:     100,
		},
		Preview: PreviewConfig{
			Width:   480,
			Quality: 80,
		},
		ServerPort: 8080,
		LogLevel:   "info",
	}
}

// Manager handles configuration loading and persistence
type Manager struct {
	configPath string
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a configuration manager. With an empty configFile the
// default path under the user config directory is used; a missing file is
// not an error, defaults apply.
func NewManager(configFile string) (*Manager, error) {
	path := configFile
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, ".config", "trackpipe", "config.yaml")
	}

	m := &Manager{
		configPath: path,
		config:     Default(),
	}

	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", m.configPath, err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// Save writes the current configuration to the config file
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(m.config)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(m.configPath), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(m.configPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.config
}

// GetConfigPath returns the path of the backing config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// SetPort overrides the server port
func (m *Manager) SetPort(port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.ServerPort = port
}

// SetLogLevel overrides the log level
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.LogLevel = level
}
