// Package config handles daemon configuration file management.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/austinkregel/local-media/arrangerd/internal/analysis"
)

// Config represents the daemon configuration
type Config struct {
	// SocketPath overrides the IPC socket location (default: runtime dir)
	SocketPath string `json:"socketPath,omitempty"`

	// Audio settings
	Audio AudioConfig `json:"audio"`

	// Analysis loop tuning
	Analysis AnalysisConfig `json:"analysis"`
}

// AudioConfig contains audio-related settings
type AudioConfig struct {
	// SampleRate for audio output (default: 44100)
	SampleRate int `json:"sampleRate"`

	// Channels for audio output (default: 2)
	Channels int `json:"channels"`

	// BufferSize in milliseconds (default: 100)
	BufferSizeMs int `json:"bufferSizeMs"`

	// Volume level 0.0 - 1.0 (default: 1.0)
	DefaultVolume float64 `json:"defaultVolume"`
}

// AnalysisConfig contains analysis loop settings
type AnalysisConfig struct {
	// FrameRate of the analysis loop (default: 60)
	FrameRate int `json:"frameRate"`

	// PublishIntervalMs throttles snapshot publication (default: 100)
	PublishIntervalMs int `json:"publishIntervalMs"`

	// ArrangementIntervalSec is the playback time between arrangement rebuilds (default: 5)
	ArrangementIntervalSec float64 `json:"arrangementIntervalSec"`

	// ZeroStreakLimit silent ticks before the loop halts (default: 50)
	ZeroStreakLimit int `json:"zeroStreakLimit"`

	// SilenceBackoffMs waited after a silent tick, negative disables (default: 1000)
	SilenceBackoffMs int `json:"silenceBackoffMs"`

	// HistorySize frames kept for characteristics (default: 20)
	HistorySize int `json:"historySize"`

	// MinArrangementFrames before the first arrangement (default: 5)
	MinArrangementFrames int `json:"minArrangementFrames"`
}

// EngineConfig converts the settings to engine tuning
func (a AnalysisConfig) EngineConfig() analysis.EngineConfig {
	return analysis.EngineConfig{
		FrameRate:            a.FrameRate,
		HistorySize:          a.HistorySize,
		PublishInterval:      time.Duration(a.PublishIntervalMs) * time.Millisecond,
		ArrangementInterval:  time.Duration(a.ArrangementIntervalSec * float64(time.Second)),
		MinArrangementFrames: a.MinArrangementFrames,
		ZeroStreakLimit:      a.ZeroStreakLimit,
		SilenceBackoff:       time.Duration(a.SilenceBackoffMs) * time.Millisecond,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			SampleRate:    44100,
			Channels:      2,
			BufferSizeMs:  100,
			DefaultVolume: 1.0,
		},
		Analysis: AnalysisConfig{
			FrameRate:              analysis.DefaultFrameRate,
			PublishIntervalMs:      int(analysis.DefaultPublishInterval / time.Millisecond),
			ArrangementIntervalSec: analysis.DefaultArrangementInterval.Seconds(),
			ZeroStreakLimit:        analysis.DefaultZeroStreakLimit,
			SilenceBackoffMs:       int(analysis.DefaultSilenceBackoff / time.Millisecond),
			HistorySize:            analysis.DefaultHistorySize,
			MinArrangementFrames:   analysis.DefaultMinArrangementFrames,
		},
	}
}

// Validate rejects settings the daemon cannot run with
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sampleRate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels < 1 || c.Audio.Channels > 2 {
		return fmt.Errorf("audio.channels must be 1 or 2, got %d", c.Audio.Channels)
	}
	if c.Audio.DefaultVolume < 0 || c.Audio.DefaultVolume > 1 {
		return fmt.Errorf("audio.defaultVolume must be between 0.0 and 1.0, got %f", c.Audio.DefaultVolume)
	}
	if c.Analysis.FrameRate < 0 {
		return fmt.Errorf("analysis.frameRate must not be negative, got %d", c.Analysis.FrameRate)
	}
	return nil
}

// Manager handles loading and saving configuration
type Manager struct {
	mu         sync.RWMutex
	configDir  string
	configPath string
	config     *Config
}

// NewManager creates a new configuration manager
func NewManager(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configPath: filepath.Join(configDir, "config.json"),
		config:     DefaultConfig(),
	}
}

// Load reads the configuration from disk, writing the defaults on first run
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		m.config = DefaultConfig()
		return m.saveLocked()
	}

	data, err := os.ReadFile(m.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	// Missing keys keep their defaults
	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", m.configPath, err)
	}

	m.config = config
	return nil
}

// Save writes the configuration to disk
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(m.configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c := *m.config
	return &c
}

// GetPath returns the config file path
func (m *Manager) GetPath() string {
	return m.configPath
}

// Update validates, replaces and saves the configuration
func (m *Manager) Update(config *Config) error {
	if err := config.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
	return m.saveLocked()
}
