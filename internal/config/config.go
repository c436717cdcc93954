package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	HTTP    HTTPConfig    `yaml:"http"`
	Engine  EngineConfig  `yaml:"engine"`
	Denoise DenoiseConfig `yaml:"denoise"`
	FFmpeg  FFmpegConfig  `yaml:"ffmpeg"`
	Logging LoggingConfig `yaml:"logging"`
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port         int    `yaml:"port" env:"APP_PORT, overwrite"`
	Address      string `yaml:"address" env:"APP_ADDRESS, overwrite"`
	Enabled      bool   `yaml:"enabled"`
	MaxUploadMB  int    `yaml:"max_upload_mb" env:"APP_MAX_UPLOAD_MB, overwrite"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
}

// EngineConfig locates the RNNoise library and sizes the session pool
type EngineConfig struct {
	LibraryPath    string  `yaml:"library_path" env:"DENOISE_LIBRARY_PATH, overwrite"`
	PoolSize       int     `yaml:"pool_size" env:"DENOISE_POOL_SIZE, overwrite"`
	AcquireTimeout float64 `yaml:"acquire_timeout"` // seconds
	IdleTimeout    int     `yaml:"idle_timeout"`    // seconds, 0 keeps idle sessions
}

// DenoiseConfig contains request defaults for the denoiser
type DenoiseConfig struct {
	VoiceThreshold    float32 `yaml:"voice_threshold" env:"DENOISE_VOICE_THRESHOLD, overwrite"`
	RestoreSourceRate bool    `yaml:"restore_source_rate" env:"DENOISE_RESTORE_SOURCE_RATE, overwrite"`
	OutputFormat      string  `yaml:"output_format"`
}

// FFmpegConfig enables non-WAV containers
type FFmpegConfig struct {
	Enabled bool   `yaml:"enabled" env:"FFMPEG_ENABLED, overwrite"`
	Path    string `yaml:"path" env:"FFMPEG_PATH, overwrite"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL, overwrite"`
	Format string `yaml:"format" env:"LOG_FORMAT, overwrite"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file, applies environment
// overrides and validates the result
func Load(path string) (*Config, error) {
	return LoadWithLookuper(path, envconfig.OsLookuper())
}

// LoadWithLookuper is Load with an explicit source for environment overrides
func LoadWithLookuper(path string, lookuper envconfig.Lookuper) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   &config,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// LoadEnvFile loads variables from a dotenv file into the process
// environment. A missing file is not an error; variables already set win.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Denoise.Validate(); err != nil {
		return fmt.Errorf("denoise config: %w", err)
	}

	if err := c.FFmpeg.Validate(); err != nil {
		return fmt.Errorf("ffmpeg config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	if h.MaxUploadMB < 1 {
		return fmt.Errorf("max_upload_mb must be at least 1, got %d", h.MaxUploadMB)
	}

	if h.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", h.ReadTimeout)
	}

	if h.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", h.WriteTimeout)
	}

	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	if e.LibraryPath == "" {
		return fmt.Errorf("library_path cannot be empty")
	}

	if e.PoolSize < 1 {
		return fmt.Errorf("pool_size must be at least 1, got %d", e.PoolSize)
	}

	if e.AcquireTimeout <= 0 {
		return fmt.Errorf("acquire_timeout must be positive, got %f", e.AcquireTimeout)
	}

	if e.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout cannot be negative, got %d", e.IdleTimeout)
	}

	return nil
}

// Validate validates denoise configuration
func (d *DenoiseConfig) Validate() error {
	if !(d.VoiceThreshold >= 0 && d.VoiceThreshold <= 1) {
		return fmt.Errorf("voice_threshold must be between 0 and 1, got %f", d.VoiceThreshold)
	}

	if d.OutputFormat != "wav" {
		return fmt.Errorf("output_format must be 'wav', got '%s'", d.OutputFormat)
	}

	return nil
}

// Validate validates ffmpeg configuration
func (f *FFmpegConfig) Validate() error {
	if f.Enabled && f.Path == "" {
		return fmt.Errorf("path cannot be empty when ffmpeg is enabled")
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output is stdout, stderr or a file path
	return nil
}

// GetReadTimeout returns the HTTP read timeout as a time.Duration
func (h *HTTPConfig) GetReadTimeout() time.Duration {
	return time.Duration(h.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a time.Duration
func (h *HTTPConfig) GetWriteTimeout() time.Duration {
	return time.Duration(h.WriteTimeout) * time.Second
}

// GetMaxUploadBytes returns the upload limit in bytes
func (h *HTTPConfig) GetMaxUploadBytes() int64 {
	return int64(h.MaxUploadMB) << 20
}

// GetAcquireTimeout returns the pool acquire timeout as a time.Duration
func (e *EngineConfig) GetAcquireTimeout() time.Duration {
	return time.Duration(e.AcquireTimeout * float64(time.Second))
}

// GetIdleTimeout returns the idle session timeout as a time.Duration
func (e *EngineConfig) GetIdleTimeout() time.Duration {
	return time.Duration(e.IdleTimeout) * time.Second
}
