package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr        string   `json:"addr" yaml:"addr" toml:"addr"`
	PluginsDir  string   `json:"plugins_dir" yaml:"plugins_dir" toml:"plugins_dir"`
	RuntimeExe  string   `json:"runtime_exe" yaml:"runtime_exe" toml:"runtime_exe"`
	RuntimeArgs []string `json:"runtime_args" yaml:"runtime_args" toml:"runtime_args"`

	ShmRegion       string `json:"shm_region" yaml:"shm_region" toml:"shm_region"`
	SpectrumBins    int    `json:"spectrum_bins" yaml:"spectrum_bins" toml:"spectrum_bins"`
	WaveformSamples int    `json:"waveform_samples" yaml:"waveform_samples" toml:"waveform_samples"`

	MaxRestarts        int `json:"max_restarts" yaml:"max_restarts" toml:"max_restarts"`
	RestartCooldownMS  int `json:"restart_cooldown_ms" yaml:"restart_cooldown_ms" toml:"restart_cooldown_ms"`
	RoundTripTimeoutMS int `json:"round_trip_timeout_ms" yaml:"round_trip_timeout_ms" toml:"round_trip_timeout_ms"`

	CORSAllowedOrigins []string `json:"cors_allowed_origins" yaml:"cors_allowed_origins" toml:"cors_allowed_origins"`
	LogLevel           string   `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil { return cfg, err }
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil { return cfg, err }
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil { return cfg, err }
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
