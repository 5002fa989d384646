// Package settings holds the tracking core's process-wide configuration:
// channel/satellite table sizes and the live loop-parameter pair. It mirrors
// the teacher's telemetry.Config/persistentConfig split (internal/telemetry/
// hub.go) - a JSON-friendly Config plus a sidecar file kept separate from the
// in-memory defaults - generalized from SDR sampling/gain knobs to the
// tracking core's own settings (spec.md 6).
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/gnsstrack/core/internal/loopparams"
)

// Defaults for the channel/satellite table sizes (spec.md 6).
const (
	DefaultNChannels = 12
	DefaultMaxSats   = 32
)

// Settings is the tracking core's validated runtime configuration.
type Settings struct {
	NChannels int `json:"n_channels"`
	MaxSats   int `json:"max_sats"`

	LoopParamsSpec string `json:"loop_params"`

	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"`
}

// Default returns the settings the tracking core boots with absent any
// sidecar file (spec.md 6 default values).
func Default() Settings {
	return Settings{
		NChannels:      DefaultNChannels,
		MaxSats:        DefaultMaxSats,
		LoopParamsSpec: loopparams.DefaultSpec,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// Validate checks structural bounds and parses LoopParamsSpec, returning the
// parsed stage pair so callers don't have to parse it twice.
func (s Settings) Validate() ([2]loopparams.Stage, error) {
	if s.NChannels <= 0 {
		return [2]loopparams.Stage{}, fmt.Errorf("settings: n_channels must be positive, got %d", s.NChannels)
	}
	if s.MaxSats <= 0 {
		return [2]loopparams.Stage{}, fmt.Errorf("settings: max_sats must be positive, got %d", s.MaxSats)
	}
	stages, err := loopparams.Parse(s.LoopParamsSpec)
	if err != nil {
		return [2]loopparams.Stage{}, fmt.Errorf("settings: %w", err)
	}
	return stages, nil
}

// Load reads settings from path, falling back to Default() if the file does
// not exist (grounded on telemetry.loadPersistentConfig's fs.ErrNotExist
// fallback pattern).
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return Settings{}, err
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Settings{}, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save persists settings as indented JSON, mirroring
// telemetry.savePersistentConfig.
func Save(path string, s Settings) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
