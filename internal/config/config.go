package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

type AppConfig struct {
	Port            int           `toml:"port"`
	Endpoint        string        `toml:"endpoint"`
	Workers         int           `toml:"workers"`
	FrameCount      int           `toml:"frame_count"`
	TickInterval    time.Duration `toml:"-"`
	TickIntervalMs  int           `toml:"tick_interval_ms"`
	Debug           bool          `toml:"debug"`
	DebugAssetEvery time.Duration `toml:"-"`
	ModelPath       string        `toml:"model_path"`
	OrtLibraryPath  string        `toml:"ort_library_path"`
	TensorSide      int           `toml:"tensor_side"`
	ModelInputA     string        `toml:"model_input_a"`
	ModelInputB     string        `toml:"model_input_b"`
	ModelOutput     string        `toml:"model_output"`
	StorePath       string        `toml:"store_path"`
	ExportDir       string        `toml:"export_dir"`
	IngestLogEvery  int           `toml:"ingest_log_every"`
	IngestFallback  bool          `toml:"ingest_fallback"`
}

// Defaults returns the configuration used when no file and no flags are set.
func Defaults() AppConfig {
	return AppConfig{
		Port:            8888,
		Endpoint:        "tcp://localhost:31001",
		Workers:         4,
		FrameCount:      9,
		TickInterval:    16 * time.Millisecond,
		DebugAssetEvery: 10 * time.Second,
		TensorSide:      256,
		ModelInputA:     "frame0",
		ModelInputB:     "frame1",
		ModelOutput:     "midpoint",
		ExportDir:       "exports",
		IngestLogEvery:  100,
		IngestFallback:  true,
	}
}

// Load overlays values from a TOML file onto cfg. Missing file is an error;
// an empty path leaves cfg untouched.
func Load(path string, cfg *AppConfig) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.TickIntervalMs > 0 {
		cfg.TickInterval = time.Duration(cfg.TickIntervalMs) * time.Millisecond
	}
	return nil
}

func (c AppConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Workers < 1 {
		return errors.New("workers must be at least 1")
	}
	switch c.FrameCount {
	case 4, 9, 16:
	default:
		return fmt.Errorf("frame_count must be 4, 9 or 16, got %d", c.FrameCount)
	}
	if c.TensorSide < 1 {
		return fmt.Errorf("invalid tensor_side %d", c.TensorSide)
	}
	if c.TickInterval <= 0 {
		return errors.New("tick interval must be positive")
	}
	return nil
}
