// Package config loads engine settings for the visiondemo CLI and other
// hosts that prefer a config file over code.
//
// Values are layered, lowest to highest priority: defaults, a YAML file,
// VISION_ environment variables, then explicitly set command-line flags.
//
//	device: gpu
//	fusion: auto
//	border: mirror
//	workers: 4
//	tile:
//	  group_cols: 16
//	  group_rows: 4
//
// Nested keys are reached from the environment with a double underscore:
// VISION_TILE__GROUP_COLS=16.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/gogpu/vision"
	"github.com/gogpu/vision/cpu"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "VISION_"

// Device names accepted by the device key.
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceGPU  = "gpu"
)

// ErrInvalid is returned when a loaded value fails validation.
var ErrInvalid = errors.New("config: invalid value")

// TileConfig mirrors vision.TileSpec.
type TileConfig struct {
	GroupCols int `koanf:"group_cols"`
	GroupRows int `koanf:"group_rows"`
	TileCols  int `koanf:"tile_cols"`
	TileRows  int `koanf:"tile_rows"`
}

// Config holds all engine settings.
type Config struct {
	Device      string     `koanf:"device"`
	Fusion      string     `koanf:"fusion"`
	Border      string     `koanf:"border"`
	Workers     int        `koanf:"workers"`
	BufferReuse int        `koanf:"buffer_reuse"`
	LogLevel    string     `koanf:"log_level"`
	Tile        TileConfig `koanf:"tile"`

	// File is the config file that was read, empty if none.
	File string `koanf:"-"`
}

// defaults returns the flattened default values.
func defaults() map[string]any {
	t := vision.DefaultTileSpec()
	return map[string]any{
		"device":          DeviceAuto,
		"fusion":          vision.FuseAuto.String(),
		"border":          vision.BorderClamp.String(),
		"workers":         0,
		"buffer_reuse":    0,
		"log_level":       "warn",
		"tile.group_cols": t.GroupCols,
		"tile.group_rows": t.GroupRows,
		"tile.tile_cols":  t.TileCols,
		"tile.tile_rows":  t.TileRows,
	}
}

// flagKeys maps flag names that do not follow the kebab-to-snake rule.
var flagKeys = map[string]string{
	"group-cols": "tile.group_cols",
	"group-rows": "tile.group_rows",
	"tile-cols":  "tile.tile_cols",
	"tile-rows":  "tile.tile_rows",
}

// findConfigFile returns explicit, or vision.yaml / vision.yml in the
// working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"vision.yaml", "vision.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load reads configuration from cfgFile, the environment and flags.
// Only flags that were explicitly set override lower layers; flags may be
// nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// VISION_TILE__GROUP_COLS -> tile.group_cols
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				key = strings.ReplaceAll(f.Name, "-", "_")
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// BindFlags registers the flags Load understands on fs.
func BindFlags(fs *pflag.FlagSet) {
	d := vision.DefaultTileSpec()
	fs.String("device", DeviceAuto, "device: auto, cpu or gpu")
	fs.String("fusion", "auto", "fusion mode: auto, conservative, none or all")
	fs.String("border", "clamp", "border policy: clamp, zero, wrap or mirror")
	fs.Int("workers", 0, "cpu worker goroutines (0 = GOMAXPROCS)")
	fs.Int("buffer-reuse", 0, "released cpu buffers kept per size (0 = unbounded)")
	fs.String("log-level", "warn", "log level: debug, info, warn or error")
	fs.Int("group-cols", d.GroupCols, "compute work-group columns")
	fs.Int("group-rows", d.GroupRows, "compute work-group rows")
	fs.Int("tile-cols", d.TileCols, "cpu tile columns")
	fs.Int("tile-rows", d.TileRows, "cpu tile rows")
}

// Validate checks every field.
func (c *Config) Validate() error {
	switch c.Device {
	case DeviceAuto, DeviceCPU, DeviceGPU:
	default:
		return fmt.Errorf("%w: device %q", ErrInvalid, c.Device)
	}
	if _, err := vision.ParseFusionMode(c.Fusion); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := vision.ParseBorderPolicy(c.Border); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d", ErrInvalid, c.Workers)
	}
	if c.BufferReuse < 0 {
		return fmt.Errorf("%w: buffer_reuse %d", ErrInvalid, c.BufferReuse)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelWarn, fmt.Errorf("%w: log_level %q", ErrInvalid, c.LogLevel)
	}
	return l, nil
}

// TileSpec returns the configured work partition hints.
func (c *Config) TileSpec() vision.TileSpec {
	return vision.TileSpec{
		GroupCols: c.Tile.GroupCols,
		GroupRows: c.Tile.GroupRows,
		TileCols:  c.Tile.TileCols,
		TileRows:  c.Tile.TileRows,
	}
}

// RunOptions converts the configuration to cycle options. The device is
// left to the caller.
func (c *Config) RunOptions() ([]vision.RunOption, error) {
	fusion, err := vision.ParseFusionMode(c.Fusion)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	border, err := vision.ParseBorderPolicy(c.Border)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return []vision.RunOption{
		vision.WithFusion(fusion),
		vision.WithBorder(border),
		vision.WithTileSpec(c.TileSpec()),
	}, nil
}

// CPUOptions returns the software device options.
func (c *Config) CPUOptions() []cpu.Option {
	return []cpu.Option{
		cpu.WithWorkers(c.Workers),
		cpu.WithBufferReuse(c.BufferReuse),
	}
}
