package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/vision"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vision.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DeviceAuto, cfg.Device)
	assert.Equal(t, "auto", cfg.Fusion)
	assert.Equal(t, "clamp", cfg.Border)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Empty(t, cfg.File)
	assert.Equal(t, vision.DefaultTileSpec(), cfg.TileSpec())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `device: cpu
fusion: none
border: mirror
workers: 3
tile:
  group_cols: 16
  tile_rows: 32
`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.File)
	assert.Equal(t, DeviceCPU, cfg.Device)
	assert.Equal(t, "none", cfg.Fusion)
	assert.Equal(t, "mirror", cfg.Border)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, vision.TileSpec{GroupCols: 16, GroupRows: 8, TileCols: 64, TileRows: 32}, cfg.TileSpec())
}

func TestLoadFindsFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vision.yml"), []byte("border: wrap\n"), 0600))
	t.Chdir(dir)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "vision.yml", cfg.File)
	assert.Equal(t, "wrap", cfg.Border)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoadEnvPrecedenceOverFile(t *testing.T) {
	path := writeConfig(t, "fusion: none\ntile:\n  group_cols: 16\n")
	t.Setenv("VISION_FUSION", "all")
	t.Setenv("VISION_TILE__GROUP_COLS", "4")

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "all", cfg.Fusion, "env var should override config file")
	assert.Equal(t, 4, cfg.Tile.GroupCols)
}

func TestLoadFlagPrecedence(t *testing.T) {
	path := writeConfig(t, "border: zero\nworkers: 2\n")
	t.Setenv("VISION_BORDER", "wrap")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	require.NoError(t, flags.Set("border", "mirror"))
	require.NoError(t, flags.Set("group-rows", "2"))

	cfg, err := Load(path, flags)
	require.NoError(t, err)

	assert.Equal(t, "mirror", cfg.Border, "flag value should override config file and env var")
	assert.Equal(t, 2, cfg.Tile.GroupRows)
	assert.Equal(t, 2, cfg.Workers, "unset flag must not override the file")
}

func TestLoadFlagNotSetUsesEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("VISION_DEVICE", "gpu")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)

	cfg, err := Load("", flags)
	require.NoError(t, err)
	assert.Equal(t, DeviceGPU, cfg.Device)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{Device: DeviceAuto, Fusion: "auto", Border: "clamp", LogLevel: "info"}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"device", func(c *Config) { c.Device = "tpu" }},
		{"fusion", func(c *Config) { c.Fusion = "greedy" }},
		{"border", func(c *Config) { c.Border = "reflect" }},
		{"log level", func(c *Config) { c.LogLevel = "loud" }},
		{"workers", func(c *Config) { c.Workers = -1 }},
		{"buffer reuse", func(c *Config) { c.BufferReuse = -2 }},
	}

	ok := base()
	require.NoError(t, ok.Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	path := writeConfig(t, "fusion: eager\n")
	_, err := Load(path, nil)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLevel(t *testing.T) {
	c := Config{LogLevel: "debug"}
	l, err := c.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, l)
}

func TestRunOptions(t *testing.T) {
	c := Config{Fusion: "all", Border: "zero", Tile: TileConfig{GroupCols: 4}}
	opts, err := c.RunOptions()
	require.NoError(t, err)
	assert.Len(t, opts, 3)

	c.Border = "sideways"
	_, err = c.RunOptions()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCPUOptions(t *testing.T) {
	c := Config{Workers: 2, BufferReuse: 1}
	assert.Len(t, c.CPUOptions(), 2)
}
