package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/convprobe/internal/check"
	"github.com/born-ml/convprobe/internal/tensor"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func testFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.Int("groups", 2, "")
	fs.IntSlice("kernel", []int{3}, "")
	fs.String("dtype", "float32", "")
	fs.Bool("strict", false, "")
	fs.String("log-level", "warn", "")
	fs.String("plot-dir", "", "")
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.File)

	got, err := cfg.Check()
	require.NoError(t, err)
	if diff := cmp.Diff(check.DefaultConfig(), got); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}

	format, err := cfg.Format()
	require.NoError(t, err)
	assert.Equal(t, check.FormatText, format)
	assert.False(t, cfg.Strict)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "probe.yaml", `
batch: 1
in_channels: 6
out_channels: 9
groups: 3
kernel: [3, 2, 3]
volume: [5, 6, 7]
stride: 2
padding: [1, 0, 1]
dtype: float64
seed: 7
output: table
`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, path, cfg.File)

	got, err := cfg.Check()
	require.NoError(t, err)

	want := check.DefaultConfig()
	want.Batch = 1
	want.InChannels = 6
	want.OutChannels = 9
	want.Groups = 3
	want.Kernel = [3]int{3, 2, 3}
	want.Volume = [3]int{5, 6, 7}
	want.Stride = [3]int{2, 2, 2}
	want.Padding = [3]int{1, 0, 1}
	want.DType = tensor.Float64
	want.Seed = 7
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("file config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDefaultFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "convprobe.yaml", "groups: 1\n")
	t.Chdir(dir)

	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "convprobe.yaml", cfg.File)
	assert.Equal(t, 1, cfg.Groups)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.Error(t, err)
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "probe.yaml", "groups: 1\ndtype: float64\nlog_level: info\n")
	t.Setenv("CONVPROBE_GROUPS", "2")
	t.Setenv("CONVPROBE_KERNEL", "3,3,1")
	t.Setenv("CONVPROBE_STRICT", "true")

	// env beats file
	cfg, err := Load(path, testFlags(t))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Groups)
	assert.Equal(t, []int{3, 3, 1}, cfg.Kernel)
	assert.True(t, cfg.Strict)
	assert.Equal(t, "float64", cfg.DType)
	assert.Equal(t, "info", cfg.LogLevel)

	// explicitly set flags beat env; unset flags keep lower layers
	cfg, err = Load(path, testFlags(t, "--groups=1", "--kernel=2", "--log-level=debug", "--config="+path))
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Groups)
	assert.Equal(t, []int{2}, cfg.Kernel)
	assert.Equal(t, "float64", cfg.DType)
	assert.True(t, cfg.Strict)

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", lvl.String())
}

func TestCheckErrors(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		name   string
		mutate func(*Config)
		target error
	}{
		{"two-value kernel", func(c *Config) { c.Kernel = []int{3, 3} }, ErrInvalid},
		{"empty stride", func(c *Config) { c.Stride = nil }, ErrInvalid},
		{"bad dtype", func(c *Config) { c.DType = "int8" }, ErrInvalid},
		{"bad device", func(c *Config) { c.Device = "tpu" }, ErrInvalid},
		{"groups do not divide", func(c *Config) { c.Groups = 3 }, check.ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("", nil)
			require.NoError(t, err)
			tt.mutate(cfg)
			_, err = cfg.Check()
			require.ErrorIs(t, err, tt.target)
		})
	}
}

func TestDeviceIsCarriedThrough(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONVPROBE_DEVICE", "cuda")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	got, err := cfg.Check()
	require.NoError(t, err)
	assert.Equal(t, tensor.CUDA, got.Device)
}

func TestLevelAndFormatErrors(t *testing.T) {
	cfg := &Config{LogLevel: "loud", Output: "xml"}
	_, err := cfg.Level()
	require.ErrorIs(t, err, ErrInvalid)
	_, err = cfg.Format()
	require.ErrorIs(t, err, check.ErrInvalidConfig)
}
