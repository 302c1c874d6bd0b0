// Package config loads convprobe settings from defaults, an optional YAML
// file, CONVPROBE_ environment variables and command-line flags.
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

	"github.com/born-ml/convprobe/internal/check"
	"github.com/born-ml/convprobe/internal/tensor"
)

// EnvPrefix prefixes every environment override, e.g. CONVPROBE_GROUPS=2.
const EnvPrefix = "CONVPROBE_"

// DefaultFiles are looked up in the working directory when no file is given.
var DefaultFiles = []string{"convprobe.yaml", "convprobe.yml"}

// ErrInvalid is returned for values that cannot be turned into a check.Config.
var ErrInvalid = errors.New("invalid configuration")

// Config holds every setting the CLI understands. Triples (kernel, volume,
// stride, padding, dilation) accept one value for all three axes or three
// values in D, H, W order.
type Config struct {
	Batch       int   `koanf:"batch"`
	InChannels  int   `koanf:"in_channels"`
	OutChannels int   `koanf:"out_channels"`
	Groups      int   `koanf:"groups"`
	Kernel      []int `koanf:"kernel"`
	Volume      []int `koanf:"volume"`
	Stride      []int `koanf:"stride"`
	Padding     []int `koanf:"padding"`
	Dilation    []int `koanf:"dilation"`
	Bias        bool  `koanf:"bias"`

	DType      string  `koanf:"dtype"`
	Device     string  `koanf:"device"`
	Seed       int64   `koanf:"seed"`
	InputScale float64 `koanf:"input_scale"`
	AbsTol     float64 `koanf:"abs_tol"`
	RelTol     float64 `koanf:"rel_tol"`
	Workers    int     `koanf:"workers"`

	Output   string `koanf:"output"`
	Strict   bool   `koanf:"strict"`
	PlotDir  string `koanf:"plot_dir"`
	DumpDir  string `koanf:"dump_dir"`
	LogLevel string `koanf:"log_level"`

	// File is the config file that was read, if any.
	File string `koanf:"-"`
}

// Defaults returns the default key/value map, mirroring check.DefaultConfig.
func Defaults() map[string]any {
	d := check.DefaultConfig()
	return map[string]any{
		"batch":        d.Batch,
		"in_channels":  d.InChannels,
		"out_channels": d.OutChannels,
		"groups":       d.Groups,
		"kernel":       d.Kernel[:],
		"volume":       d.Volume[:],
		"stride":       d.Stride[:],
		"padding":      d.Padding[:],
		"dilation":     d.Dilation[:],
		"bias":         d.Bias,
		"dtype":        d.DType.String(),
		"device":       d.Device.String(),
		"seed":         d.Seed,
		"input_scale":  d.InputScale,
		"abs_tol":      d.AbsTol,
		"rel_tol":      d.RelTol,
		"workers":      d.Workers,
		"output":       string(check.FormatText),
		"strict":       false,
		"plot_dir":     "",
		"dump_dir":     "",
		"log_level":    "warn",
	}
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range DefaultFiles {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load reads configuration with precedence flags > env > file > defaults.
// Only flags that were explicitly set override lower layers. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// CONVPROBE_IN_CHANNELS -> in_channels
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = used
	return &cfg, nil
}

func triple(name string, v []int) ([3]int, error) {
	switch len(v) {
	case 1:
		return [3]int{v[0], v[0], v[0]}, nil
	case 3:
		return [3]int{v[0], v[1], v[2]}, nil
	default:
		return [3]int{}, fmt.Errorf("%w: %s needs 1 or 3 values, got %v", ErrInvalid, name, v)
	}
}

// Check converts c into a validated check.Config.
func (c *Config) Check() (check.Config, error) {
	out := check.Config{
		Batch:       c.Batch,
		InChannels:  c.InChannels,
		OutChannels: c.OutChannels,
		Groups:      c.Groups,
		Bias:        c.Bias,
		Seed:        c.Seed,
		InputScale:  c.InputScale,
		AbsTol:      c.AbsTol,
		RelTol:      c.RelTol,
		Workers:     c.Workers,
	}

	triples := []struct {
		name string
		in   []int
		dst  *[3]int
	}{
		{"kernel", c.Kernel, &out.Kernel},
		{"volume", c.Volume, &out.Volume},
		{"stride", c.Stride, &out.Stride},
		{"padding", c.Padding, &out.Padding},
		{"dilation", c.Dilation, &out.Dilation},
	}
	for _, tr := range triples {
		v, err := triple(tr.name, tr.in)
		if err != nil {
			return check.Config{}, err
		}
		*tr.dst = v
	}

	var err error
	if out.DType, err = tensor.ParseDataType(c.DType); err != nil {
		return check.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if out.Device, err = tensor.ParseDevice(c.Device); err != nil {
		return check.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := out.Validate(); err != nil {
		return check.Config{}, err
	}
	return out, nil
}

// Format returns the parsed output format.
func (c *Config) Format() (check.Format, error) {
	return check.ParseFormat(c.Output)
}

// Level returns the parsed log level.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", ErrInvalid, c.LogLevel)
	}
	return lvl, nil
}
