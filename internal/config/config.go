// Package config loads project configuration with Viper. Sources, lowest
// precedence first: defaults, the project file, ABIVIS_* environment
// variables.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cockroachdb/errors"
	"github.com/mj1618/abivis/internal/abi"
	"github.com/mj1618/abivis/internal/logging"
	"github.com/mj1618/abivis/internal/toolchain"
	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix, e.g. ABIVIS_TOOLCHAIN.
const EnvPrefix = "ABIVIS"

// FileNames are the project config files searched for, in order.
var FileNames = []string{"abivis.yaml", "abivis.yml", "abivis.toml", "abivis.json"}

// Config is the project configuration.
type Config struct {
	// FlagPrefix prefixes the per-library static/export macros.
	FlagPrefix string `mapstructure:"flag_prefix"`
	// Toolchain is a preset or kind name. Empty means probe the compiler.
	Toolchain string `mapstructure:"toolchain"`
	// Compiler is the C compiler command used for probing.
	Compiler string `mapstructure:"compiler"`
	// CFlags are passed to the compiler and scanned for -D/-U options.
	CFlags string `mapstructure:"cflags"`
	// GCCMinVersion is the first GCC version with visibility support.
	GCCMinVersion string        `mapstructure:"gcc_min_version"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	Libraries     []Library     `mapstructure:"libraries"`

	// File is the config file that was read, if any.
	File string `mapstructure:"-"`
}

// Library is one library's configuration.
type Library struct {
	Name string `mapstructure:"name"`
	// Mode pins the build mode: static, export or import. Empty derives the
	// mode from the flags.
	Mode string `mapstructure:"mode"`
	// Prefix of the macros in the generated header.
	Prefix string `mapstructure:"prefix"`
	// Header is the output path for the generated header.
	Header string `mapstructure:"header"`
}

// PinnedMode returns the configured mode, or nil if the mode is derived.
func (l Library) PinnedMode() (*abi.Mode, error) {
	if l.Mode == "" {
		return nil, nil
	}
	m, err := abi.ParseMode(l.Mode)
	if err != nil {
		return nil, errors.Wrapf(err, "library %s", l.Name)
	}
	return &m, nil
}

// FlagNames returns the macro naming scheme.
func (c *Config) FlagNames() abi.FlagNames {
	return abi.FlagNames{Prefix: c.FlagPrefix}
}

// Library returns the named library's configuration.
func (c *Config) Library(name string) (Library, bool) {
	for _, l := range c.Libraries {
		if l.Name == name {
			return l, true
		}
	}
	return Library{}, false
}

// MinGCC parses GCCMinVersion.
func (c *Config) MinGCC() (*semver.Version, error) {
	v := c.GCCMinVersion
	if v == "" {
		v = toolchain.DefaultMinGCC
	}
	ver, err := semver.NewVersion(v)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid gcc_min_version %q", v)
	}
	return ver, nil
}

// Validate checks names, modes and versions.
func (c *Config) Validate() error {
	if c.FlagPrefix != "" {
		if err := abi.ValidLibraryName(c.FlagPrefix); err != nil {
			return errors.Wrap(err, "flag_prefix")
		}
	}
	if _, err := c.MinGCC(); err != nil {
		return err
	}
	if c.ProbeTimeout < 0 {
		return errors.Newf("probe_timeout must not be negative, got %s", c.ProbeTimeout)
	}
	seen := make(map[string]bool)
	for i, l := range c.Libraries {
		if err := abi.ValidLibraryName(l.Name); err != nil {
			return errors.Wrapf(err, "libraries[%d]", i)
		}
		if seen[l.Name] {
			return errors.Newf("libraries[%d]: duplicate library %q", i, l.Name)
		}
		seen[l.Name] = true
		if _, err := l.PinnedMode(); err != nil {
			return err
		}
		if l.Prefix != "" {
			if err := abi.ValidLibraryName(l.Prefix); err != nil {
				return errors.Wrapf(err, "libraries[%d].prefix", i)
			}
		}
	}
	return nil
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("flag_prefix", abi.DefaultFlagPrefix)
	v.SetDefault("toolchain", "")
	v.SetDefault("compiler", defaultCompiler())
	v.SetDefault("cflags", os.Getenv("CFLAGS"))
	v.SetDefault("gcc_min_version", toolchain.DefaultMinGCC)
	v.SetDefault("probe_timeout", 10*time.Second)
}

func defaultCompiler() string {
	if cc := os.Getenv("CC"); cc != "" {
		return cc
	}
	return "cc"
}

// New returns a Viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load reads configuration. If path is empty the project file is searched
// for from the working directory upwards; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := New()

	if path == "" {
		path = FindProjectFile()
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		logging.Logger.Debugw("loaded config", "file", path)
	}

	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}
	cfg.File = path
	return cfg, nil
}

// LoadWithViper unmarshals and validates the configuration held by v.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.WithHint(err, "check the abivis config file and ABIVIS_* environment variables")
	}
	return &cfg, nil
}

// FindProjectFile walks up from the working directory looking for one of
// FileNames. It returns "" if none is found.
func FindProjectFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		for _, name := range FileNames {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err == nil {
				return p
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
