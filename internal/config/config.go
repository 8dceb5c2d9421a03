// Package config loads upsync's tool configuration.
//
// Sources, lowest to highest precedence: built-in defaults, the project's
// upsync.toml (or the file named by --config), UPSYNC_* environment
// variables, and command-line flags bound with BindFlags.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/goplus/upsync/internal/env"
	"github.com/goplus/upsync/internal/fault"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// FileName is the project configuration file, read from the root.
	FileName = "upsync.toml"
	// EnvPrefix prefixes environment overrides, e.g. UPSYNC_CACHE.
	EnvPrefix = "UPSYNC"
)

// Config is the resolved tool configuration. Paths are absolute.
type Config struct {
	Root     string `mapstructure:"root"`
	Upstream string `mapstructure:"upstream"`
	Cache    string `mapstructure:"cache"`
	Git      string `mapstructure:"git"`
	CMake    string `mapstructure:"cmake"`
	Make     string `mapstructure:"make"`
	LogLevel string `mapstructure:"log_level"`
	Verbose  bool   `mapstructure:"verbose"`
	Fetch    Fetch  `mapstructure:"fetch"`

	// File is the configuration file that was read, if any.
	File string `mapstructure:"-"`
}

// Fetch configures network access.
type Fetch struct {
	// Timeout bounds a whole run; zero means no limit.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Root:     ".",
		Upstream: "upstream",
		Git:      "git",
		CMake:    "cmake",
		Make:     "make",
		LogLevel: "info",
	}
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"root":      "root",
	"upstream":  "upstream",
	"cache":     "cache",
	"git":       "git",
	"log-level": "log_level",
	"verbose":   "verbose",
	"timeout":   "fetch.timeout",
}

// Loader reads configuration into a private viper instance.
type Loader struct {
	v     *viper.Viper
	flags *pflag.FlagSet
}

// NewLoader returns a Loader with defaults and environment lookup set up.
func NewLoader() *Loader {
	v := viper.New()
	d := DefaultConfig()
	v.SetDefault("root", d.Root)
	v.SetDefault("upstream", d.Upstream)
	v.SetDefault("cache", "")
	v.SetDefault("git", d.Git)
	v.SetDefault("cmake", d.CMake)
	v.SetDefault("make", d.Make)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("fetch.timeout", d.Fetch.Timeout)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// BindFlags binds every known flag present in flags. Flags take
// precedence only when set on the command line.
func (l *Loader) BindFlags(flags *pflag.FlagSet) error {
	l.flags = flags
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil {
			if err := l.v.BindPFlag(key, f); err != nil {
				return fault.New(fault.Config, "bind flag", name, err)
			}
		}
	}
	return nil
}

// Load resolves the configuration. file names an explicit configuration
// file, which must exist; when empty, upsync.toml in the root is read if
// present.
func (l *Loader) Load(file string) (*Config, error) {
	root, err := filepath.Abs(l.v.GetString("root"))
	if err != nil {
		return nil, fault.New(fault.Config, "resolve root", l.v.GetString("root"), err)
	}

	if file == "" {
		candidate := filepath.Join(root, FileName)
		if _, err := os.Stat(candidate); err == nil {
			file = candidate
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fault.New(fault.Filesystem, "stat", candidate, err)
		}
	}
	if file != "" {
		l.v.SetConfigFile(file)
		l.v.SetConfigType("toml")
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fault.New(fault.Config, "read config", file, err)
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fault.New(fault.Config, "decode config", file, err)
	}
	cfg.File = file
	// A root taken from the file is relative to the file itself.
	if file != "" && l.rootFromFile() && !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(filepath.Dir(file), cfg.Root)
	}
	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	if _, err := cfg.Level(); err != nil {
		return nil, err
	}
	if cfg.Fetch.Timeout < 0 {
		return nil, fault.Errorf(fault.Config, "check config", file, "fetch.timeout must not be negative")
	}
	return cfg, nil
}

// rootFromFile reports whether the root value comes from the configuration
// file rather than from a set flag or the environment. Viper ignores empty
// environment values, so they do not count.
func (l *Loader) rootFromFile() bool {
	if !l.v.InConfig("root") {
		return false
	}
	if l.flags != nil {
		if f := l.flags.Lookup("root"); f != nil && f.Changed {
			return false
		}
	}
	return os.Getenv(EnvPrefix+"_ROOT") == ""
}

func (c *Config) resolve() error {
	root, err := filepath.Abs(c.Root)
	if err != nil {
		return fault.New(fault.Config, "resolve root", c.Root, err)
	}
	c.Root = root
	if !filepath.IsAbs(c.Upstream) {
		c.Upstream = filepath.Join(root, c.Upstream)
	}
	if c.Cache == "" {
		if c.Cache, err = env.WorkDir(); err != nil {
			return fault.New(fault.Config, "resolve cache", "", err)
		}
	} else if c.Cache, err = filepath.Abs(c.Cache); err != nil {
		return fault.New(fault.Config, "resolve cache", c.Cache, err)
	}
	return nil
}

// Level returns the log level, debug when Verbose is set.
func (c *Config) Level() (log.Level, error) {
	if c.Verbose {
		return log.DebugLevel, nil
	}
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return 0, fault.New(fault.Config, "check config", "log_level", err)
	}
	return lvl, nil
}
