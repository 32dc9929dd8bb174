// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 DSNGuard Contributors

// Package config loads dsnguard settings from a YAML file and command-line
// flags. Flags that were set explicitly win over the file, which wins over
// flag defaults.
package config

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/dsnguard/dsnguard/internal/audit"
	"github.com/dsnguard/dsnguard/internal/dsn"
	"github.com/dsnguard/dsnguard/internal/logging"
	"github.com/dsnguard/dsnguard/internal/observability"
	"github.com/dsnguard/dsnguard/internal/xdg"
)

// Config is the full dsnguard configuration.
type Config struct {
	Env        EnvConfig      `koanf:"env"`
	Defaults   DefaultsConfig `koanf:"defaults"`
	LocalHosts []string       `koanf:"local_hosts"`
	Audit      AuditConfig    `koanf:"audit"`
	Log        LogConfig      `koanf:"log"`
}

// EnvConfig names the environment variables consulted during resolution.
type EnvConfig struct {
	Canonical   string `koanf:"canonical"`
	Fallback    string `koanf:"fallback"`
	AllowRemote string `koanf:"allow_remote"`
}

// DefaultsConfig holds the connection parameters added to every DSN.
type DefaultsConfig struct {
	App                string `koanf:"app"`
	SSLMode            string `koanf:"sslmode"`
	TargetSessionAttrs string `koanf:"target_session_attrs"`
}

// AuditConfig controls the audit file.
type AuditConfig struct {
	Path string `koanf:"path"`
	Mode string `koanf:"mode"`
}

// LogConfig controls log output.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	def := dsn.DefaultConfig()
	return Config{
		Env: EnvConfig{
			Canonical:   def.CanonicalVar,
			Fallback:    def.FallbackVar,
			AllowRemote: def.AllowRemoteVar,
		},
		Defaults: DefaultsConfig{
			SSLMode:            def.SSLMode,
			TargetSessionAttrs: def.TargetSessionAttrs,
		},
		LocalHosts: append([]string(nil), def.LocalHosts...),
		Audit:      AuditConfig{Mode: string(audit.ModeAppend)},
		Log:        LogConfig{Format: "text", Level: "info"},
	}
}

// fillDefaults sets every empty field to its built-in value.
func (c *Config) fillDefaults() {
	def := Default()
	setIfEmpty(&c.Env.Canonical, def.Env.Canonical)
	setIfEmpty(&c.Env.Fallback, def.Env.Fallback)
	setIfEmpty(&c.Env.AllowRemote, def.Env.AllowRemote)
	setIfEmpty(&c.Defaults.SSLMode, def.Defaults.SSLMode)
	setIfEmpty(&c.Defaults.TargetSessionAttrs, def.Defaults.TargetSessionAttrs)
	setIfEmpty(&c.Audit.Mode, def.Audit.Mode)
	setIfEmpty(&c.Log.Format, def.Log.Format)
	setIfEmpty(&c.Log.Level, def.Log.Level)
	if len(c.LocalHosts) == 0 {
		c.LocalHosts = def.LocalHosts
	}
}

func setIfEmpty(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"canonical-var":        "env.canonical",
	"fallback-var":         "env.fallback",
	"allow-remote-var":     "env.allow_remote",
	"default-app":          "defaults.app",
	"sslmode":              "defaults.sslmode",
	"target-session-attrs": "defaults.target_session_attrs",
	"local-host":           "local_hosts",
	"audit-path":           "audit.path",
	"audit-mode":           "audit.mode",
	"log-format":           "log.format",
	"log-level":            "log.level",
}

// RegisterFlags adds the config flags to fs with the built-in defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	def := Default()
	fs.String("canonical-var", def.Env.Canonical, "environment variable holding the primary DSN")
	fs.String("fallback-var", def.Env.Fallback, "environment variable holding the fallback DSN")
	fs.String("allow-remote-var", def.Env.AllowRemote, "environment variable that permits remote hosts")
	fs.String("default-app", def.Defaults.App, "application name used when --app is not given")
	fs.String("sslmode", def.Defaults.SSLMode, "sslmode added to DSNs that lack one")
	fs.String("target-session-attrs", def.Defaults.TargetSessionAttrs, "target_session_attrs added to DSNs that lack one")
	fs.StringSlice("local-host", def.LocalHosts, "glob pattern for hosts treated as local (repeatable)")
	fs.String("audit-path", def.Audit.Path, "audit file path (default depends on --audit-mode)")
	fs.String("audit-mode", def.Audit.Mode, "audit file mode: append, snapshot or off")
	fs.String("log-format", def.Log.Format, "log format (json or text)")
	fs.String("log-level", def.Log.Level, "log level (debug, info, warn, error)")
}

// Load reads configuration. path names a YAML file; when empty the XDG
// config file is used if it exists. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if err := loadFile(k, path); err != nil {
		return Config{}, err
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").In("config").Wrapf(err, "load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").In("config").Wrapf(err, "decode config")
	}
	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(k *koanf.Koanf, path string) error {
	explicit := path != ""
	if !explicit {
		p, err := xdg.ConfigFile()
		if err != nil {
			//nolint:nilerr // no resolvable config dir means no default file
			return nil
		}
		path = p
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return oops.Code("CONFIG_NOT_FOUND").
			In("config").
			With("path", path).
			Wrapf(err, "read config file")
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return oops.Code("CONFIG_INVALID").
			In("config").
			With("path", path).
			Wrapf(err, "parse config file")
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	invalid := oops.Code("CONFIG_INVALID").In("config")

	if c.Env.Canonical == "" || c.Env.Fallback == "" || c.Env.AllowRemote == "" {
		return invalid.Errorf("env.canonical, env.fallback and env.allow_remote must be set")
	}
	if c.Env.Canonical == c.Env.Fallback {
		return invalid.
			With("variable", c.Env.Canonical).
			Errorf("env.canonical and env.fallback must differ")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid.
			With("format", c.Log.Format).
			Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if _, err := audit.ParseMode(c.Audit.Mode); err != nil {
		return err
	}
	if _, err := dsn.NewHostMatcher(c.LocalHosts); err != nil {
		return err
	}
	return nil
}

// ResolverConfig converts c into the resolver's settings.
func (c Config) ResolverConfig() dsn.Config {
	return dsn.Config{
		CanonicalVar:       c.Env.Canonical,
		FallbackVar:        c.Env.Fallback,
		AllowRemoteVar:     c.Env.AllowRemote,
		DefaultApp:         c.Defaults.App,
		SSLMode:            c.Defaults.SSLMode,
		TargetSessionAttrs: c.Defaults.TargetSessionAttrs,
		LocalHosts:         c.LocalHosts,
	}
}

// LogLevel returns the parsed log level. Validate has already checked it.
func (c Config) LogLevel() slog.Level {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// AuditSink builds the audit sink described by c.
func (c Config) AuditSink(logger *slog.Logger, metrics *observability.Metrics) audit.Sink {
	mode, err := audit.ParseMode(c.Audit.Mode)
	if err != nil {
		mode = audit.ModeAppend
	}
	if mode == audit.ModeOff {
		return audit.Discard
	}
	return audit.NewFileSink(c.Audit.Path, mode,
		audit.WithLogger(logger),
		audit.WithMetrics(metrics),
	)
}
