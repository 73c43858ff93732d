/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	applog "cyberapi/internal/log"
	"cyberapi/internal/storage"
)

// StorageConfig locates the data directories and the database override.
type StorageConfig struct {
	// DataDir is the portable data directory. Empty means next to the executable.
	DataDir string `yaml:"data_dir"`
	// LegacyDir is the old per-user data directory. "-" disables legacy lookups.
	LegacyDir string `yaml:"legacy_dir"`
	// DBPath is an override template, used when settings.json has no dbPath.
	DBPath string `yaml:"db_path"`
}

// PoolConfig bounds the database connection pool. Zero max_open or timeouts
// keep the defaults; min_idle may be set to zero explicitly.
type PoolConfig struct {
	MaxOpen          int `yaml:"max_open"`
	MinIdle          int `yaml:"min_idle"`
	AcquireTimeoutMs int `yaml:"acquire_timeout_ms"`
	IdleTimeoutMs    int `yaml:"idle_timeout_ms"`
}

// LoggingConfig mirrors log.Options.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	Storage       StorageConfig `yaml:"storage"`
	Pool          PoolConfig    `yaml:"pool"`
	Logging       LoggingConfig `yaml:"logging"`
}

// LegacyAppID names the per-user directory older releases kept their data in.
const LegacyAppID = "com.bigtree.cyberapi"

// DisabledDir turns off a directory setting.
const DisabledDir = "-"

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Pool:          PoolConfig{MaxOpen: 10, MinIdle: 2, AcquireTimeoutMs: 5000, IdleTimeoutMs: 60000},
		Logging:       LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvConfigFile = "CYBERAPI_CONFIG"
	EnvDataDir    = "CYBERAPI_DATA_DIR"
	EnvLegacyDir  = "CYBERAPI_LEGACY_DIR"
	EnvDBPath     = "CYBERAPI_DB_PATH"
	// EnvLogLevel Logging envs
	EnvLogLevel  = applog.EnvLevel
	EnvLogFormat = applog.EnvFormat
	EnvLogSource = applog.EnvSource
	EnvLogFile   = applog.EnvFile
)

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	xdg.Reload()
	if xdg.ConfigHome == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(xdg.ConfigHome, "cyberapi", "config.yaml"), nil
}

// Load reads the user config file (if present), applies defaults, and merges environment overrides.
// A config file that cannot be parsed is reported; a missing one is not.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			applyEnvOverrides(&cfg)
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
		if n, ok := fileMinIdle(data); ok {
			cfg.Pool.MinIdle = n
		}
	case !errors.Is(err, fs.ErrNotExist):
		applyEnvOverrides(&cfg)
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Save writes the user config YAML.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	// storage
	if v := strings.TrimSpace(src.Storage.DataDir); v != "" {
		dst.Storage.DataDir = v
	}
	if v := strings.TrimSpace(src.Storage.LegacyDir); v != "" {
		dst.Storage.LegacyDir = v
	}
	if v := strings.TrimSpace(src.Storage.DBPath); v != "" {
		dst.Storage.DBPath = v
	}
	// pool: zero keeps the default
	if src.Pool.MaxOpen > 0 {
		dst.Pool.MaxOpen = src.Pool.MaxOpen
	}
	if src.Pool.MinIdle > 0 {
		dst.Pool.MinIdle = src.Pool.MinIdle
	}
	if src.Pool.AcquireTimeoutMs > 0 {
		dst.Pool.AcquireTimeoutMs = src.Pool.AcquireTimeoutMs
	}
	if src.Pool.IdleTimeoutMs > 0 {
		dst.Pool.IdleTimeoutMs = src.Pool.IdleTimeoutMs
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

// fileMinIdle reports pool.min_idle when the file sets it, zero included.
func fileMinIdle(data []byte) (int, bool) {
	var raw struct {
		Pool struct {
			MinIdle *int `yaml:"min_idle"`
		} `yaml:"pool"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil || raw.Pool.MinIdle == nil || *raw.Pool.MinIdle < 0 {
		return 0, false
	}
	return *raw.Pool.MinIdle, true
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvDataDir)); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLegacyDir)); v != "" {
		cfg.Storage.LegacyDir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDBPath)); v != "" {
		cfg.Storage.DBPath = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		lv := strings.ToLower(v)
		cfg.Logging.Source = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	var env string
	switch key {
	case "storage.data_dir":
		env = EnvDataDir
	case "storage.legacy_dir":
		env = EnvLegacyDir
	case "storage.db_path":
		env = EnvDBPath
	case "logging.level":
		env = EnvLogLevel
	case "logging.format":
		env = EnvLogFormat
	case "logging.source":
		env = EnvLogSource
	case "logging.file":
		env = EnvLogFile
	default:
		return "", false
	}
	if strings.TrimSpace(os.Getenv(env)) != "" {
		return env, true
	}
	return "", false
}

// DefaultDataDir is the directory of the running executable, which makes the
// installation portable. It falls back to the working directory.
func DefaultDataDir() string {
	exe, err := os.Executable()
	if err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// DefaultLegacyDir is the per-user data directory older releases used. On
// Windows that is the roaming profile (%APPDATA%), elsewhere the XDG data home.
func DefaultLegacyDir() string {
	return legacyDirFor(runtime.GOOS)
}

func legacyDirFor(goos string) string {
	if goos == "windows" {
		base, err := os.UserConfigDir()
		if err != nil || base == "" {
			return ""
		}
		return filepath.Join(base, LegacyAppID)
	}
	xdg.Reload()
	if xdg.DataHome == "" {
		return ""
	}
	return filepath.Join(xdg.DataHome, LegacyAppID)
}

// Dirs returns the storage directories with defaults and "-" applied.
func (c AppConfig) Dirs() storage.Dirs {
	d := storage.Dirs{Current: c.Storage.DataDir, Legacy: c.Storage.LegacyDir}
	if d.Current == "" {
		d.Current = DefaultDataDir()
	}
	switch d.Legacy {
	case "":
		d.Legacy = DefaultLegacyDir()
	case DisabledDir:
		d.Legacy = ""
	}
	return d
}

// PoolOptions converts the pool section for storage.NewStore.
func (c AppConfig) PoolOptions() storage.PoolOptions {
	return storage.PoolOptions{
		MaxOpen:        c.Pool.MaxOpen,
		MinIdle:        c.Pool.MinIdle,
		AcquireTimeout: time.Duration(c.Pool.AcquireTimeoutMs) * time.Millisecond,
		IdleTimeout:    time.Duration(c.Pool.IdleTimeoutMs) * time.Millisecond,
	}
}

// LogOptions converts the logging section for log.Init.
func (c AppConfig) LogOptions() applog.Options {
	return applog.Options{
		Level:     c.Logging.Level,
		Format:    c.Logging.Format,
		AddSource: c.Logging.Source,
		File:      c.Logging.File,
	}
}

// Set updates one dotted key from a string value, as typed on the command line.
func (c *AppConfig) Set(key, value string) error {
	value = strings.TrimSpace(value)
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%s: %q is not a non-negative integer", key, value)
		}
		return n, nil
	}
	var err error
	switch key {
	case "storage.data_dir":
		c.Storage.DataDir = value
	case "storage.legacy_dir":
		c.Storage.LegacyDir = value
	case "storage.db_path":
		c.Storage.DBPath = value
	case "pool.max_open":
		c.Pool.MaxOpen, err = atoi()
	case "pool.min_idle":
		c.Pool.MinIdle, err = atoi()
	case "pool.acquire_timeout_ms":
		c.Pool.AcquireTimeoutMs, err = atoi()
	case "pool.idle_timeout_ms":
		c.Pool.IdleTimeoutMs, err = atoi()
	case "logging.level":
		c.Logging.Level = strings.ToLower(value)
	case "logging.format":
		c.Logging.Format = strings.ToLower(value)
	case "logging.source":
		lv := strings.ToLower(value)
		c.Logging.Source = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	case "logging.file":
		c.Logging.File = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return err
}
