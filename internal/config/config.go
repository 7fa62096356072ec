// Package config provides configuration management for roaster using Viper
// for flexible loading from files, environment variables and command-line
// flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the ROASTER_ prefix and validation. It carries the run mode,
// the paths of the optional native compiler and minifier, the asset layout
// and the HTTP server settings.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Run modes.
const (
	ModeDev  = "dev"
	ModeProd = "prod"
)

type Config struct {
	Mode        string            `mapstructure:"mode" yaml:"mode"`
	Precompiled bool              `mapstructure:"precompiled" yaml:"precompiled"`
	Precompile  bool              `mapstructure:"precompile" yaml:"precompile"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Assets      AssetsConfig      `mapstructure:"assets" yaml:"assets"`
	Coffee      CoffeeConfig      `mapstructure:"coffee" yaml:"coffee"`
	UglifyJS    UglifyJSConfig    `mapstructure:"uglifyjs" yaml:"uglifyjs"`
	Build       BuildConfig       `mapstructure:"build" yaml:"build"`
	Development DevelopmentConfig `mapstructure:"development" yaml:"development"`
	LogLevel    string            `mapstructure:"log-level" yaml:"log-level"`
	LogFormat   string            `mapstructure:"log-format" yaml:"log-format"`
}

type ServerConfig struct {
	Port     int           `mapstructure:"port" yaml:"port"`
	Host     string        `mapstructure:"host" yaml:"host"`
	CacheFor time.Duration `mapstructure:"cache_for" yaml:"cache_for"`
}

type AssetsConfig struct {
	Root      string `mapstructure:"root" yaml:"root"`
	Dir       string `mapstructure:"dir" yaml:"dir"`
	URLPrefix string `mapstructure:"url_prefix" yaml:"url_prefix"`
}

type CoffeeConfig struct {
	Native  string        `mapstructure:"native" yaml:"native"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type UglifyJSConfig struct {
	Path    string        `mapstructure:"path" yaml:"path"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type BuildConfig struct {
	Workers int `mapstructure:"workers" yaml:"workers"`
}

type DevelopmentConfig struct {
	LiveReload bool `mapstructure:"live_reload" yaml:"live_reload"`
}

// IsProduction reports whether roaster runs in a production-like mode.
func (c *Config) IsProduction() bool {
	return c.Mode == ModeProd
}

// UsesPrecompiledDir reports whether compiled artifacts live under
// "precompiled" rather than "tmp".
func (c *Config) UsesPrecompiledDir() bool {
	return c.Precompiled || c.Precompile
}

// ShouldPrecompile reports whether the startup precompilation pass runs.
func (c *Config) ShouldPrecompile() bool {
	return c.IsProduction() && !c.Precompiled
}

// ShouldPurge reports whether compiled artifacts from a previous run are
// discarded at startup.
func (c *Config) ShouldPurge() bool {
	return !c.Precompiled
}

// Address returns the host:port the server binds to.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	config.Mode = normalizeMode(config.Mode)

	if config.Server.Host == "" {
		config.Server.Host = "localhost"
	}
	if !viper.IsSet("server.port") && config.Server.Port == 0 {
		config.Server.Port = 9000
	}
	if config.Server.CacheFor == 0 {
		config.Server.CacheFor = time.Hour
	}

	if config.Assets.Root == "" {
		config.Assets.Root = "."
	}
	if config.Assets.Dir == "" {
		config.Assets.Dir = "public/javascripts"
	}
	if config.Assets.URLPrefix == "" {
		config.Assets.URLPrefix = "/public/"
	}
	config.Assets.URLPrefix = normalizePrefix(config.Assets.URLPrefix)

	if config.Coffee.Timeout == 0 {
		config.Coffee.Timeout = 30 * time.Second
	}
	if config.UglifyJS.Timeout == 0 {
		config.UglifyJS.Timeout = 30 * time.Second
	}

	if config.Build.Workers == 0 {
		config.Build.Workers = runtime.NumCPU()
	}

	// Live reload defaults on and is development only
	if !viper.IsSet("development.live_reload") {
		config.Development.LiveReload = true
	}
	if config.IsProduction() {
		config.Development.LiveReload = false
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogFormat == "" {
		config.LogFormat = "text"
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func normalizeMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "dev", "development":
		return ModeDev
	case "prod", "production":
		return ModeProd
	default:
		return mode
	}
}

func normalizePrefix(prefix string) string {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if config.Mode != ModeDev && config.Mode != ModeProd {
		return fmt.Errorf("mode %q must be %q or %q", config.Mode, ModeDev, ModeProd)
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validateAssetsConfig(&config.Assets); err != nil {
		return fmt.Errorf("assets config: %w", err)
	}

	if err := validateExecutable("coffee.native", config.Coffee.Native); err != nil {
		return err
	}
	if err := validateExecutable("uglifyjs.path", config.UglifyJS.Path); err != nil {
		return err
	}

	if config.Coffee.Timeout < 0 {
		return fmt.Errorf("coffee.timeout must be positive")
	}
	if config.UglifyJS.Timeout < 0 {
		return fmt.Errorf("uglifyjs.timeout must be positive")
	}
	if config.Build.Workers < 0 {
		return fmt.Errorf("build.workers must not be negative")
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Allow 0 for system-assigned ports in testing
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		if strings.ContainsAny(config.Host, ";&|$`()<>\"'\\") {
			return fmt.Errorf("host contains dangerous characters: %s", config.Host)
		}
	}

	if config.CacheFor < 0 {
		return fmt.Errorf("cache_for must be positive")
	}

	return nil
}

// validateAssetsConfig validates the asset layout
func validateAssetsConfig(config *AssetsConfig) error {
	if err := validatePath(config.Dir); err != nil {
		return fmt.Errorf("invalid dir '%s': %w", config.Dir, err)
	}
	if filepath.IsAbs(filepath.Clean(config.Dir)) {
		return fmt.Errorf("dir should be relative to root: %s", config.Dir)
	}

	if strings.Contains(config.URLPrefix, "..") {
		return fmt.Errorf("url_prefix contains traversal: %s", config.URLPrefix)
	}

	return nil
}

// validateExecutable rejects executable paths that look like shell snippets.
// Executables are started directly, never through a shell.
func validateExecutable(key, path string) error {
	if path == "" {
		return nil
	}
	if strings.ContainsAny(path, ";&|$`<>\"'\n") {
		return fmt.Errorf("%s contains dangerous characters: %s", key, path)
	}
	return nil
}

// validatePath validates a file path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	if strings.ContainsAny(cleanPath, ";&|$`()<>\"'") {
		return fmt.Errorf("path contains dangerous characters: %s", path)
	}

	return nil
}
