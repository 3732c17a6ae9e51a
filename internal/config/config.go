// Package config loads client defaults from smbclient.yaml and SMBC_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. SMBC_WORKGROUP.
const EnvPrefix = "SMBC"

// Config holds the defaults applied to every new client context.
type Config struct {
	NetBIOSName           string        `mapstructure:"netbios_name"`
	Workgroup             string        `mapstructure:"workgroup"`
	Timeout               time.Duration `mapstructure:"timeout"`
	Debug                 int           `mapstructure:"debug"`
	DebugOutput           string        `mapstructure:"debug_output"`
	UseKerberos           bool          `mapstructure:"use_kerberos"`
	FallbackAfterKerberos bool          `mapstructure:"fallback_after_kerberos"`
	NoAutoAnonymousLogin  bool          `mapstructure:"no_auto_anonymous_login"`
	SOCKS5                string        `mapstructure:"socks5"`
	MetricsAddr           string        `mapstructure:"metrics_addr"`
}

// Default returns the built-in defaults.
func Default() *Config {
	host, _ := os.Hostname()
	if i := strings.IndexByte(host, '.'); i > 0 {
		host = host[:i]
	}
	if host == "" {
		host = "SMBCLIENT"
	}
	if len(host) > 15 {
		host = host[:15]
	}
	return &Config{
		NetBIOSName: strings.ToUpper(host),
		Workgroup:   "WORKGROUP",
		Timeout:     20 * time.Second,
		DebugOutput: "stderr",
	}
}

// Load reads configuration from file, environment, and defaults.
//
// Precedence (highest first): SMBC_* environment, the config file, then
// Default(). An empty path searches the working directory and the user
// config directory for smbclient.yaml; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative: %v", c.Timeout)
	}
	if c.Debug < 0 || c.Debug > 10 {
		return fmt.Errorf("debug level out of range: %d", c.Debug)
	}
	if len(c.NetBIOSName) > 15 {
		return fmt.Errorf("netbios_name longer than 15 characters: %q", c.NetBIOSName)
	}
	return nil
}

func setupViper(v *viper.Viper, path string) {
	def := Default()
	v.SetDefault("netbios_name", def.NetBIOSName)
	v.SetDefault("workgroup", def.Workgroup)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("debug", def.Debug)
	v.SetDefault("debug_output", def.DebugOutput)
	v.SetDefault("use_kerberos", def.UseKerberos)
	v.SetDefault("fallback_after_kerberos", def.FallbackAfterKerberos)
	v.SetDefault("no_auto_anonymous_login", def.NoAutoAnonymousLogin)
	v.SetDefault("socks5", def.SOCKS5)
	v.SetDefault("metrics_addr", def.MetricsAddr)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		return
	}
	v.SetConfigName("smbclient")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(Dir())
}

// Dir returns $XDG_CONFIG_HOME/smbclient or ~/.config/smbclient.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "smbclient")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "smbclient")
}
