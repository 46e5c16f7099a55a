// Package config loads application configuration from file, environment, and flags.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Proxy modes controlling how the client network address is derived.
const (
	ProxyModeNone       = "none"
	ProxyModeXForwarded = "xforwarded"
	ProxyModeCloudflare = "cloudflare"
)

// Config holds application configuration.
type Config struct {
	DatabaseURL     string
	Port            string
	DataDir         string
	FingerprintSalt string
	ProxyMode       string
	GeoHeader       string
}

// Load loads configuration from multiple sources with priority:
// 1. Command flags (via LoadWithOverrides)
// 2. Config file (./loupe.toml or $XDG_CONFIG_HOME/loupe/loupe.toml)
// 3. Environment variables
func Load() (*Config, error) {
	v := newBaseViper()
	_ = v.ReadInConfig()
	return buildConfig(v, "", "", ""), nil
}

// LoadWithOverrides loads config and applies flag overrides last.
func LoadWithOverrides(databaseURL, port, dataDir string) (*Config, error) {
	v := newBaseViper()
	_ = v.ReadInConfig()
	return buildConfig(v, databaseURL, port, dataDir), nil
}

func newBaseViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("loupe")
	v.SetConfigType("toml")
	v.AddConfigPath(".")

	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			configHome = filepath.Join(home, ".config")
		}
	}
	if configHome != "" {
		v.AddConfigPath(filepath.Join(configHome, "loupe"))
	}

	return v
}

func buildConfig(v *viper.Viper, overrideDatabaseURL, overridePort, overrideDataDir string) *Config {
	cfg := &Config{
		Port:      "3000",
		DataDir:   "./data",
		ProxyMode: ProxyModeNone,
	}

	if v.IsSet("database_url") {
		cfg.DatabaseURL = v.GetString("database_url")
	}
	if v.IsSet("port") {
		cfg.Port = v.GetString("port")
	}
	if v.IsSet("data_dir") {
		cfg.DataDir = v.GetString("data_dir")
	}
	if v.IsSet("fingerprint_salt") {
		cfg.FingerprintSalt = v.GetString("fingerprint_salt")
	}
	if v.IsSet("proxy_mode") {
		cfg.ProxyMode = normalizeProxyMode(v.GetString("proxy_mode"))
	}
	if v.IsSet("geo_header") {
		cfg.GeoHeader = v.GetString("geo_header")
	}

	// Environment fallback (only if not configured)
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if !v.IsSet("port") {
		if envPort := os.Getenv("PORT"); envPort != "" {
			cfg.Port = envPort
		}
	}
	if !v.IsSet("data_dir") {
		if envDataDir := os.Getenv("DATA_DIR"); envDataDir != "" {
			cfg.DataDir = envDataDir
		}
	}
	if cfg.FingerprintSalt == "" {
		cfg.FingerprintSalt = os.Getenv("LOUPE_FINGERPRINT_SALT")
	}
	if !v.IsSet("proxy_mode") {
		if envMode := os.Getenv("LOUPE_PROXY_MODE"); envMode != "" {
			cfg.ProxyMode = normalizeProxyMode(envMode)
		}
	}
	if !v.IsSet("geo_header") {
		cfg.GeoHeader = os.Getenv("LOUPE_GEO_HEADER")
	}

	// Apply overrides (flags) last
	if overrideDatabaseURL != "" {
		cfg.DatabaseURL = overrideDatabaseURL
	}
	if overridePort != "" {
		cfg.Port = overridePort
	}
	if overrideDataDir != "" {
		cfg.DataDir = overrideDataDir
	}

	return cfg
}

func normalizeProxyMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ProxyModeXForwarded:
		return ProxyModeXForwarded
	case ProxyModeCloudflare:
		return ProxyModeCloudflare
	default:
		return ProxyModeNone
	}
}
