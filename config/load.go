package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	globalConfig   *Config
	viperInstance  *viper.Viper
)

// Load resolves a Config from the layered sources: built-in defaults,
// then system/user/project xbus.toml files (lowest to highest
// precedence), then XBUS_-prefixed environment variables, caching the
// result for subsequent calls.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	cfg := New(v.GetString("endpoint"))
	cfg.Insecure = v.GetBool("insecure")
	cfg.DevApp = v.GetString("dev_app")
	cfg.CAFile = v.GetString("ca_file")
	cfg.MaxIdleConnections = v.GetInt("max_idle_connections")
	if timeout := v.GetDuration("request_timeout"); timeout > 0 {
		cfg.RequestTimeout = timeout
	}
	if certFile, keyFile := v.GetString("cert_file"), v.GetString("key_file"); certFile != "" && keyFile != "" {
		cfg.CertKeyFile = &CertKeyFile{CertFile: certFile, KeyFile: keyFile}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return globalConfig, nil
}

// Reset clears the cached configuration and viper instance, forcing the
// next Load to re-read every source. Primarily useful for tests and for
// a config-file watcher reacting to a change on disk.
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("XBUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("insecure", false)
	v.SetDefault("max_idle_connections", 20)
	v.SetDefault("request_timeout", defaultRequestTimeout)
}

// findProjectConfig walks up from the working directory looking for an
// xbus.toml, the way am.findProjectConfig locates am.toml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, "xbus.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// mergeConfigFiles merges xbus.toml files in precedence order: system <
// user < project < env vars, matching am.mergeConfigFiles' manual merge
// (viper.MergeInConfig only appends one file at a time, so each layer is
// read into its own viper instance and merged into v's config layer,
// which viper ranks below environment variables).
func mergeConfigFiles(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()
	userDir := filepath.Join(homeDir, ".xbus")

	configPaths := []string{
		"/etc/xbus/config.toml",
		filepath.Join(userDir, "config.toml"),
	}
	if project := findProjectConfig(); project != "" {
		configPaths = append(configPaths, project)
	}

	for _, path := range configPaths {
		if _, err := os.Stat(path); err != nil {
			continue
		}

		layer := viper.New()
		layer.SetConfigFile(path)
		layer.SetConfigType("toml")
		if err := layer.ReadInConfig(); err != nil {
			continue
		}

		if err := v.MergeConfigMap(layer.AllSettings()); err != nil {
			continue
		}
	}
}
