package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// XRPLI_CONTROLLER_ADDRESS for controller.address.
const EnvPrefix = "XRPLI"

// DefaultConfigName is looked up in the working directory when no
// configuration file is given.
const DefaultConfigName = "xrpl-interceptor"

// LoadConfig loads configuration from multiple sources in priority order:
// 1. Default values
// 2. Configuration file (TOML)
// 3. Environment variables (XRPLI_ prefix)
//
// An empty path looks for xrpl-interceptor.toml in the working directory and
// carries on with defaults when there is none.
func LoadConfig(path string) (*Config, error) {
	return Load(viper.New(), path)
}

// Load is LoadConfig on a caller supplied viper instance, so that command
// line flags bound to v take precedence over every other source.
func Load(v *viper.Viper, path string) (*Config, error) {
	// 1. Set defaults first
	setDefaults(v)

	// 2. Load configuration file
	if err := loadFile(v, path); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. Set up environment variable support
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AllowEmptyEnv(true) // XRPLI_CONTROLLER_ADDRESS= disables the controller
	v.AutomaticEnv()

	// 4. Unmarshal into struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.configPath = v.ConfigFileUsed()

	// 5. Validate the complete configuration
	if err := ValidateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func loadFile(v *viper.Viper, path string) error {
	if path == "" {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil
			}
			return err
		}
		return nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("config file does not exist: %s", path)
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}
