package configs

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

var (
	//go:embed config.example.yaml
	defaultConfigYAML string

	defaultsOnce sync.Once
	defaults     *viper.Viper
	defaultsErr  error
)

func loadDefaults() (*viper.Viper, error) {
	defaultsOnce.Do(func() {
		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(defaultConfigYAML)); err != nil {
			defaultsErr = fmt.Errorf("failed to read embedded config.example.yaml: %w", err)
			return
		}
		defaults = v
	})

	return defaults, defaultsErr
}

// DefaultConfig returns the parsed configuration from the embedded config.example.yaml.
func DefaultConfig() (Config, error) {
	v, err := loadDefaults()
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode embedded config.example.yaml: %w", err)
	}

	return cfg, nil
}

// RegisterDefaults seeds target with every key of the embedded example config so a
// missing config.yaml still yields a usable configuration. Flags and files override them.
func RegisterDefaults(target *viper.Viper) error {
	v, err := loadDefaults()
	if err != nil {
		return err
	}

	for _, key := range v.AllKeys() {
		target.SetDefault(key, v.Get(key))
	}

	return nil
}
