package config

import (
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/pkg/errors"
)

type Config interface {
	EnvConfig
	CorsConfig
	SessionConfig
	ProviderConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetLogLevel() string
	GetEnv() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type mainConfig struct {
	EnvVars   `yaml:"env"`
	Cors      `yaml:"cors"`
	Session   `yaml:"session"`
	Providers `yaml:"providers"`
}

// New loads the configuration from the environment only.
func New() (Config, error) {
	return Load("")
}

// Load reads path (YAML) when it exists, with environment variables overriding file values.
// Secrets are only ever read from the environment.
func Load(path string) (Config, error) {
	var cfg mainConfig
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := cleanenv.ReadConfig(path, &cfg); err != nil {
				return nil, errors.Wrapf(err, "[config.Load] read %s", path)
			}
			return cfg.validate()
		}
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, errors.Wrap(err, "[config.Load] read environment")
	}
	return cfg.validate()
}

func (c mainConfig) validate() (Config, error) {
	if c.EnvVars.Port != "" && !strings.HasPrefix(c.EnvVars.Port, ":") {
		c.EnvVars.Port = ":" + c.EnvVars.Port
	}
	if c.IsProd() && c.Session.Secret == defaultSessionSecret {
		return nil, errors.New("[config.Load] SESSION_SECRET must be set in production")
	}
	if c.Providers.ProviderTimeout <= 0 {
		return nil, errors.New("[config.Load] PROVIDER_TIMEOUT must be positive")
	}
	return c, nil
}
