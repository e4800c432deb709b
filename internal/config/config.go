package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config interface {
	EnvConfig
	APIConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetDataFolder() string
	GetDevServerAddr() string
}

type APIConfig interface {
	GetAPIURL() string
	GetAPIBasePath() string
	GetBaseURL() string
	GetHTTPTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
	API
	Storage
}

// New loads the configuration from the environment, layered over an optional .env file
// in the working directory.
func New() Config {
	return NewFromViper(load(".env"))
}

// NewFromViper builds a Config over an already populated viper instance.
func NewFromViper(v *viper.Viper) Config {
	setDefaults(v)
	return mainConfig{
		EnvVars: EnvVars{v: v},
		API:     API{v: v},
		Storage: Storage{v: v},
	}
}

func load(envFile string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(appNameVar, "Family Budget")
	v.SetDefault(envVar, "DEV")
	v.SetDefault(logLevelVar, "info")
	v.SetDefault(folderEnvVar, defaultDataFolder())
	v.SetDefault(devAddrVar, ":8000")
	v.SetDefault(apiURLVar, "http://localhost:8000")
	v.SetDefault(apiBasePathVar, "/api")
	v.SetDefault(httpTimeoutVar, "0s")
	v.SetDefault(tokenStoreVar, string(TokenStoreFile))
	v.SetDefault(redisURLVar, "localhost:6379")
	v.SetDefault(redisDBVar, 0)
	v.SetDefault(redisPrefixVar, "budgetctl:")
}
