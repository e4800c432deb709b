package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	appNameVar   = "APP_NAME"
	envVar       = "ENV"
	logLevelVar  = "LOG_LEVEL"
	folderEnvVar = "FOLDER"
	devAddrVar   = "DEV_SERVER_ADDR"
)

type EnvVars struct {
	v *viper.Viper
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.v.GetString(appNameVar)
}

// GetEnv returns the upper-cased environment name, "DEV" when unset.
func (e EnvVars) GetEnv() string {
	env := strings.ToUpper(strings.TrimSpace(e.v.GetString(envVar)))
	if env == "" {
		return "DEV"
	}
	return env
}

func (e EnvVars) GetLogLevel() string {
	return e.v.GetString(logLevelVar)
}

func (e EnvVars) GetDataFolder() string {
	return e.v.GetString(folderEnvVar)
}

// GetDevServerAddr is where cmd/devserver listens.
func (e EnvVars) GetDevServerAddr() string {
	return e.v.GetString(devAddrVar)
}

func defaultDataFolder() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".budgetctl")
}
