package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	apiURLVar      = "API_URL"
	apiBasePathVar = "API_BASE_PATH"
	httpTimeoutVar = "HTTP_TIMEOUT"
)

type API struct {
	v *viper.Viper
}

var _ APIConfig = API{}

func (a API) GetAPIURL() string {
	return strings.TrimRight(a.v.GetString(apiURLVar), "/")
}

func (a API) GetAPIBasePath() string {
	p := strings.TrimRight(a.v.GetString(apiBasePathVar), "/")
	if p != "" && !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// GetBaseURL returns the address every API path is resolved against,
// e.g. "http://localhost:8000/api".
func (a API) GetBaseURL() string {
	return a.GetAPIURL() + a.GetAPIBasePath()
}

// GetHTTPTimeout returns the per-request timeout. Zero means no timeout.
func (a API) GetHTTPTimeout() time.Duration {
	return a.v.GetDuration(httpTimeoutVar)
}
