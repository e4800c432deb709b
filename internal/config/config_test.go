package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/family-budget-client/internal/config"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	c := config.NewFromViper(viper.New())

	require.Equal(t, "Family Budget", c.GetAppName())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "http://localhost:8000/api", c.GetBaseURL())
	require.Equal(t, time.Duration(0), c.GetHTTPTimeout())
	require.Equal(t, config.TokenStoreFile, c.GetTokenStore())
	require.Equal(t, "localhost:6379", c.GetRedisAddr())
	require.Equal(t, ":8000", c.GetDevServerAddr())

	key, err := c.GetTokenStoreKey()
	require.NoError(t, err)
	require.Nil(t, key)
}

func TestConfig_Overrides(t *testing.T) {
	v := viper.New()
	v.Set("API_URL", "https://budget.example.com/")
	v.Set("API_BASE_PATH", "v2")
	v.Set("HTTP_TIMEOUT", "15s")
	v.Set("TOKEN_STORE", "REDIS")
	v.Set("ENV", "prod")
	c := config.NewFromViper(v)

	require.Equal(t, "https://budget.example.com/v2", c.GetBaseURL())
	require.Equal(t, 15*time.Second, c.GetHTTPTimeout())
	require.Equal(t, config.TokenStoreRedis, c.GetTokenStore())
	require.Equal(t, "PROD", c.GetEnv())
}

func TestConfig_TokenStoreKey(t *testing.T) {
	t.Run("valid key", func(t *testing.T) {
		v := viper.New()
		v.Set("TOKEN_STORE_KEY", "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f")
		key, err := config.NewFromViper(v).GetTokenStoreKey()
		require.NoError(t, err)
		require.Len(t, key, 32)
	})

	t.Run("not hex", func(t *testing.T) {
		v := viper.New()
		v.Set("TOKEN_STORE_KEY", "not-hex")
		_, err := config.NewFromViper(v).GetTokenStoreKey()
		require.Error(t, err)
		require.Contains(t, err.Error(), "hex encoded")
	})

	t.Run("wrong length", func(t *testing.T) {
		v := viper.New()
		v.Set("TOKEN_STORE_KEY", "0001")
		_, err := config.NewFromViper(v).GetTokenStoreKey()
		require.Error(t, err)
		require.Contains(t, err.Error(), "must be 32 bytes")
	})
}
