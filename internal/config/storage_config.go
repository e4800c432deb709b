package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type TokenStoreType string

const (
	TokenStoreFile   TokenStoreType = "file"
	TokenStoreRedis  TokenStoreType = "redis"
	TokenStoreMemory TokenStoreType = "memory"
)

const (
	tokenStoreVar    = "TOKEN_STORE"
	tokenStoreKeyVar = "TOKEN_STORE_KEY"
	redisURLVar      = "REDIS_URL"
	redisPasswordVar = "REDIS_PASSWORD"
	redisDBVar       = "REDIS_DB"
	redisPrefixVar   = "REDIS_PREFIX"
)

type StorageConfig interface {
	GetTokenStore() TokenStoreType
	GetTokenStoreKey() ([]byte, error)
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetRedisPrefix() string
}

type Storage struct {
	v *viper.Viper
}

var _ StorageConfig = Storage{}

func (s Storage) GetTokenStore() TokenStoreType {
	return TokenStoreType(strings.ToLower(s.v.GetString(tokenStoreVar)))
}

// GetTokenStoreKey returns the 32 byte key used to encrypt the token file, or nil when
// TOKEN_STORE_KEY is not set.
func (s Storage) GetTokenStoreKey() ([]byte, error) {
	raw := strings.TrimSpace(s.v.GetString(tokenStoreKeyVar))
	if raw == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be hex encoded: %w", tokenStoreKeyVar, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s must be 32 bytes, got %d", tokenStoreKeyVar, len(key))
	}
	return key, nil
}

func (s Storage) GetRedisAddr() string {
	return s.v.GetString(redisURLVar)
}

func (s Storage) GetRedisPassword() string {
	return s.v.GetString(redisPasswordVar)
}

func (s Storage) GetRedisDB() int {
	return s.v.GetInt(redisDBVar)
}

func (s Storage) GetRedisPrefix() string {
	return s.v.GetString(redisPrefixVar)
}
