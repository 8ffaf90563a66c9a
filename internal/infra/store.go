package infra

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pancudaniel7/blockwatch-service/internal/adapter/store"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/applog"
	"github.com/spf13/viper"
)

// InitIndexStore creates the Redis-backed index state store from the
// "redis.*" keys.
func InitIndexStore(log applog.AppLogger, v *validator.Validate) (*store.RedisIndexStore, error) {
	if v == nil {
		v = validator.New()
	}
	cfg := loadStoreConfig()
	s, err := store.NewRedisIndexStore(log, v, &cfg)
	if err != nil {
		return nil, fmt.Errorf("infra: failed to init index store: %w", err)
	}
	return s, nil
}

func loadStoreConfig() store.Config {
	return store.Config{
		Host:               viper.GetString("redis.host"),
		Port:               viper.GetString("redis.port"),
		Password:           viper.GetString("redis.password"),
		DB:                 viper.GetInt("redis.db"),
		UseTLS:             viper.GetBool("redis.use_tls"),
		PoolSize:           viper.GetInt("redis.pool_size"),
		MaxRetries:         viper.GetInt("redis.max_retries"),
		DialTimeoutSeconds: viper.GetInt("redis.dial_timeout_seconds"),
		KeyPrefix:          viper.GetString("redis.key_prefix"),
		HistoryRetention:   viper.GetUint64("redis.history_retention"),
		WriteRetryAttempts: viper.GetInt("redis.write_retry_attempts"),
	}
}
