package infra

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "BLOCKWATCH"

// LoadConfig populates the global viper instance from path, or from
// config.yaml in "." or "./config" when path is empty. A missing default
// file is not an error; environment variables and defaults still apply.
func LoadConfig(path string) error {
	setDefaults()

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("infra: failed to read config %s: %w", path, err)
		}
		return nil
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("infra: failed to read config: %w", err)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("service.name", "blockwatch-service")
	viper.SetDefault("service.instance", "local")
	viper.SetDefault("service.version", "dev")
	viper.SetDefault("service.revision", "unknown")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file.path", "")
	viper.SetDefault("log.file.max_size_mb", 100)
	viper.SetDefault("log.file.max_backups", 5)
	viper.SetDefault("log.file.max_age_days", 14)
	viper.SetDefault("log.file.compress", true)

	viper.SetDefault("http.addr", ":8080")
	viper.SetDefault("http.shutdown_timeout_seconds", 10)

	viper.SetDefault("watcher.poll_interval_ms", 2000)
	viper.SetDefault("watcher.auto_start", true)

	viper.SetDefault("reader.rpc_url", "http://127.0.0.1:8545")
	viper.SetDefault("reader.start_at_block", 0)
	viper.SetDefault("reader.finalized_blocks", false)
	viper.SetDefault("reader.confirmations", 12)
	viper.SetDefault("reader.max_history_length", 128)
	viper.SetDefault("reader.fetch_timeout_ms", 10000)
	viper.SetDefault("reader.dial_max_retry_attempts", 5)
	viper.SetDefault("reader.dial_retry_initial_backoff_ms", 250)
	viper.SetDefault("reader.dial_retry_max_backoff_ms", 5000)
	viper.SetDefault("reader.dial_retry_jitter", 0.2)

	viper.SetDefault("handler.version_name", "v1")

	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.dial_timeout_seconds", 5)
	viper.SetDefault("redis.key_prefix", "{blockwatch}")
	viper.SetDefault("redis.history_retention", 1024)
	viper.SetDefault("redis.write_retry_attempts", 3)

	viper.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	viper.SetDefault("kafka.topic", "blocks")
	viper.SetDefault("kafka.client_id", "blockwatch-service")
	viper.SetDefault("kafka.max_retry_attempts", 5)
	viper.SetDefault("kafka.retry_initial_backoff_ms", 100)
	viper.SetDefault("kafka.retry_max_backoff_ms", 2000)
	viper.SetDefault("kafka.retry_jitter", 0.2)
	viper.SetDefault("kafka.write_timeout_seconds", 10)

	viper.SetDefault("pprof.enabled", false)
	viper.SetDefault("pprof.addr", "127.0.0.1:6060")
}
