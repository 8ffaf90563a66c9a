package infra

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pancudaniel7/blockwatch-service/internal/adapter/reader"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/applog"
	"github.com/spf13/viper"
)

// InitReader constructs the Ethereum action reader from the "reader.*" keys.
func InitReader(log applog.AppLogger, v *validator.Validate) (*reader.EthereumReader, error) {
	if v == nil {
		v = validator.New()
	}

	cfg := reader.Config{
		RPCURL:                    viper.GetString("reader.rpc_url"),
		StartAtBlock:              viper.GetInt64("reader.start_at_block"),
		FinalizedBlocks:           viper.GetBool("reader.finalized_blocks"),
		Confirmations:             viper.GetUint64("reader.confirmations"),
		MaxHistoryLength:          viper.GetInt("reader.max_history_length"),
		FetchTimeoutMS:            viper.GetInt("reader.fetch_timeout_ms"),
		DialMaxRetryAttempts:      viper.GetInt("reader.dial_max_retry_attempts"),
		DialRetryInitialBackoffMS: viper.GetInt("reader.dial_retry_initial_backoff_ms"),
		DialRetryMaxBackoffMS:     viper.GetInt("reader.dial_retry_max_backoff_ms"),
		DialRetryJitter:           viper.GetFloat64("reader.dial_retry_jitter"),
	}

	r, err := reader.NewEthereumReader(log, &cfg, v)
	if err != nil {
		return nil, fmt.Errorf("infra: failed to init reader: %w", err)
	}
	return r, nil
}
