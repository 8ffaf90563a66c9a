package infra

import (
	"fmt"
	"time"

	"github.com/pancudaniel7/blockwatch-service/internal/core/port"
	"github.com/pancudaniel7/blockwatch-service/internal/core/usecase"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/applog"
	"github.com/spf13/viper"
)

// InitWatcher builds the watcher over reader and handler with the interval
// from "watcher.poll_interval_ms".
func InitWatcher(log applog.AppLogger, reader port.ActionReader, handler port.ActionHandler) (*usecase.Watcher, error) {
	interval := time.Duration(viper.GetInt64("watcher.poll_interval_ms")) * time.Millisecond
	w, err := usecase.NewWatcher(log, reader, handler, interval)
	if err != nil {
		return nil, fmt.Errorf("infra: failed to init watcher: %w", err)
	}
	return w, nil
}
