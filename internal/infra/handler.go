package infra

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pancudaniel7/blockwatch-service/internal/adapter/handler"
	"github.com/pancudaniel7/blockwatch-service/internal/core/port"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/applog"
	"github.com/spf13/viper"
)

func InitBlockHandler(log applog.AppLogger, store port.IndexStateStore, publisher port.Publisher, v *validator.Validate) (*handler.BlockHandler, error) {
	if v == nil {
		v = validator.New()
	}
	cfg := handler.Config{VersionName: viper.GetString("handler.version_name")}
	h, err := handler.NewBlockHandler(log, store, publisher, &cfg, v)
	if err != nil {
		return nil, fmt.Errorf("infra: failed to init block handler: %w", err)
	}
	return h, nil
}
