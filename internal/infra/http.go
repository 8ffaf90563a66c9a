package infra

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/pancudaniel7/blockwatch-service/internal/adapter/http"
	"github.com/pancudaniel7/blockwatch-service/internal/core/port"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/applog"
)

func InitRoutes(server *fiber.App, log applog.AppLogger, control port.WatcherControl) {
	server.Use(recover.New())
	server.Get("/health", http.Health)
	http.NewWatcherHandler(log, control).Register(server)
}
