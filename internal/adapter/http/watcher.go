package http

import (
	"github.com/gofiber/fiber/v3"
	"github.com/pancudaniel7/blockwatch-service/internal/core/port"
	"github.com/pancudaniel7/blockwatch-service/internal/pkg/applog"
)

type infoResponse struct {
	Status                   string `json:"status"`
	LastProcessedBlockNumber uint64 `json:"last_processed_block_number"`
	LastProcessedBlockHash   string `json:"last_processed_block_hash"`
	HandlerVersionName       string `json:"handler_version_name"`
	Error                    string `json:"error,omitempty"`
}

type actionResponse struct {
	OK bool `json:"ok"`
}

// WatcherHandler exposes the watcher control surface over HTTP. Control
// calls answer 200 when they changed the watcher and 409 when they were a
// no-op in its current state.
type WatcherHandler struct {
	log     applog.AppLogger
	control port.WatcherControl
}

func NewWatcherHandler(log applog.AppLogger, control port.WatcherControl) *WatcherHandler {
	return &WatcherHandler{log: log, control: control}
}

// Register mounts the routes under /watcher.
func (h *WatcherHandler) Register(r fiber.Router) {
	g := r.Group("/watcher")
	g.Get("/info", h.Info)
	g.Post("/start", h.Start)
	g.Post("/pause", h.Pause)
	g.Post("/replay", h.Replay)
}

func (h *WatcherHandler) Info(ctx fiber.Ctx) error {
	info := h.control.Info()
	resp := infoResponse{
		Status:                   string(info.Status),
		LastProcessedBlockNumber: info.LastProcessedBlockNumber,
		LastProcessedBlockHash:   info.LastProcessedBlockHash.Hex(),
		HandlerVersionName:       info.HandlerVersionName,
	}
	if info.Error != nil {
		resp.Error = info.Error.Error()
	}
	return ctx.Status(fiber.StatusOK).JSON(resp)
}

func (h *WatcherHandler) Start(ctx fiber.Ctx) error {
	return h.respond(ctx, "start", h.control.Start())
}

func (h *WatcherHandler) Pause(ctx fiber.Ctx) error {
	return h.respond(ctx, "pause", h.control.Pause())
}

func (h *WatcherHandler) Replay(ctx fiber.Ctx) error {
	return h.respond(ctx, "replay", h.control.Replay())
}

func (h *WatcherHandler) respond(ctx fiber.Ctx, action string, ok bool) error {
	status := fiber.StatusOK
	if !ok {
		status = fiber.StatusConflict
	}
	h.log.Info("Watcher control request", "action", action, "applied", ok, "remote", ctx.IP())
	return ctx.Status(status).JSON(actionResponse{OK: ok})
}
