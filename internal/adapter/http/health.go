package http

import "github.com/gofiber/fiber/v3"

func Health(ctx fiber.Ctx) error {
	return ctx.Status(fiber.StatusOK).JSON(fiber.Map{"status": "UP"})
}
