package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/octwallet/octwallet/internal/middleware"
)

// RegisterHealthRoutes adds liveness/readiness style endpoints.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		dbStatus := "ok"
		redisStatus := "ok"

		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if d.DB != nil {
			if err := d.DB.Ping(ctx); err != nil {
				dbStatus = err.Error()
			}
		}
		if d.Cache != nil {
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		}
		status := http.StatusOK
		if dbStatus != "ok" || redisStatus != "ok" {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"postgres": dbStatus, "redis": redisStatus},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}

// RegisterStatusRoute reports service identity and request load.
func RegisterStatusRoute(api fiber.Router, d Deps, load *middleware.LoadTracker) {
	api.Get("/status", func(c *fiber.Ctx) error {
		inFlight, served := load.Snapshot()
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.JSON(fiber.Map{
			"app":            d.Cfg.AppName,
			"env":            d.Cfg.AppEnv,
			"rpc_endpoint":   d.Cfg.RPCEndpoint,
			"requests_open":  inFlight,
			"requests_total": served,
			"request_id":     reqID,
			"timestamp":      time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
