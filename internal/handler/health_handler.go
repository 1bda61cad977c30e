package handler

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/autograde-api/internal/config"
	"github.com/noah-isme/autograde-api/internal/utils"
)

const probeTimeout = 2 * time.Second

// Probe reports whether a backing dependency is reachable.
type Probe func(ctx context.Context) error

// DependencyStatus is the outcome of one probe.
type DependencyStatus struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status       string             `json:"status"`
	Timestamp    time.Time          `json:"timestamp"`
	Service      string             `json:"service"`
	Environment  string             `json:"environment"`
	Dependencies []DependencyStatus `json:"dependencies"`
}

// HealthCheck reports service health. Any failing probe turns the response
// into a 503 so load balancers stop routing uploads to the instance.
func HealthCheck(cfg config.Config, probes map[string]Probe) fiber.Handler {
	names := make([]string, 0, len(probes))
	for name := range probes {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), probeTimeout)
		defer cancel()

		payload := HealthResponse{
			Status:       "ok",
			Timestamp:    time.Now().UTC(),
			Service:      cfg.AppName,
			Environment:  cfg.AppEnv,
			Dependencies: make([]DependencyStatus, 0, len(names)),
		}
		for _, name := range names {
			status := DependencyStatus{Name: name, Status: "up"}
			if err := probes[name](ctx); err != nil {
				status.Status = "down"
				status.Error = err.Error()
				payload.Status = "degraded"
			}
			payload.Dependencies = append(payload.Dependencies, status)
		}

		if payload.Status != "ok" {
			return c.Status(fiber.StatusServiceUnavailable).JSON(utils.APIResponse{
				Success: false,
				Data:    payload,
				Message: "service degraded",
			})
		}
		return utils.SendSuccess(c, "service healthy", payload)
	}
}
