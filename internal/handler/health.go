package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"mcop-proxy/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	cfg     *config.Config
	version Version
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(cfg *config.Config, v Version) *HealthHandler {
	return &HealthHandler{cfg: cfg, version: v}
}

// Healthz returns a simple OK response for liveness checks.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// statusResponse is the body of /proxy/status.
type statusResponse struct {
	Status     string   `json:"status"`
	Version    string   `json:"version"`
	ProxyHost  string   `json:"proxy_host"`
	AppDomain  string   `json:"app_domain"`
	Services   []string `json:"services"`
	ServiceCnt int      `json:"service_count"`
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	names := make([]string, 0, len(h.cfg.Services))
	for _, s := range h.cfg.Services {
		names = append(names, s.Name)
	}
	return c.JSON(http.StatusOK, statusResponse{
		Status:     "ok",
		Version:    string(h.version),
		ProxyHost:  h.cfg.Proxy.Host,
		AppDomain:  h.cfg.Proxy.AppDomain,
		Services:   names,
		ServiceCnt: len(names),
	})
}
