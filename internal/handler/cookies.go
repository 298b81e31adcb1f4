package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"mcop-proxy/internal/service"
)

// CookiesHandler exposes the cookies held for a service in the form the
// client-side script stores them.
type CookiesHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewCookiesHandler creates a CookiesHandler.
func NewCookiesHandler(svc *service.ProxyService, logger *slog.Logger) *CookiesHandler {
	return &CookiesHandler{
		service: svc,
		logger:  logger.With("component", "cookies_handler"),
	}
}

type cookiesResponse struct {
	Service string   `json:"service"`
	Cookies []string `json:"cookies"`
}

// List returns the client-side cookie strings of the :service jar.
func (h *CookiesHandler) List(c echo.Context) error {
	name := c.Param("service")

	cookies, err := h.service.ClientCookies(name)
	if err != nil {
		if errors.Is(err, service.ErrUnknownService) {
			return c.JSON(http.StatusNotFound, map[string]string{
				"error": "unknown service",
			})
		}
		h.logger.Error("load cookies", "service", name, "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "cookie jar unavailable",
		})
	}
	if cookies == nil {
		cookies = []string{}
	}

	return c.JSON(http.StatusOK, cookiesResponse{Service: name, Cookies: cookies})
}
