package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"mcop-proxy/internal/model"
	"mcop-proxy/internal/service"
	"mcop-proxy/internal/urlcodec"
)

// ProxyHandler forwards every request on the proxy host to its backend.
type ProxyHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service: svc,
		logger:  logger.With("component", "proxy_handler"),
	}
}

// Handle proxies the request to the backend it addresses and streams the
// rewritten response back.
func (h *ProxyHandler) Handle(c echo.Context) error {
	req := c.Request()

	requestURI := req.RequestURI
	if requestURI == "" {
		requestURI = req.URL.RequestURI()
	}

	pr := &model.ProxyRequest{
		Ctx:        req.Context(),
		Method:     req.Method,
		RequestURI: requestURI,
		Header:     req.Header,
		Body:       req.Body,
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapError(c, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.Set(model.ContextKeyService, resp.Service)
	c.Set(model.ContextKeyBackend, resp.Backend)

	for key, vals := range resp.Header {
		for _, v := range vals {
			c.Response().Header().Add(key, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)

	// The status line is already sent, so a failed copy leaves the client
	// with a truncated body.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Error("streaming response body",
			"err", err,
			"service", resp.Service,
			"path", req.URL.Path,
		)
	}

	return nil
}

func (h *ProxyHandler) mapError(c echo.Context, err error) error {
	h.logger.Error("proxy error",
		"err", err,
		"host", c.Request().Host,
		"path", c.Request().URL.Path,
	)

	if errors.Is(err, service.ErrUnknownBackend) {
		return c.JSON(http.StatusNotFound, map[string]string{
			"error": "no backend configured for this address",
		})
	}

	if errors.Is(err, urlcodec.ErrMissingArgument) {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "proxy is misconfigured",
		})
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return c.JSON(http.StatusGatewayTimeout, map[string]string{
			"error": "upstream request timed out",
		})
	}

	if errors.Is(err, context.Canceled) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "client disconnected",
		})
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream host unreachable",
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return c.JSON(http.StatusGatewayTimeout, map[string]string{
				"error": "upstream request timed out",
			})
		}
		return c.JSON(http.StatusBadGateway, map[string]string{
			"error": "upstream connection failed",
		})
	}

	return c.JSON(http.StatusBadGateway, map[string]string{
		"error": "upstream request failed",
	})
}
