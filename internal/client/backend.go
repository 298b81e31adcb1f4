// Package client provides the HTTP client used to reach proxied backends.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"mcop-proxy/internal/config"
	"mcop-proxy/internal/metrics"
	"mcop-proxy/internal/model"
)

// BackendClient sends requests to the proxied backends.
type BackendClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewBackendClient creates a BackendClient with connection pooling and timeouts.
// Redirects are returned to the caller, never followed, so that Location
// headers can be rewritten. The metrics parameter is optional; pass nil to
// disable upstream metrics recording.
func NewBackendClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *BackendClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	return &BackendClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger.With("component", "backend_client"),
		metrics: m,
	}
}

// Do executes an HTTP request against a backend and returns the raw response.
// The caller is responsible for closing the response body.
func (c *BackendClient) Do(service string, req *http.Request) (*model.ProxyResponse, error) {
	c.logger.Debug("backend request",
		"service", service,
		"method", req.Method,
		"host", req.URL.Host,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via ProxyResponse
	duration := time.Since(start).Seconds()

	method := metrics.NormalizeMethod(req.Method)

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues(service, method).Observe(duration)
		}
		return nil, fmt.Errorf("backend request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues(service, method).Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(service, method, status).Inc()
	}

	return &model.ProxyResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
	}, nil
}

// DoStream builds and executes br. The provided context controls the lifetime
// of the backend request: when the client disconnects the backend request is
// canceled too. The caller is responsible for closing the returned body.
func (c *BackendClient) DoStream(ctx context.Context, br model.BackendRequest) (*model.ProxyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, br.Method, br.URL, br.Body)
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	if br.Header != nil {
		req.Header = br.Header
	}
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
		req.Header.Del("Host")
	}

	return c.Do(br.Service, req)
}
