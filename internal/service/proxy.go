// Package service implements the forwarding logic between clients and the
// proxied backends.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"mcop-proxy/internal/client"
	"mcop-proxy/internal/config"
	"mcop-proxy/internal/jarstore"
	"mcop-proxy/internal/metrics"
	"mcop-proxy/internal/model"
	"mcop-proxy/internal/urlcodec"
)

// ErrUnknownBackend is returned when a request resolves to a host that no
// configured service serves.
var ErrUnknownBackend = errors.New("no service configured for backend host")

// ErrUnknownService is returned for a service name that is not configured.
var ErrUnknownService = errors.New("unknown service")

// forwardableRequestHeaders are the only request headers forwarded to backends.
// Cookie comes from the service jar. Accept-Encoding is left to the transport
// so that bodies arrive decoded.
var forwardableRequestHeaders = []string{
	"Accept",
	"Accept-Language",
	"Cache-Control",
	"Content-Type",
	"Content-Length",
	"If-Match",
	"If-Modified-Since",
	"If-None-Match",
	"Range",
	"X-Requested-With",
}

// forwardableResponseHeaders are the only response headers returned to the client.
var forwardableResponseHeaders = map[string]bool{
	"Accept-Ranges":       true,
	"Cache-Control":       true,
	"Content-Disposition": true,
	"Content-Length":      true,
	"Content-Range":       true,
	"Content-Type":        true,
	"Date":                true,
	"Etag":                true,
	"Expires":             true,
	"Last-Modified":       true,
	"Location":            true,
	"Vary":                true,
	"X-Request-Id":        true,
}

const userAgent = "mcop-proxy/1.0"

// ProxyService resolves proxied requests to backends, feeds them the service
// cookies and rewrites what comes back.
type ProxyService struct {
	client  *client.BackendClient
	cfg     *config.Config
	jars    *jarstore.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(c *client.BackendClient, cfg *config.Config, jars *jarstore.Store, logger *slog.Logger, m *metrics.Metrics) (*ProxyService, error) {
	if cfg.Proxy.Host == "" || cfg.Proxy.AppDomain == "" {
		return nil, fmt.Errorf("proxy host and app domain are required: %w", urlcodec.ErrMissingArgument)
	}
	if _, ok := cfg.ServiceByHost(cfg.Proxy.AppDomain); !ok {
		logger.Warn("no service serves the app domain; unmarked requests will be rejected",
			"app_domain", cfg.Proxy.AppDomain,
		)
	}

	return &ProxyService{
		client:  c,
		cfg:     cfg,
		jars:    jars,
		logger:  logger.With("component", "proxy_service"),
		metrics: m,
	}, nil
}

// route is a proxied request resolved to one service.
type route struct {
	service *config.ServiceConfig
	target  urlcodec.Target
	url     *url.URL // backend URL of the request
}

// resolve decodes requestURI into the backend service and URL it addresses.
func (s *ProxyService) resolve(requestURI string) (*route, error) {
	target, err := urlcodec.Decode(requestURI, s.cfg.Proxy.Host, s.cfg.Proxy.AppDomain)
	if err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	svc, ok := s.cfg.ServiceByHost(target.Host)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, target.Host)
	}

	base := svc.Base()
	u, err := url.Parse(base.Scheme + "://" + base.Host + target.RequestURI)
	if err != nil {
		return nil, fmt.Errorf("build backend url: %w", err)
	}
	return &route{service: svc, target: target, url: u}, nil
}

// Forward sends a ProxyRequest to its backend and returns the rewritten response.
// The caller is responsible for closing the response body.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.ProxyResponse, error) {
	rt, err := s.resolve(pr.RequestURI)
	if err != nil {
		return nil, err
	}
	name := rt.service.Name

	header := s.filterRequestHeaders(pr.Header, rt)
	if cookie, err := s.cookieHeader(name, rt.service.Hostname()); err != nil {
		s.logger.Warn("load cookie jar", "service", name, "error", err)
	} else if cookie != "" {
		header.Set("Cookie", cookie)
	}

	s.logger.Debug("forwarding request",
		"service", name,
		"method", pr.Method,
		"backend", rt.url.Host,
		"path", rt.url.Path,
	)

	resp, err := s.client.DoStream(pr.Ctx, model.BackendRequest{
		Service: name,
		Method:  pr.Method,
		URL:     rt.url.String(),
		Header:  header,
		Body:    pr.Body,
	})
	if err != nil {
		return nil, fmt.Errorf("forward to %s: %w", name, err)
	}

	if raws := resp.Header.Values("Set-Cookie"); len(raws) > 0 {
		s.mergeCookies(rt.service, raws)
	}

	resp.Service, resp.Backend = name, rt.url.Host
	resp.Header = s.filterResponseHeaders(resp.Header)
	s.rewriteLocation(resp.Header, rt)
	s.rewriteBody(resp, rt)
	return resp, nil
}

func (s *ProxyService) filterRequestHeaders(src http.Header, rt *route) http.Header {
	dst := make(http.Header)
	for _, key := range forwardableRequestHeaders {
		if vals := src.Values(key); len(vals) > 0 {
			dst[http.CanonicalHeaderKey(key)] = vals
		}
	}
	if origin := src.Get("Origin"); origin != "" {
		dst.Set("Origin", rt.url.Scheme+"://"+rt.url.Host)
	}
	if ref := src.Get("Referer"); ref != "" {
		if backend, ok := s.backendURL(ref); ok {
			dst.Set("Referer", backend)
		}
	}
	dst.Set("User-Agent", userAgent)
	return dst
}

// backendURL maps a URL on the proxy host back to the backend URL it stands for.
func (s *ProxyService) backendURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || !strings.EqualFold(u.Host, s.cfg.Proxy.Host) {
		return "", false
	}
	rt, err := s.resolve(u.RequestURI())
	if err != nil {
		return "", false
	}
	return rt.url.String(), true
}

func (s *ProxyService) filterResponseHeaders(src http.Header) http.Header {
	dst := make(http.Header)
	for key, vals := range src {
		if forwardableResponseHeaders[http.CanonicalHeaderKey(key)] {
			dst[key] = vals
		}
	}
	return dst
}
