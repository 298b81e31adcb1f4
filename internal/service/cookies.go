package service

import (
	"fmt"

	"mcop-proxy/internal/config"
	"mcop-proxy/internal/jar"
)

// cookieHeader returns the Cookie header value for a request to service.
func (s *ProxyService) cookieHeader(service, hostname string) (string, error) {
	var cookie string
	err := s.jars.View(service, func(j *jar.Jar) {
		cookie = j.GetAsString(hostname)
	})
	return cookie, err
}

// mergeCookies stores the Set-Cookie values of a backend response in the
// service jar. Failures are logged; the response is still served.
func (s *ProxyService) mergeCookies(svc *config.ServiceConfig, raws []string) {
	var merged bool
	err := s.jars.Update(svc.Name, func(j *jar.Jar) error {
		var err error
		merged, err = j.Merge(raws, svc.Hostname())
		return err
	})
	if err != nil {
		s.logger.Warn("merge cookies", "service", svc.Name, "error", err)
		return
	}
	if merged && s.metrics != nil {
		s.metrics.CookiesMerged.WithLabelValues(svc.Name).Add(float64(len(raws)))
	}
}

// ClientCookies returns the cookies of service in the client-side
// name@domain=value form.
func (s *ProxyService) ClientCookies(service string) ([]string, error) {
	svc, ok := s.cfg.ServiceByName(service)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownService, service)
	}
	var out []string
	err := s.jars.View(svc.Name, func(j *jar.Jar) {
		out = j.GetForClientSide(svc.Hostname())
	})
	if err != nil {
		return nil, fmt.Errorf("load cookie jar of %s: %w", svc.Name, err)
	}
	return out, nil
}
