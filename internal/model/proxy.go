// Package model defines shared types for the proxy.
package model

import (
	"context"
	"io"
	"net/http"
)

// Echo context keys under which the proxy handler records the backend that
// served a request.
const (
	ContextKeyService = "mcop.service"
	ContextKeyBackend = "mcop.backend"
)

// ProxyRequest represents a client request to be forwarded to a backend.
type ProxyRequest struct {
	Ctx        context.Context
	Method     string
	RequestURI string // path and raw query as received by the proxy
	Header     http.Header
	Body       io.ReadCloser
}

// ProxyResponse represents the backend response to be returned to the client.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser

	Service string // configured service that answered
	Backend string // backend host[:port]
}

// BackendRequest is a fully resolved request to one backend service.
type BackendRequest struct {
	Service string
	Method  string
	URL     string
	Header  http.Header
	Body    io.Reader
}
