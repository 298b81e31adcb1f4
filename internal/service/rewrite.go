package service

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"mcop-proxy/internal/jsrewrite"
	"mcop-proxy/internal/metrics"
	"mcop-proxy/internal/model"
	"mcop-proxy/internal/urlcodec"
)

// bodyKind is the rewrite applied to a response body.
type bodyKind int

const (
	bodyOpaque bodyKind = iota
	bodyJS
	bodyHTML
	bodyJSON
	bodyCSS
)

func (k bodyKind) label() string {
	switch k {
	case bodyJS:
		return metrics.RewriteJS
	case bodyHTML:
		return metrics.RewriteHTML
	case bodyJSON:
		return metrics.RewriteJSON
	case bodyCSS:
		return metrics.RewriteCSS
	}
	return "opaque"
}

// kindOf maps a Content-Type header to a bodyKind.
func kindOf(contentType string) bodyKind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return bodyHTML
	case mediaType == "text/javascript" || mediaType == "application/javascript" ||
		mediaType == "application/x-javascript" || mediaType == "application/ecmascript" ||
		mediaType == "text/ecmascript":
		return bodyJS
	case mediaType == "application/json" || strings.HasSuffix(mediaType, "+json"):
		return bodyJSON
	case mediaType == "text/css":
		return bodyCSS
	}
	return bodyOpaque
}

// encodeURL rewrites an absolute or page-relative URL onto the proxy host.
// URLs of hosts that no service serves are left alone. ok is false when the
// URL is left as it was.
func (s *ProxyService) encodeURL(raw string, rt *route) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if urlcodec.IsPassThrough(trimmed) {
		return raw, false
	}
	abs, err := rt.url.Parse(trimmed)
	if err != nil || abs.Host == "" {
		return raw, false
	}
	if _, ok := s.cfg.ServiceByHost(abs.Host); !ok {
		return raw, false
	}
	out, err := urlcodec.EncodeWithOrigin(abs.String(), rt.url.Scheme+"://"+rt.url.Host, s.cfg.Proxy.Host, s.cfg.Proxy.AppDomain)
	if err != nil || out == raw {
		return raw, false
	}
	return out, true
}

// rewriteLocation points redirects back at the proxy.
func (s *ProxyService) rewriteLocation(h http.Header, rt *route) {
	loc := h.Get("Location")
	if loc == "" {
		return
	}
	out, ok := s.encodeURL(loc, rt)
	if ok {
		h.Set("Location", out)
	}
	s.countRewrite(metrics.RewriteLocation, resultOf(ok))
}

// rewriteBody replaces resp.Body with its rewritten form when the content type
// calls for it and the body fits in rewrite.max_body_bytes. Larger bodies and
// encoded bodies are streamed unchanged.
func (s *ProxyService) rewriteBody(resp *model.ProxyResponse, rt *route) {
	kind := kindOf(resp.Header.Get("Content-Type"))
	if kind == bodyOpaque || resp.Body == nil {
		return
	}
	if kind == bodyJS {
		if _, ok := rt.service.RewriteMode(); !ok {
			return
		}
	}
	if enc := resp.Header.Get("Content-Encoding"); enc != "" && !strings.EqualFold(enc, "identity") {
		s.countRewrite(kind.label(), metrics.ResultSkipped)
		return
	}

	limit := s.cfg.Rewrite.MaxBodyBytes
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > limit {
			s.countRewrite(kind.label(), metrics.ResultSkipped)
			return
		}
	}

	body, complete, err := readBounded(resp.Body, limit)
	if err != nil {
		s.logger.Warn("read backend body", "service", rt.service.Name, "error", err)
		resp.Body = prefixedBody(body, resp.Body)
		return
	}
	if !complete {
		s.countRewrite(kind.label(), metrics.ResultSkipped)
		resp.Body = prefixedBody(body, resp.Body)
		return
	}
	_ = resp.Body.Close()

	out, result := s.rewriteContent(kind, string(body), rt)
	s.countRewrite(kind.label(), result)

	resp.Body = io.NopCloser(strings.NewReader(out))
	resp.Header.Set("Content-Length", strconv.Itoa(len(out)))
}

func (s *ProxyService) rewriteContent(kind bodyKind, body string, rt *route) (string, string) {
	switch kind {
	case bodyJS:
		return s.rewriteScript(body, rt)
	case bodyHTML:
		return s.rewriteHTML(body, rt)
	case bodyJSON:
		out, n := s.rewriteJSONURLs(body, rt)
		return out, resultOf(n > 0)
	case bodyCSS:
		out, n := s.rewriteCSSURLs(body, rt)
		return out, resultOf(n > 0)
	}
	return body, metrics.ResultUnchanged
}

// rewriteScript runs the service's JavaScript pass. A script that cannot be
// parsed is served unchanged.
func (s *ProxyService) rewriteScript(src string, rt *route) (string, string) {
	mode, ok := rt.service.RewriteMode()
	if !ok {
		return src, metrics.ResultUnchanged
	}
	res, err := jsrewrite.Rewrite(src, mode)
	if err != nil {
		s.logger.Warn("javascript rewrite failed; serving original",
			"service", rt.service.Name,
			"path", rt.url.Path,
			"mode", mode.String(),
			"error", err,
		)
		return src, metrics.ResultFailed
	}
	switch {
	case res.Edits == 0:
		return src, metrics.ResultUnchanged
	case res.Tolerant:
		return res.Output, metrics.ResultTolerant
	}
	return res.Output, metrics.ResultRewritten
}

func (s *ProxyService) countRewrite(kind, result string) {
	if s.metrics != nil {
		s.metrics.RewritesTotal.WithLabelValues(kind, result).Inc()
	}
}

func resultOf(changed bool) string {
	if changed {
		return metrics.ResultRewritten
	}
	return metrics.ResultUnchanged
}

// readBounded reads up to limit bytes. complete is false when r holds more.
func readBounded(r io.Reader, limit int64) (data []byte, complete bool, err error) {
	data, err = io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return data, false, err
	}
	if int64(len(data)) > limit {
		return data, false, nil
	}
	return data, true, nil
}

// prefixedBody returns a body that yields the already-read prefix followed
// by the rest of rest.
func prefixedBody(prefix []byte, rest io.ReadCloser) io.ReadCloser {
	return struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(prefix), rest), rest}
}
