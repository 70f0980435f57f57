// Package forwarder implements the rate-limit gate, auth gate, URL
// construction, upstream dispatch and response streaming that together
// turn a Matcher hit into a proxied HTTP round trip.
package forwarder

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/flowgate/gateway/gateway/apitypes"
	"github.com/flowgate/gateway/gateway/audit"
	"github.com/flowgate/gateway/gateway/auth"
	"github.com/flowgate/gateway/gateway/matcher"
	"github.com/flowgate/gateway/gateway/ratelimit"
)

const defaultUpstreamTimeout = 30 * time.Second

type errorBody struct {
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Message: message})
}

// Matcher is the subset of *matcher.Matcher the Forwarder depends on.
type Matcher interface {
	Match(method, path string) *matcher.Match
}

// Forwarder is the proxy surface's http.Handler: it resolves each request
// through its Matcher itself and replies 404 when no route applies.
type Forwarder struct {
	Matcher  Matcher
	Limiter  ratelimit.Limiter
	Verifier auth.Verifier
	Audit    audit.Sink
	Client   *http.Client
}

// New builds a Forwarder with a default upstream HTTP client timeout.
func New(m Matcher, limiter ratelimit.Limiter, verifier auth.Verifier, sink audit.Sink) *Forwarder {
	return &Forwarder{
		Matcher:  m,
		Limiter:  limiter,
		Verifier: verifier,
		Audit:    sink,
		Client:   &http.Client{Timeout: defaultUpstreamTimeout},
	}
}

// ServeHTTP runs the full forward pipeline end to end: match, rate-limit,
// authenticate, dispatch upstream, stream the response, audit.
func (f *Forwarder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	match := f.Matcher.Match(r.Method, r.URL.Path)
	if match == nil {
		writeError(w, http.StatusNotFound, "Route is not available")
		return
	}

	sourceIP := clientIP(r)
	host := resolveHost(match.API.Proxy)
	backendEndpoint := fmt.Sprintf("%s:%d", host, match.API.Proxy.Port)

	if !f.Limiter.RequestPassage(backendEndpoint, sourceIP) {
		writeError(w, http.StatusTooManyRequests, "Too many requests.")
		return
	}

	var subject string
	authenticated := false
	if !match.Endpoint.NotSecured {
		sub, ok := auth.Authenticate(r, match.API.AuthOptions, f.Verifier)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Missing or invalid token")
			return
		}
		subject = sub
		authenticated = true
	}

	targetURL := fmt.Sprintf("http://%s%s", backendEndpoint, r.URL.Path)

	upstreamReq, err := f.buildUpstreamRequest(r, targetURL, match.Endpoint.Method)
	if err != nil {
		if err == errMethodUnsupported {
			writeError(w, http.StatusMethodNotAllowed, "Method not supported")
			return
		}
		writeError(w, http.StatusBadGateway, "Bad gateway")
		return
	}

	resp, err := f.Client.Do(upstreamReq)
	if err != nil {
		status := http.StatusBadGateway
		if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
			status = http.StatusGatewayTimeout
		}
		writeError(w, status, "Upstream request failed")
		return
	}
	defer resp.Body.Close()

	streamResponse(w, resp)

	if authenticated {
		f.Audit.Publish(audit.Event{
			APIID:        match.APIID,
			EndpointID:   match.Endpoint.ID,
			Method:       string(match.Endpoint.Method),
			Path:         r.URL.Path,
			SourceIP:     sourceIP,
			Timestamp:    time.Now(),
			TokenSubject: subject,
		})
	}
}

var errMethodUnsupported = fmt.Errorf("method not supported by matched endpoint")

// buildUpstreamRequest dispatches by method.
func (f *Forwarder) buildUpstreamRequest(r *http.Request, targetURL string, method apitypes.Method) (*http.Request, error) {
	switch method {
	case apitypes.MethodGet, apitypes.MethodHead, apitypes.MethodOptions, apitypes.MethodDelete:
		u, err := url.Parse(targetURL)
		if err != nil {
			return nil, err
		}
		u.RawQuery = r.URL.Query().Encode()
		req, err := http.NewRequestWithContext(r.Context(), string(method), u.String(), nil)
		if err != nil {
			return nil, err
		}
		copyHeaders(req.Header, r.Header)
		return req, nil

	case apitypes.MethodPut, apitypes.MethodPatch, apitypes.MethodPost:
		if isMultipartRequest(r) {
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				return nil, err
			}
			if hasFilePart(r) {
				body, contentType, err := buildMultipartBody(r)
				if err != nil {
					return nil, err
				}
				req, err := http.NewRequestWithContext(r.Context(), string(method), targetURL, body)
				if err != nil {
					return nil, err
				}
				copyHeaders(req.Header, r.Header)
				req.Header.Set("Content-Type", contentType)
				return req, nil
			}
		}

		payload, err := jsonBodyFromRequest(r)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(r.Context(), string(method), targetURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		copyHeaders(req.Header, r.Header)
		req.Header.Set("Content-Type", "application/json")
		return req, nil

	default:
		return nil, errMethodUnsupported
	}
}

func copyHeaders(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}

// jsonBodyFromRequest serializes the request's parsed parameters (query
// string, plus form fields for a form-encoded body or the decoded object
// for a JSON body) as JSON.
func jsonBodyFromRequest(r *http.Request) ([]byte, error) {
	params := map[string]interface{}{}

	for k, values := range r.URL.Query() {
		assignParam(params, k, values)
	}

	switch {
	case strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded"):
		if err := r.ParseForm(); err != nil {
			return nil, err
		}
		for k, values := range r.PostForm {
			assignParam(params, k, values)
		}

	case strings.HasPrefix(r.Header.Get("Content-Type"), "application/json"):
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		if len(body) > 0 {
			var parsed map[string]interface{}
			if err := json.Unmarshal(body, &parsed); err != nil {
				return nil, err
			}
			for k, v := range parsed {
				params[k] = v
			}
		}
	}

	return json.Marshal(params)
}

// assignParam collapses a single-valued query/form parameter to a scalar,
// so a non-repeated field serializes as a plain JSON value rather than a
// one-element array; a repeated key becomes a JSON array.
func assignParam(params map[string]interface{}, key string, values []string) {
	if len(values) == 1 {
		params[key] = values[0]
		return
	}
	list := make([]interface{}, len(values))
	for i, v := range values {
		list[i] = v
	}
	params[key] = list
}

// resolveHost resolves the proxy target's host, reading it from the named
// environment variable when UseEnv is set.
func resolveHost(proxy apitypes.ProxyConfig) string {
	if !proxy.UseEnv {
		return proxy.TargetURL
	}
	if v := os.Getenv(proxy.TargetURL); v != "" {
		return v
	}
	return "localhost"
}

// clientIP extracts the request's source IP from the socket address: the
// gateway is the trust boundary, so a client-supplied header is not
// authoritative here.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// streamResponse copies the upstream response to w, flushing chunk-by-chunk
// for a chunked Transfer-Encoding rather than buffering the whole body.
// net/http strips the hop-by-hop Transfer-Encoding header out of
// resp.Header and surfaces it on resp.TransferEncoding instead, so that
// slice — not the header map — is what isChunked must see.
func streamResponse(w http.ResponseWriter, resp *http.Response) {
	for k, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(k, v)
		}
	}

	if len(resp.TransferEncoding) > 0 && isChunked(strings.Join(resp.TransferEncoding, ",")) {
		w.Header().Del("Content-Length")
		w.WriteHeader(resp.StatusCode)
		if flusher, ok := w.(http.Flusher); ok {
			streamChunks(w, flusher, resp.Body)
			return
		}
		io.Copy(w, resp.Body)
		return
	}

	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

func streamChunks(w io.Writer, flusher http.Flusher, body io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			flusher.Flush()
		}
		if err != nil {
			return
		}
	}
}

// isChunked reports whether transferEncoding names chunked encoding,
// tolerating a multi-token Transfer-Encoding header and mixed case.
func isChunked(transferEncoding string) bool {
	return strings.Contains(strings.ToLower(transferEncoding), "chunked")
}
