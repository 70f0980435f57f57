// Package matcher finds the API definition and endpoint that applies to
// an incoming request's method and path. It is deliberately decoupled
// from HTTP framing: it takes a method and a path and returns a match,
// nothing more.
package matcher

import (
	"regexp"

	"github.com/flowgate/gateway/gateway/apitypes"
)

// wildcard is the path token that matches any single path segment.
const wildcard = "{id}"

// wildcardSegment matches one path segment with no slash in it.
var wildcardSegment = regexp.MustCompile(`[^/]+`)

// Match is the (api, endpoint) pair a request resolved to. APIID is the
// registry key the API is tracked under — distinct from API.Name, which is
// just a human-supplied label.
type Match struct {
	APIID    string
	API      apitypes.Definition
	Endpoint apitypes.Endpoint
}

// Source supplies the current local registry view, each definition paired
// with the api_id it's registered under. registry.Registry satisfies this
// directly via APIs.
type Source interface {
	APIs() []apitypes.NamedDefinition
}

// Matcher compiles each endpoint's path into an anchored regexp against
// the registry's current snapshot on every Match call. The registry only
// changes on mutation/gossip events rather than per-request, but those
// events aren't observable from here without coupling to tracker.Listener,
// so compilation is simply kept cheap instead of cached.
type Matcher struct {
	source Source
}

type compiledAPI struct {
	id        string
	def       apitypes.Definition
	endpoints []compiledEndpoint
}

type compiledEndpoint struct {
	endpoint apitypes.Endpoint
	re       *regexp.Regexp
}

// New builds a Matcher over the given registry snapshot source.
func New(source Source) *Matcher {
	return &Matcher{source: source}
}

// Match finds the first API (in api_id lexicographic order, since
// registry.APIs already returns that order) whose default-version
// endpoints contain a method+path match, and returns nil if none applies.
func (m *Matcher) Match(method, path string) *Match {
	for _, api := range m.compiled() {
		for _, ep := range api.endpoints {
			if string(ep.endpoint.Method) != method {
				continue
			}
			if ep.re.MatchString(path) {
				return &Match{APIID: api.id, API: api.def, Endpoint: ep.endpoint}
			}
		}
	}
	return nil
}

// compiled recompiles the endpoint regexps against the current registry
// snapshot.
func (m *Matcher) compiled() []compiledAPI {
	apis := m.source.APIs()
	out := make([]compiledAPI, 0, len(apis))
	for _, nd := range apis {
		eps := nd.Definition.Endpoints()
		compiledEps := make([]compiledEndpoint, 0, len(eps))
		for _, ep := range eps {
			compiledEps = append(compiledEps, compiledEndpoint{
				endpoint: ep,
				re:       compilePath(ep.Path),
			})
		}
		out = append(out, compiledAPI{id: nd.ID, def: nd.Definition, endpoints: compiledEps})
	}
	return out
}

// compilePath turns an endpoint path with {id} wildcards into an anchored
// regexp. Literal regexp metacharacters in path segments are escaped so a
// literal segment like "v1.0" isn't accidentally treated as a pattern.
func compilePath(path string) *regexp.Regexp {
	segments := splitPath(path)
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if seg == wildcard {
			parts = append(parts, wildcardSegment.String())
		} else {
			parts = append(parts, regexp.QuoteMeta(seg))
		}
	}
	pattern := "^/" + joinSegments(parts) + "$"
	return regexp.MustCompile(pattern)
}

func splitPath(path string) []string {
	var segments []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				segments = append(segments, path[start:i])
			}
			start = i + 1
		}
	}
	return segments
}

func joinSegments(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "/"
		}
		out += p
	}
	return out
}
