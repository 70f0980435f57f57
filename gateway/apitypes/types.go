// Package apitypes defines the routing data model shared by the registry,
// matcher and forwarder: API definitions, their endpoints, and the small
// sum types that describe how each one is authenticated and proxied.
package apitypes

import "time"

// AuthType is a tagged variant: an endpoint's auth behavior is one of a
// closed set, not an implicit string compared at every call site.
type AuthType string

const (
	AuthNone AuthType = "none"
	AuthJWT  AuthType = "jwt"
)

// Method is the closed set of HTTP methods an Endpoint may be registered
// under.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// AuthOptions configures where candidate tokens are read from for a
// jwt-secured API.
type AuthOptions struct {
	HeaderName string `json:"header_name"`
	QueryName  string `json:"query_name"`
	UseHeader  bool   `json:"use_header"`
	UseQuery   bool   `json:"use_query"`
}

// ProxyConfig describes the upstream a matched request is forwarded to.
type ProxyConfig struct {
	// TargetURL is either a literal host, or (when UseEnv is true) the name
	// of an environment variable whose value gives the host.
	TargetURL string `json:"target_url"`
	Port      int    `json:"port"`
	UseEnv    bool   `json:"use_env"`
}

// Endpoint is a single method+path route inside an API's default version.
type Endpoint struct {
	ID         string `json:"id"`
	Method     Method `json:"method"`
	Path       string `json:"path"`
	NotSecured bool   `json:"not_secured"`
}

// VersionData holds the endpoints published under one version label.
type VersionData struct {
	Endpoints []Endpoint `json:"endpoints"`
}

// Definition is one node's replica of an API's routing record. It is a
// plain value: replicas are copied across nodes, never shared by pointer
// across the registry/tracker boundary.
type Definition struct {
	Name        string                 `json:"name"`
	AuthType    AuthType               `json:"auth_type"`
	AuthOptions AuthOptions            `json:"auth_options"`
	Proxy       ProxyConfig            `json:"proxy"`
	Versioned   bool                   `json:"versioned"`
	VersionData map[string]VersionData `json:"version_data"`

	RefNumber int64     `json:"ref_number"`
	Timestamp time.Time `json:"timestamp"`
	NodeName  string    `json:"node_name"`
	PhxRef    string    `json:"phx_ref"`
}

// NamedDefinition pairs a Definition with the api_id key it is registered
// under in the registry's map. Definition itself never carries this id —
// Name is a separate, human-supplied label — so anything that needs both
// (seeding, matching) passes them together explicitly.
type NamedDefinition struct {
	ID         string     `json:"id"`
	Definition Definition `json:"definition"`
}

// DefaultVersion is the version label the Matcher reads endpoints from.
const DefaultVersion = "default"

// Endpoints returns the endpoint list under the default version, or nil if
// none is published.
func (d Definition) Endpoints() []Endpoint {
	v, ok := d.VersionData[DefaultVersion]
	if !ok {
		return nil
	}
	return v.Endpoints
}

// Equal reports whether two definitions are structurally equal for the
// purposes of the registry's conflict-resolution quorum vote. ref_number,
// timestamp, node_name and phx_ref are replica bookkeeping, not part of the
// definition's content, and are excluded deliberately: two nodes that
// agree on everything else but raced to bump ref_number or restamp the
// clock should still be counted as "the same" definition.
func (d Definition) Equal(other Definition) bool {
	if d.Name != other.Name ||
		d.AuthType != other.AuthType ||
		d.AuthOptions != other.AuthOptions ||
		d.Proxy != other.Proxy ||
		d.Versioned != other.Versioned {
		return false
	}
	if len(d.VersionData) != len(other.VersionData) {
		return false
	}
	for version, vd := range d.VersionData {
		ovd, ok := other.VersionData[version]
		if !ok || !endpointsEqual(vd.Endpoints, ovd.Endpoints) {
			return false
		}
	}
	return true
}

func endpointsEqual(a, b []Endpoint) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
