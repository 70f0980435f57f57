package matcher

import (
	"testing"

	"github.com/flowgate/gateway/gateway/apitypes"
)

type fakeSource struct {
	apis []apitypes.NamedDefinition
}

func (f fakeSource) APIs() []apitypes.NamedDefinition { return f.apis }

func apiWithEndpoints(id string, eps ...apitypes.Endpoint) apitypes.NamedDefinition {
	return apitypes.NamedDefinition{
		ID: id,
		Definition: apitypes.Definition{
			Name: id,
			VersionData: map[string]apitypes.VersionData{
				apitypes.DefaultVersion: {Endpoints: eps},
			},
		},
	}
}

func TestMatchExactAndWildcard(t *testing.T) {
	src := fakeSource{apis: []apitypes.NamedDefinition{
		apiWithEndpoints("myapi",
			apitypes.Endpoint{ID: "list", Method: apitypes.MethodGet, Path: "/myapi/movies"},
			apitypes.Endpoint{ID: "get", Method: apitypes.MethodGet, Path: "/myapi/movies/{id}"},
		),
	}}
	m := New(src)

	if got := m.Match("GET", "/myapi/movies"); got == nil || got.Endpoint.ID != "list" || got.APIID != "myapi" {
		t.Fatalf("expected exact match on 'list' with api_id 'myapi', got %+v", got)
	}
	if got := m.Match("GET", "/myapi/movies/42"); got == nil || got.Endpoint.ID != "get" {
		t.Fatalf("expected wildcard match on 'get', got %+v", got)
	}
	if got := m.Match("GET", "/myapi/movies/42/extra"); got != nil {
		t.Fatalf("expected wildcard to not cross a path segment, got %+v", got)
	}
}

func TestMatchMethodMustAgree(t *testing.T) {
	src := fakeSource{apis: []apitypes.NamedDefinition{
		apiWithEndpoints("myapi", apitypes.Endpoint{ID: "list", Method: apitypes.MethodGet, Path: "/myapi/movies"}),
	}}
	m := New(src)

	if got := m.Match("POST", "/myapi/movies"); got != nil {
		t.Fatalf("expected no match for wrong method, got %+v", got)
	}
}

func TestMatchNoRouteReturnsNil(t *testing.T) {
	src := fakeSource{apis: []apitypes.NamedDefinition{
		apiWithEndpoints("myapi", apitypes.Endpoint{ID: "list", Method: apitypes.MethodGet, Path: "/myapi/movies"}),
	}}
	m := New(src)

	if got := m.Match("GET", "/nowhere"); got != nil {
		t.Fatalf("expected nil for unmatched path, got %+v", got)
	}
}

func TestMatchFirstAPIWinsInIterationOrder(t *testing.T) {
	src := fakeSource{apis: []apitypes.NamedDefinition{
		apiWithEndpoints("alpha", apitypes.Endpoint{ID: "a", Method: apitypes.MethodGet, Path: "/shared"}),
		apiWithEndpoints("zeta", apitypes.Endpoint{ID: "z", Method: apitypes.MethodGet, Path: "/shared"}),
	}}
	m := New(src)

	got := m.Match("GET", "/shared")
	if got == nil || got.Endpoint.ID != "a" {
		t.Fatalf("expected first-in-order api to win, got %+v", got)
	}
}

func TestMatchLiteralSegmentNotTreatedAsRegex(t *testing.T) {
	src := fakeSource{apis: []apitypes.NamedDefinition{
		apiWithEndpoints("myapi", apitypes.Endpoint{ID: "v1", Method: apitypes.MethodGet, Path: "/myapi/v1.0/ping"}),
	}}
	m := New(src)

	if got := m.Match("GET", "/myapi/v1X0/ping"); got != nil {
		t.Fatalf("expected literal dot to not act as regex wildcard, got %+v", got)
	}
	if got := m.Match("GET", "/myapi/v1.0/ping"); got == nil {
		t.Fatalf("expected literal dot path to match itself")
	}
}
